// Package context implements spec.md §4.3: the .gwinclude content
// selection and its canonical SHA-1 digest, the ContextSha used to tag
// content-addressed images.
package context

import (
	"bytes"
	stdctx "context"
	"crypto/sha1" //nolint:gosec // content addressing, not a security boundary
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/griffithind/giftwrap/internal/gwerrors"
)

const markerFileName = ".giftwrap.ctx-sha"

// Sha is the result of hashing a content selection: the 40-hex digest
// plus the ordered file list and per-file modes that produced it.
type Sha struct {
	Hex   string
	Files []SelectedFile
}

// ImageTag returns the "gw-<first-12-hex>" tag derived from the digest
// (spec.md §4.3).
func (s Sha) ImageTag() string {
	return "gw-" + s.Hex[:12]
}

// Compute selects files under buildRoot and returns their ContextSha,
// reusing the .giftwrap.ctx-sha marker when it is still fresh (spec.md
// §4.3 "SHA file reuse"). It always rewrites the marker when it recomputes.
func Compute(buildRoot string) (Sha, error) {
	files, err := Select(buildRoot)
	if err != nil {
		return Sha{}, err
	}

	markerPath := filepath.Join(buildRoot, markerFileName)
	if hex, ok := reusableMarker(markerPath, files); ok {
		return Sha{Hex: hex, Files: files}, nil
	}

	sum, err := hashSelection(files)
	if err != nil {
		return Sha{}, err
	}

	writeMarker(markerPath, sum) // best-effort cache; correctness never depends on it
	return Sha{Hex: sum, Files: files}, nil
}

// reusableMarker reports whether markerPath holds a valid hex digest
// whose mtime is newer than every selected file's mtime.
func reusableMarker(markerPath string, files []SelectedFile) (string, bool) {
	markerInfo, err := os.Stat(markerPath)
	if err != nil {
		return "", false
	}
	raw, err := os.ReadFile(markerPath)
	if err != nil {
		return "", false
	}
	sum := strings.TrimSpace(string(raw))
	if len(sum) != 40 {
		return "", false
	}
	if _, err := hex.DecodeString(sum); err != nil {
		return "", false
	}

	for _, f := range files {
		info, statErr := os.Lstat(f.AbsPath)
		if statErr != nil {
			return "", false
		}
		if !info.ModTime().Before(markerInfo.ModTime()) {
			return "", false
		}
	}
	return sum, true
}

func writeMarker(markerPath, sum string) {
	dir := filepath.Dir(markerPath)
	tmp, err := os.CreateTemp(dir, ".giftwrap.ctx-sha.*")
	if err != nil {
		return
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // cleaned up below on success too

	if _, err := tmp.WriteString(sum + "\n"); err != nil {
		tmp.Close() //nolint:errcheck
		return
	}
	if err := tmp.Close(); err != nil {
		return
	}
	_ = os.Rename(tmp.Name(), markerPath)
}

// perFileDigest is the canonical per-file line's components, computed
// once per selected file (concurrently) and then assembled in sorted
// order so the final digest is independent of hashing order.
type perFileDigest struct {
	mode string
	sha1 string
}

func hashSelection(files []SelectedFile) (string, error) {
	digests := make([]perFileDigest, len(files))

	g, _ := errgroup.WithContext(stdctx.Background())
	g.SetLimit(8)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			d, err := digestFile(f)
			if err != nil {
				return err
			}
			digests[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	// files is already sorted by RelPath (Select's contract); re-sort
	// defensively so the digest never depends on caller discipline.
	order := make([]int, len(files))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return files[order[a]].RelPath < files[order[b]].RelPath })

	var buf bytes.Buffer
	for _, idx := range order {
		f := files[idx]
		d := digests[idx]
		buf.WriteString(f.RelPath)
		buf.WriteByte(0)
		buf.WriteString(d.mode)
		buf.WriteByte(0)
		buf.WriteString(d.sha1)
		buf.WriteByte('\n')
	}

	h := sha1.New() //nolint:gosec // content addressing, not a security boundary
	h.Write(buf.Bytes())
	return hex.EncodeToString(h.Sum(nil)), nil
}

func digestFile(f SelectedFile) (perFileDigest, error) {
	if f.IsLink {
		target, err := os.Readlink(f.AbsPath)
		if err != nil {
			return perFileDigest{}, gwerrors.Wrapf(err, gwerrors.KindContext, gwerrors.CodeContextIO, "reading symlink %s", f.RelPath)
		}
		sum := sha1.Sum([]byte(target)) //nolint:gosec // content addressing, not a security boundary
		return perFileDigest{mode: "120000", sha1: hex.EncodeToString(sum[:])}, nil
	}

	file, err := os.Open(f.AbsPath)
	if err != nil {
		return perFileDigest{}, gwerrors.Wrapf(err, gwerrors.KindContext, gwerrors.CodeContextIO, "reading %s", f.RelPath)
	}
	defer file.Close() //nolint:errcheck // read-only handle

	info, err := file.Stat()
	if err != nil {
		return perFileDigest{}, gwerrors.Wrapf(err, gwerrors.KindContext, gwerrors.CodeContextIO, "stat %s", f.RelPath)
	}

	h := sha1.New() //nolint:gosec // content addressing, not a security boundary
	if _, err := io.Copy(h, file); err != nil {
		return perFileDigest{}, gwerrors.Wrapf(err, gwerrors.KindContext, gwerrors.CodeContextIO, "reading %s", f.RelPath)
	}

	mode := "100644"
	if info.Mode()&0o111 != 0 {
		mode = "100755"
	}
	return perFileDigest{mode: mode, sha1: hex.EncodeToString(h.Sum(nil))}, nil
}

