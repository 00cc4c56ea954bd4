package context

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/griffithind/giftwrap/internal/gwerrors"
)

const gwincludeName = ".gwinclude"

// includeFile is one parsed .gwinclude, keyed by the directory it lives in.
type includeFile struct {
	dir      string // absolute path
	patterns []pattern
}

// SelectedFile describes one file chosen by the content selection,
// relative to the build root, plus what's needed to encode it (§4.3).
type SelectedFile struct {
	RelPath string // "/"-separated, relative to build root
	AbsPath string
	IsLink  bool
}

// Select walks buildRoot, loads every .gwinclude, and returns the files
// the selection includes, relative-path sorted lexicographically.
func Select(buildRoot string) ([]SelectedFile, error) {
	includeFiles, err := loadIncludeFiles(buildRoot)
	if err != nil {
		return nil, err
	}
	// Deepest directory first, so the nearest enclosing .gwinclude is
	// considered before any ancestor.
	sort.Slice(includeFiles, func(i, j int) bool {
		return len(includeFiles[i].dir) > len(includeFiles[j].dir)
	})

	var out []SelectedFile
	err = filepath.Walk(buildRoot, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return gwerrors.Wrapf(walkErr, gwerrors.KindContext, gwerrors.CodeContextIO, "walking %s", p)
		}
		if info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(buildRoot, p)
		if relErr != nil {
			return gwerrors.Wrap(relErr, gwerrors.KindContext, gwerrors.CodeContextIO, "computing relative path")
		}
		rel = filepath.ToSlash(rel)

		included, matchErr := isSelected(rel, includeFiles)
		if matchErr != nil {
			return matchErr
		}
		if !included {
			return nil
		}

		out = append(out, SelectedFile{
			RelPath: rel,
			AbsPath: p,
			IsLink:  info.Mode()&os.ModeSymlink != 0,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].RelPath < out[j].RelPath })

	if len(out) == 0 {
		return nil, gwerrors.New(gwerrors.KindContext, gwerrors.CodeEmptyContext, "content selection resolved to zero files")
	}
	return out, nil
}

func loadIncludeFiles(buildRoot string) ([]includeFile, error) {
	var files []includeFile
	err := filepath.Walk(buildRoot, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return gwerrors.Wrapf(walkErr, gwerrors.KindContext, gwerrors.CodeContextIO, "walking %s", p)
		}
		if info.IsDir() || filepath.Base(p) != gwincludeName {
			return nil
		}
		patterns, parseErr := parseIncludeFile(p)
		if parseErr != nil {
			return parseErr
		}
		files = append(files, includeFile{dir: filepath.Dir(p), patterns: patterns})
		return nil
	})
	return files, err
}

func parseIncludeFile(path string) ([]pattern, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, gwerrors.Wrapf(err, gwerrors.KindContext, gwerrors.CodeContextIO, "reading %s", path)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	var patterns []pattern
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		p, perr := parsePattern(line)
		if perr != nil {
			return nil, perr
		}
		patterns = append(patterns, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, gwerrors.Wrapf(err, gwerrors.KindContext, gwerrors.CodeContextIO, "reading %s", path)
	}
	return patterns, nil
}

// isSelected implements spec.md §4.3's selection rule: the longest-prefix
// .gwinclude that mentions (has any matching pattern for) the file
// decides inclusion; within that file, the last matching line wins.
func isSelected(rel string, includeFiles []includeFile) (bool, error) {
	for _, inc := range includeFiles {
		relToInc, err := filepath.Rel(inc.dir, filepath.FromSlash(rel))
		if err != nil {
			continue
		}
		relToInc = filepath.ToSlash(relToInc)
		if strings.HasPrefix(relToInc, "../") || relToInc == ".." {
			continue // file isn't under this .gwinclude's directory
		}

		verdict, matched := evalPatterns(inc.patterns, relToInc)
		if matched {
			return verdict, nil
		}
	}
	return false, nil
}

// evalPatterns returns the include/exclude verdict of the last pattern
// in patterns that matches relFrag, and whether any pattern matched at
// all ("mentions" the file).
func evalPatterns(patterns []pattern, relFrag string) (verdict bool, matched bool) {
	for _, p := range patterns {
		hit := false
		if p.dirOnly {
			hit = p.matchesAnyAncestorDir(relFrag)
		} else {
			hit = p.matches(relFrag) || p.matchesAnyAncestorDir(relFrag)
		}
		if hit {
			matched = true
			verdict = !p.negate
		}
	}
	return verdict, matched
}
