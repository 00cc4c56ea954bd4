package context

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/griffithind/giftwrap/internal/gwerrors"
)

// pattern is one parsed line of a .gwinclude file (spec.md §4.3).
type pattern struct {
	raw      string
	negate   bool
	dirOnly  bool
	anchored bool
	glob     string // the bare glob body, anchor/negation/trailing-slash stripped
}

// parsePattern parses a single non-comment, non-blank .gwinclude line.
func parsePattern(raw string) (pattern, error) {
	p := pattern{raw: raw}
	body := raw

	if strings.HasPrefix(body, "!") {
		p.negate = true
		body = body[1:]
	}
	if body == "" {
		return pattern{}, gwerrors.Newf(gwerrors.KindContext, gwerrors.CodeBadPattern, "empty pattern after negation in %q", raw)
	}
	if strings.HasPrefix(body, "/") {
		p.anchored = true
		body = body[1:]
	}
	if strings.HasSuffix(body, "/") {
		p.dirOnly = true
		body = strings.TrimSuffix(body, "/")
	}
	if body == "" {
		return pattern{}, gwerrors.Newf(gwerrors.KindContext, gwerrors.CodeBadPattern, "empty pattern body in %q", raw)
	}
	if !doublestar.ValidatePattern(body) {
		return pattern{}, gwerrors.Newf(gwerrors.KindContext, gwerrors.CodeBadPattern, "invalid glob %q", raw)
	}
	p.glob = body
	return p, nil
}

// matches reports whether relFrag (a "/"-separated path relative to the
// .gwinclude's own directory) is matched by p. It does not look at
// p.dirOnly; matchesAnyAncestorDir uses it to test a file's ancestor
// directories against dir-only patterns.
func (p pattern) matches(relFrag string) bool {
	if doublestar.MatchUnvalidated(p.glob, relFrag) {
		return true
	}
	// An unanchored pattern with no internal "/" matches at any depth,
	// mirroring gitignore's convention for bare patterns like "*.log".
	if !p.anchored && !strings.Contains(p.glob, "/") {
		if doublestar.MatchUnvalidated(p.glob, path.Base(relFrag)) {
			return true
		}
	}
	return false
}

// matchesAnyAncestorDir reports whether p (a dir-only pattern) matches
// any ancestor directory of relFrag, i.e. whether relFrag lives under a
// directory the pattern selects.
func (p pattern) matchesAnyAncestorDir(relFrag string) bool {
	dir := path.Dir(relFrag)
	for dir != "." && dir != "/" {
		if p.matches(dir) {
			return true
		}
		dir = path.Dir(dir)
	}
	return false
}
