package logfile

import (
	"regexp"
	"strings"

	"github.com/xtxerr/xferstat/internal/config"
	xerrors "github.com/xtxerr/xferstat/internal/errors"
)

// Filter decides whether a transfer is relevant. It is built once per run;
// accession patterns are compiled at construction and reused for every line.
type Filter struct {
	prefixes []string
	statuses map[string]struct{}
	patterns []*regexp.Regexp
}

// NewFilter builds a filter from the allowed path prefixes, the allowed
// completion statuses and the ordered accession patterns.
func NewFilter(prefixes, statuses, patterns []string) (*Filter, error) {
	v := xerrors.NewValidationErrors()

	if len(prefixes) == 0 {
		v.AddMissing("resource_identifiers")
	}
	if len(statuses) == 0 {
		v.AddMissing("completeness")
	}
	if len(patterns) == 0 {
		v.AddMissing("accession_pattern")
	}

	f := &Filter{
		prefixes: append([]string(nil), prefixes...),
		statuses: make(map[string]struct{}, len(statuses)),
		patterns: make([]*regexp.Regexp, 0, len(patterns)),
	}

	for _, s := range statuses {
		f.statuses[NormalizeStatus(s)] = struct{}{}
	}

	for _, p := range patterns {
		re, err := regexp.Compile(config.NormalizePattern(p))
		if err != nil {
			v.Add(xerrors.NewInvalidPattern(p, err))
			continue
		}
		f.patterns = append(f.patterns, re)
	}

	if err := v.Err(); err != nil {
		return nil, err
	}
	return f, nil
}

// FilterFromConfig builds the filter described by cfg.
func FilterFromConfig(cfg *config.Config) (*Filter, error) {
	return NewFilter(cfg.ResourceIdentifiers, cfg.Completeness, cfg.AccessionPattern)
}

// NormalizeStatus lower-cases and trims a completion status.
func NormalizeStatus(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// HasPrefix reports whether path starts with one of the allowed prefixes.
func (f *Filter) HasPrefix(path string) bool {
	for _, p := range f.prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// AllowsStatus reports whether the normalized status is allowed.
func (f *Filter) AllowsStatus(status string) bool {
	_, ok := f.statuses[NormalizeStatus(status)]
	return ok
}

// Accession returns the accession found in path by the first pattern, in
// configured order, that matches. A pattern is searched in the whole path
// first, then tried against each path segment so that anchored patterns
// such as ^PXD\d{6}$ match the accession directory.
func (f *Filter) Accession(path string) (string, bool) {
	segments := strings.Split(path, "/")
	for _, re := range f.patterns {
		if m := re.FindString(path); m != "" {
			return m, true
		}
		for _, seg := range segments {
			if seg == "" {
				continue
			}
			if m := re.FindString(seg); m != "" {
				return m, true
			}
		}
	}
	return "", false
}

// Filename returns the final segment of path.
func Filename(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
