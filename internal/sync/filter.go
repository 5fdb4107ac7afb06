package sync

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// defaultExcludes are skipped unless the exclude list is overridden
// explicitly. They cover OS litter and VCS bookkeeping nobody wants mirrored.
var defaultExcludes = []string{".DS_Store", ".git", ".hg", ".svn", "#recycle"}

// alwaysExclude names the engine's own files; they never sync regardless
// of configuration.
var alwaysExclude = map[string]bool{
	MetaFileName: true,
	LockFileName: true,
}

// metaTempPrefix matches the temp files the metadata store writes before
// renaming into place. A crash can leave one behind; it must not sync.
var metaTempPrefix = MetaFileName + ".tmp-"

// FilterResult says whether an entry participates in the sync and, when it
// does not, why.
type FilterResult struct {
	Included bool
	Reason   string
}

// Filter applies include/exclude glob patterns to entry names. Include
// patterns constrain files only (directories must stay visible so the
// walker can descend); exclude patterns apply to both.
type Filter struct {
	include []string
	exclude []string
}

// NewFilter validates the glob patterns and builds a filter. Empty include
// means "all files"; empty exclude falls back to the default exclusions.
func NewFilter(include, exclude []string) (*Filter, error) {
	if exclude == nil {
		exclude = defaultExcludes
	}

	for _, pat := range append(append([]string{}, include...), exclude...) {
		if !doublestar.ValidatePattern(pat) {
			return nil, fmt.Errorf("invalid filter pattern %q", pat)
		}
	}

	return &Filter{include: include, exclude: exclude}, nil
}

// ShouldSync decides whether a named entry participates.
func (f *Filter) ShouldSync(name string, isDir bool) FilterResult {
	if alwaysExclude[name] || strings.HasPrefix(name, metaTempPrefix) {
		return FilterResult{Reason: "sync bookkeeping file"}
	}

	for _, pat := range f.exclude {
		if match, _ := doublestar.Match(pat, name); match {
			return FilterResult{Reason: fmt.Sprintf("excluded by %q", pat)}
		}
	}

	if !isDir && len(f.include) > 0 {
		for _, pat := range f.include {
			if match, _ := doublestar.Match(pat, name); match {
				return FilterResult{Included: true}
			}
		}

		return FilterResult{Reason: "not matched by include patterns"}
	}

	return FilterResult{Included: true}
}
