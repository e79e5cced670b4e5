// Package pathinfo parses dotted, wildcard-aware state paths such as
// `users.*.posts.*.title` into immutable descriptors.
//
// Descriptors are interned: two lookups with the same string return the same
// *PathInfo, so callers may use the pointer as a map key.
package pathinfo

import (
	"fmt"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	mapset "github.com/deckarep/golang-set/v2"
)

// Wildcard marks a segment that stands for "any element of the list here".
const Wildcard = "*"

// PathInfo is the immutable descriptor of one path string.
type PathInfo struct {
	ID                uint64
	Path              string
	Segments          []string
	LastSegment       string
	WildcardPositions []int
	WildcardCount     int
	ParentPathInfo    *PathInfo

	// Cumulative prefixes, e.g. a, a.*, a.*.b for a.*.b.
	CumulativePaths []string

	// WildcardPaths are the prefixes ending in a wildcard (users.*,
	// users.*.posts.*) and WildcardParentPaths the list paths that own them
	// (users, users.*.posts).
	WildcardPaths           []string
	WildcardPathSet         mapset.Set[string]
	WildcardPathInfos       []*PathInfo
	WildcardParentPaths     []string
	WildcardParentPathInfos []*PathInfo
}

// Interner memoizes PathInfo by path string.
type Interner struct {
	mu    sync.Mutex
	infos map[string]*PathInfo
}

func NewInterner() *Interner {
	return &Interner{infos: map[string]*PathInfo{}}
}

var defaultInterner = NewInterner()

// Parse returns the interned descriptor for path from the process-wide interner.
func Parse(path string) (*PathInfo, error) {
	return defaultInterner.Parse(path)
}

// Get is Parse for paths known to be valid; it panics otherwise.
func Get(path string) *PathInfo {
	info, err := defaultInterner.Parse(path)
	if err != nil {
		panic(err)
	}
	return info
}

func (in *Interner) Parse(path string) (*PathInfo, error) {
	in.mu.Lock()
	info, ok := in.infos[path]
	in.mu.Unlock()
	if ok {
		return info, nil
	}

	segments, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	info, err = in.build(path, segments)
	if err != nil {
		return nil, err
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if existing, ok := in.infos[path]; ok {
		return existing, nil
	}
	in.infos[path] = info
	return info, nil
}

// Len reports how many paths have been interned.
func (in *Interner) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.infos)
}

func splitPath(path string) ([]string, error) {
	if path == "" {
		return nil, &PathError{Op: "parse", Path: path, Err: ErrEmptyPath}
	}
	segments := strings.Split(path, ".")
	for _, segment := range segments {
		if segment == "" {
			return nil, &PathError{Op: "parse", Path: path, Err: ErrEmptySegment}
		}
		if segment != Wildcard && strings.Contains(segment, Wildcard) {
			return nil, &PathError{Op: "parse", Path: path, Err: fmt.Errorf("%w: %q", ErrPartialSegment, segment)}
		}
	}
	return segments, nil
}

func (in *Interner) build(path string, segments []string) (*PathInfo, error) {
	info := &PathInfo{
		ID:              xxhash.Sum64String(path),
		Path:            path,
		Segments:        segments,
		LastSegment:     segments[len(segments)-1],
		WildcardPathSet: mapset.NewThreadUnsafeSet[string](),
		CumulativePaths: make([]string, 0, len(segments)),
	}

	for i, segment := range segments {
		prefix := strings.Join(segments[:i+1], ".")
		info.CumulativePaths = append(info.CumulativePaths, prefix)
		if segment != Wildcard {
			continue
		}
		if i == 0 {
			return nil, &PathError{Op: "parse", Path: path, Err: ErrLeadingWildcard}
		}
		info.WildcardPositions = append(info.WildcardPositions, i)
		info.WildcardPaths = append(info.WildcardPaths, prefix)
		info.WildcardPathSet.Add(prefix)
		info.WildcardParentPaths = append(info.WildcardParentPaths, strings.Join(segments[:i], "."))
	}
	info.WildcardCount = len(info.WildcardPositions)

	if len(segments) > 1 {
		parent, err := in.Parse(strings.Join(segments[:len(segments)-1], "."))
		if err != nil {
			return nil, err
		}
		info.ParentPathInfo = parent
	}

	for i, wildcardPath := range info.WildcardPaths {
		if wildcardPath == path {
			info.WildcardPathInfos = append(info.WildcardPathInfos, info)
		} else {
			wpi, err := in.Parse(wildcardPath)
			if err != nil {
				return nil, err
			}
			info.WildcardPathInfos = append(info.WildcardPathInfos, wpi)
		}
		ppi, err := in.Parse(info.WildcardParentPaths[i])
		if err != nil {
			return nil, err
		}
		info.WildcardParentPathInfos = append(info.WildcardParentPathInfos, ppi)
	}
	return info, nil
}

// IsWildcardTerminal reports whether the path ends in a wildcard segment.
func (pi *PathInfo) IsWildcardTerminal() bool {
	return pi.LastSegment == Wildcard
}

// SharedWildcardDepth is the number of leading wildcard prefixes pi and other
// have in common. Wildcard prefixes are nested, so the intersection of the two
// sets is always a common prefix of both lists.
func (pi *PathInfo) SharedWildcardDepth(other *PathInfo) int {
	if pi.WildcardCount == 0 || other.WildcardCount == 0 {
		return 0
	}
	shared := pi.WildcardPathSet.Intersect(other.WildcardPathSet)
	return shared.Cardinality()
}

// Child returns the interned descriptor for pi extended by segment.
func (pi *PathInfo) Child(segment string) (*PathInfo, error) {
	return Parse(pi.Path + "." + segment)
}

func (pi *PathInfo) String() string {
	if pi == nil {
		return "<nil>"
	}
	return pi.Path
}
