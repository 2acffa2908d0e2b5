package sourcemap

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
)

// Bias selects the tie-breaking rule when no exact mapping exists for a
// queried position.
type Bias int

const (
	// GreatestLowerBound returns the nearest mapping at or before the position.
	GreatestLowerBound Bias = iota
	// LeastUpperBound returns the nearest mapping at or after the position.
	LeastUpperBound
)

// mapping is one decoded segment. Lines are 1-based, columns 0-based; the
// resolver converts from the 0-based public convention at its boundary.
type mapping struct {
	genLine   int
	genCol    int
	srcIndex  int // -1 when the segment names no source
	srcLine   int
	srcCol    int
	nameIndex int
}

// Position is a resolved generated-side position.
type Position struct {
	Path   string
	Line   int
	Column int
}

// SourcePosition is a resolved original-side position. Content carries the
// inlined source text when the map embeds it, for sources without a file on
// disk.
type SourcePosition struct {
	Path    string
	Line    int
	Column  int
	Content string
}

// SourceMap is an immutable parsed map. It is parsed once and cached for the
// process lifetime.
type SourceMap struct {
	GeneratedPath string
	Version       int
	SourceRoot    string
	Sources       []string

	sourcesContent []string
	names          []string
	// decoded segments ordered by generated position, plus a per-source
	// ordering for the reverse direction
	generated []mapping
	reverse   []mapping
	// absolute-ish source paths with sourceRoot applied, parallel to Sources
	resolvedSources []string
}

type rawSourceMap struct {
	Version        int      `json:"version"`
	File           string   `json:"file"`
	SourceRoot     string   `json:"sourceRoot"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent"`
	Names          []string `json:"names"`
	Mappings       string   `json:"mappings"`
}

// ParseSourceMap decodes a source map bound to the given generated file.
func ParseSourceMap(generatedPath string, data []byte) (*SourceMap, error) {
	raw := &rawSourceMap{}
	if err := json.Unmarshal(data, raw); err != nil {
		return nil, fmt.Errorf("parse source map: %w", err)
	}
	if raw.Version != 3 {
		return nil, fmt.Errorf("unsupported source map version %d", raw.Version)
	}
	sm := &SourceMap{
		GeneratedPath:  generatedPath,
		Version:        raw.Version,
		SourceRoot:     raw.SourceRoot,
		Sources:        raw.Sources,
		sourcesContent: raw.SourcesContent,
		names:          raw.Names,
	}
	sm.resolveSourcePaths()
	if err := sm.decodeMappings(raw.Mappings); err != nil {
		return nil, err
	}
	sort.SliceStable(sm.generated, func(i, j int) bool {
		return lessGen(sm.generated[i], sm.generated[j])
	})
	for _, m := range sm.generated {
		if m.srcIndex >= 0 {
			sm.reverse = append(sm.reverse, m)
		}
	}
	sort.SliceStable(sm.reverse, func(i, j int) bool {
		return lessSrc(sm.reverse[i], sm.reverse[j])
	})
	return sm, nil
}

func lessGen(a, b mapping) bool {
	if a.genLine != b.genLine {
		return a.genLine < b.genLine
	}
	return a.genCol < b.genCol
}

func lessSrc(a, b mapping) bool {
	if a.srcIndex != b.srcIndex {
		return a.srcIndex < b.srcIndex
	}
	if a.srcLine != b.srcLine {
		return a.srcLine < b.srcLine
	}
	return a.srcCol < b.srcCol
}

// resolveSourcePaths applies sourceRoot and anchors relative sources next to
// the generated file, the same way consumers of URL-like sources do.
func (s *SourceMap) resolveSourcePaths() {
	base := path.Dir(strings.ReplaceAll(s.GeneratedPath, "\\", "/"))
	s.resolvedSources = make([]string, len(s.Sources))
	for i, src := range s.Sources {
		p := src
		if s.SourceRoot != "" {
			p = strings.TrimSuffix(s.SourceRoot, "/") + "/" + strings.TrimPrefix(p, "/")
		}
		p = strings.ReplaceAll(p, "\\", "/")
		if !path.IsAbs(p) && !strings.Contains(p, "://") {
			p = path.Join(base, p)
		}
		s.resolvedSources[i] = p
	}
}

// decodeMappings expands the VLQ segment string. Lines in the encoding are
// 0-based; they are stored 1-based.
func (s *SourceMap) decodeMappings(encoded string) error {
	genLine := 1
	genCol, srcIndex, srcLine, srcCol, nameIndex := 0, 0, 0, 0, 0

	pos := 0
	segStart := 0
	flush := func(end int) error {
		if end == segStart {
			return nil
		}
		fields := 0
		p := segStart
		var values [5]int
		for p < end {
			v, next, err := decodeVLQ(encoded, p)
			if err != nil {
				return err
			}
			if fields < len(values) {
				values[fields] = v
			}
			fields++
			p = next
		}
		genCol += values[0]
		m := mapping{genLine: genLine, genCol: genCol, srcIndex: -1, nameIndex: -1}
		if fields >= 4 {
			srcIndex += values[1]
			srcLine += values[2]
			srcCol += values[3]
			m.srcIndex = srcIndex
			m.srcLine = srcLine + 1
			m.srcCol = srcCol
		}
		if fields >= 5 {
			nameIndex += values[4]
			m.nameIndex = nameIndex
		}
		s.generated = append(s.generated, m)
		return nil
	}

	for pos < len(encoded) {
		switch encoded[pos] {
		case ';':
			if err := flush(pos); err != nil {
				return err
			}
			genLine++
			genCol = 0
			segStart = pos + 1
		case ',':
			if err := flush(pos); err != nil {
				return err
			}
			segStart = pos + 1
		}
		pos++
	}
	return flush(len(encoded))
}

// SourcePaths returns the resolved source paths this map covers.
func (s *SourceMap) SourcePaths() []string {
	return s.resolvedSources
}

// Content returns the inlined content for a source path, or "".
func (s *SourceMap) Content(sourcePath string) string {
	for i, src := range s.resolvedSources {
		if PathEquals(src, sourcePath) && i < len(s.sourcesContent) {
			return s.sourcesContent[i]
		}
	}
	return ""
}

func (s *SourceMap) sourceIndex(sourcePath string) int {
	for i, src := range s.resolvedSources {
		if PathEquals(src, sourcePath) {
			return i
		}
	}
	return -1
}

// OriginalPositionFor maps a generated position (1-based line, 0-based
// column) to its original source position.
func (s *SourceMap) OriginalPositionFor(line, column int, bias Bias) (*SourcePosition, bool) {
	n := len(s.generated)
	if n == 0 {
		return nil, false
	}
	target := mapping{genLine: line, genCol: column}
	idx, ok := findBiased(n, bias,
		func(i int) bool { return !lessGen(target, s.generated[i]) },
		func(i int) bool { return s.generated[i].genLine == line && s.generated[i].genCol == column })
	if !ok {
		return nil, false
	}
	m := s.generated[idx]
	if m.srcIndex < 0 || m.srcIndex >= len(s.resolvedSources) {
		return nil, false
	}
	sourcePath := s.resolvedSources[m.srcIndex]
	return &SourcePosition{
		Path:    sourcePath,
		Line:    m.srcLine,
		Column:  m.srcCol,
		Content: s.Content(sourcePath),
	}, true
}

// GeneratedPositionFor maps an original source position (1-based line,
// 0-based column) to the generated position.
func (s *SourceMap) GeneratedPositionFor(sourcePath string, line, column int, bias Bias) (*Position, bool) {
	srcIndex := s.sourceIndex(sourcePath)
	if srcIndex < 0 {
		return nil, false
	}
	// restrict the reverse slice to this source
	lo := sort.Search(len(s.reverse), func(i int) bool { return s.reverse[i].srcIndex >= srcIndex })
	hi := sort.Search(len(s.reverse), func(i int) bool { return s.reverse[i].srcIndex > srcIndex })
	slice := s.reverse[lo:hi]
	if len(slice) == 0 {
		return nil, false
	}
	target := mapping{srcIndex: srcIndex, srcLine: line, srcCol: column}
	idx, ok := findBiased(len(slice), bias,
		func(i int) bool { return !lessSrc(target, slice[i]) },
		func(i int) bool { return slice[i].srcLine == line && slice[i].srcCol == column })
	if !ok {
		return nil, false
	}
	m := slice[idx]
	return &Position{Path: s.GeneratedPath, Line: m.genLine, Column: m.genCol}, true
}

// findBiased locates the mapping selected by bias in a sorted slice of n
// mappings. atOrBefore(i) reports element i <= target, exact(i) reports an
// exact position hit. An exact hit wins under either bias; otherwise GLB
// takes the last element before the target and LUB the first one after it.
func findBiased(n int, bias Bias, atOrBefore func(int) bool, exact func(int) bool) (int, bool) {
	firstAfter := sort.Search(n, func(i int) bool { return !atOrBefore(i) })
	if firstAfter > 0 && exact(firstAfter-1) {
		return firstAfter - 1, true
	}
	if bias == GreatestLowerBound {
		if firstAfter == 0 {
			return 0, false
		}
		return firstAfter - 1, true
	}
	if firstAfter < n {
		return firstAfter, true
	}
	return 0, false
}
