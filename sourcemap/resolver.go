// Package sourcemap provides bidirectional translation between original
// source positions and generated code positions, with heuristic discovery of
// map files and process-lifetime caching.
package sourcemap

import (
	"encoding/base64"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// trailerScanLines bounds how far from the end of a generated file the
// sourceMappingURL trailer is searched for.
const trailerScanLines = 10

// Options scope discovery. SourceMaps gates the whole resolver; OutDir and
// OutFiles widen the search to a build output tree.
type Options struct {
	SourceMaps bool
	OutDir     string
	OutFiles   []string
	Trace      bool
}

// resolveAttempt is the outcome of one discovery strategy: either a map file
// path on disk, an inline payload, or a miss that falls through to the next
// strategy.
type resolveAttempt struct {
	found   bool
	mapPath string
	data    []byte
}

type strategy struct {
	name string
	run  func(generatedPath string) resolveAttempt
}

// Resolver caches parsed maps three ways: by normalized map path, by
// generated path and by each constituent source path. All three are updated
// together when a map is registered; maps are immutable once parsed.
type Resolver struct {
	options Options

	mu              sync.Mutex
	byMapPath       map[string]*SourceMap
	byGeneratedPath map[string]*SourceMap
	bySourcePath    map[string]*SourceMap
	// generated paths that already failed every strategy; mapping stays
	// disabled for them, which is not an error
	unmapped        map[string]bool
	outDirScanned   bool
	outFilesScanned bool

	strategies []strategy
}

func NewResolver(options Options) *Resolver {
	r := &Resolver{
		options:         options,
		byMapPath:       map[string]*SourceMap{},
		byGeneratedPath: map[string]*SourceMap{},
		bySourcePath:    map[string]*SourceMap{},
		unmapped:        map[string]bool{},
	}
	// ordered, first success wins, every miss falls through silently
	r.strategies = []strategy{
		{"sourceMappingURL", r.strategyTrailerURL},
		{"dataURL", r.strategyDataURL},
		{"siblingFile", r.strategySibling},
		{"outDirScan", r.strategyOutDirScan},
		{"outFilesGlob", r.strategyOutFilesGlob},
		{"srcOutSwap", r.strategySrcOutSwap},
	}
	return r
}

// Enabled reports whether source map handling is active at all.
func (r *Resolver) Enabled() bool {
	return r.options.SourceMaps
}

// MapPathFromSource returns the generated file declared by the map whose
// source list contains sourcePath.
func (r *Resolver) MapPathFromSource(sourcePath string) (string, bool) {
	if !r.options.SourceMaps {
		return "", false
	}
	if sm := r.mapForSource(sourcePath); sm != nil {
		return sm.GeneratedPath, true
	}
	return "", false
}

// MapFromSource translates an original source position to the generated
// position. Lines and columns are 0-based on both sides of this API; the
// consumer works 1-based internally.
func (r *Resolver) MapFromSource(sourcePath string, line, column int, bias Bias) (*Position, bool) {
	if !r.options.SourceMaps {
		return nil, false
	}
	sm := r.mapForSource(sourcePath)
	if sm == nil {
		return nil, false
	}
	position, ok := sm.GeneratedPositionFor(sourcePath, line+1, column, bias)
	if !ok {
		return nil, false
	}
	position.Line--
	r.trace("mapped %s:%d:%d -> %s:%d:%d", sourcePath, line, column, position.Path, position.Line, position.Column)
	return position, true
}

// MapToSource translates a generated position back to the original source.
// Lines and columns are 0-based on both sides of this API.
func (r *Resolver) MapToSource(generatedPath string, line, column int, bias Bias) (*SourcePosition, bool) {
	if !r.options.SourceMaps {
		return nil, false
	}
	sm := r.mapForGenerated(generatedPath)
	if sm == nil {
		return nil, false
	}
	position, ok := sm.OriginalPositionFor(line+1, column, bias)
	if !ok {
		return nil, false
	}
	position.Line--
	r.trace("mapped %s:%d:%d -> %s:%d:%d", generatedPath, line, column, position.Path, position.Line, position.Column)
	return position, true
}

// RegisterMap adds a parsed map to every index. The forward and reverse
// indices must stay consistent, so this is the only registration path.
func (r *Resolver) RegisterMap(mapPath string, sm *SourceMap) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registerLocked(mapPath, sm)
}

func (r *Resolver) registerLocked(mapPath string, sm *SourceMap) {
	if mapPath != "" {
		r.byMapPath[NormalizePath(mapPath)] = sm
	}
	r.byGeneratedPath[NormalizePath(sm.GeneratedPath)] = sm
	for _, src := range sm.SourcePaths() {
		r.bySourcePath[NormalizePath(src)] = sm
	}
}

func (r *Resolver) mapForGenerated(generatedPath string) *SourceMap {
	key := NormalizePath(generatedPath)
	r.mu.Lock()
	if sm, ok := r.byGeneratedPath[key]; ok {
		r.mu.Unlock()
		return sm
	}
	if r.unmapped[key] {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	for _, s := range r.strategies {
		attempt := s.run(generatedPath)
		if attempt.found {
			if sm := r.loadAttempt(generatedPath, attempt); sm != nil {
				r.trace("strategy %s resolved map for %s", s.name, generatedPath)
				return sm
			}
			continue
		}
		// a strategy may register maps directly (the outDir scan does)
		r.mu.Lock()
		sm, ok := r.byGeneratedPath[key]
		r.mu.Unlock()
		if ok {
			r.trace("strategy %s resolved map for %s", s.name, generatedPath)
			return sm
		}
	}

	r.mu.Lock()
	r.unmapped[key] = true
	r.mu.Unlock()
	return nil
}

func (r *Resolver) mapForSource(sourcePath string) *SourceMap {
	key := NormalizePath(sourcePath)
	r.mu.Lock()
	if sm, ok := r.bySourcePath[key]; ok {
		r.mu.Unlock()
		return sm
	}
	r.mu.Unlock()

	// the reverse index only fills as maps load; scan the output tree once
	r.scanOutDir()
	r.scanOutFiles()

	r.mu.Lock()
	if sm, ok := r.bySourcePath[key]; ok {
		r.mu.Unlock()
		return sm
	}
	r.mu.Unlock()

	// last resort: guess the generated file by the src -> out convention
	// and the .js extension, then run the forward discovery on the guess
	if guess, ok := swapPathSegment(sourcePath, "src", "out"); ok {
		guess = swapExtension(guess, ".js")
		if sm := r.mapForGenerated(guess); sm != nil && sm.sourceIndex(sourcePath) >= 0 {
			return sm
		}
	}
	return nil
}

// loadAttempt turns a successful attempt into a cached SourceMap. Parse
// failures degrade to a miss.
func (r *Resolver) loadAttempt(generatedPath string, attempt resolveAttempt) *SourceMap {
	data := attempt.data
	if data == nil {
		var err error
		data, err = os.ReadFile(attempt.mapPath)
		if err != nil {
			return nil
		}
	}
	sm, err := ParseSourceMap(generatedPath, data)
	if err != nil {
		r.trace("ignoring unparseable map for %s: %v", generatedPath, err)
		return nil
	}
	r.mu.Lock()
	r.registerLocked(attempt.mapPath, sm)
	r.mu.Unlock()
	return sm
}

// scanMapURL extracts the sourceMappingURL trailer from the last few lines of
// the generated content.
func scanMapURL(generatedPath string) string {
	content, err := os.ReadFile(generatedPath)
	if err != nil {
		return ""
	}
	lines := strings.Split(string(content), "\n")
	start := len(lines) - trailerScanLines
	if start < 0 {
		start = 0
	}
	for i := len(lines) - 1; i >= start; i-- {
		line := strings.TrimSpace(lines[i])
		for _, marker := range []string{"//# sourceMappingURL=", "//@ sourceMappingURL="} {
			if strings.HasPrefix(line, marker) {
				return strings.TrimSpace(strings.TrimPrefix(line, marker))
			}
		}
	}
	return ""
}

// strategyTrailerURL follows a file-path sourceMappingURL trailer.
func (r *Resolver) strategyTrailerURL(generatedPath string) resolveAttempt {
	url := scanMapURL(generatedPath)
	if url == "" || strings.HasPrefix(url, "data:") {
		return resolveAttempt{}
	}
	mapPath := url
	if !filepath.IsAbs(mapPath) {
		mapPath = filepath.Join(filepath.Dir(generatedPath), mapPath)
	}
	if _, err := os.Stat(mapPath); err != nil {
		return resolveAttempt{}
	}
	return resolveAttempt{found: true, mapPath: mapPath}
}

// strategyDataURL decodes an inline base64 data-URL map payload.
func (r *Resolver) strategyDataURL(generatedPath string) resolveAttempt {
	url := scanMapURL(generatedPath)
	if !strings.HasPrefix(url, "data:") {
		return resolveAttempt{}
	}
	idx := strings.Index(url, "base64,")
	if idx < 0 {
		return resolveAttempt{}
	}
	data, err := base64.StdEncoding.DecodeString(url[idx+len("base64,"):])
	if err != nil {
		return resolveAttempt{}
	}
	return resolveAttempt{found: true, data: data}
}

// strategySibling tries <generatedPath>.map next to the file.
func (r *Resolver) strategySibling(generatedPath string) resolveAttempt {
	mapPath := generatedPath + ".map"
	if _, err := os.Stat(mapPath); err != nil {
		return resolveAttempt{}
	}
	return resolveAttempt{found: true, mapPath: mapPath}
}

// strategyOutDirScan loads every map under the configured output directory;
// hits surface through the generated-path index it fills.
func (r *Resolver) strategyOutDirScan(generatedPath string) resolveAttempt {
	r.scanOutDir()
	return resolveAttempt{}
}

// strategyOutFilesGlob loads the maps of every file matching the configured
// outFiles patterns; hits surface through the generated-path index.
func (r *Resolver) strategyOutFilesGlob(generatedPath string) resolveAttempt {
	r.scanOutFiles()
	return resolveAttempt{}
}

// strategySrcOutSwap supports the "source next to build output" convention.
func (r *Resolver) strategySrcOutSwap(generatedPath string) resolveAttempt {
	swapped, ok := swapPathSegment(generatedPath, "src", "out")
	if !ok {
		return resolveAttempt{}
	}
	mapPath := swapped + ".map"
	if _, err := os.Stat(mapPath); err != nil {
		return resolveAttempt{}
	}
	return resolveAttempt{found: true, mapPath: mapPath}
}

// scanOutDir walks OutDir once, registering every .map file found.
func (r *Resolver) scanOutDir() {
	r.mu.Lock()
	if r.outDirScanned || r.options.OutDir == "" {
		r.mu.Unlock()
		return
	}
	r.outDirScanned = true
	r.mu.Unlock()

	err := filepath.WalkDir(r.options.OutDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(p, ".map") {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil
		}
		generated := strings.TrimSuffix(p, ".map")
		sm, err := ParseSourceMap(generated, data)
		if err != nil {
			return nil
		}
		r.RegisterMap(p, sm)
		return nil
	})
	if err != nil {
		r.trace("outDir scan failed: %v", err)
	}
}

// scanOutFiles globs the configured outFiles patterns once, registering the
// map of every matched build artifact. Patterns may match the generated files
// themselves or their .map files directly.
func (r *Resolver) scanOutFiles() {
	r.mu.Lock()
	if r.outFilesScanned || len(r.options.OutFiles) == 0 {
		r.mu.Unlock()
		return
	}
	r.outFilesScanned = true
	r.mu.Unlock()

	for _, pattern := range r.options.OutFiles {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			r.trace("bad outFiles pattern %q: %v", pattern, err)
			continue
		}
		for _, match := range matches {
			mapPath := match + ".map"
			generated := match
			if strings.HasSuffix(match, ".map") {
				mapPath = match
				generated = strings.TrimSuffix(match, ".map")
			}
			data, err := os.ReadFile(mapPath)
			if err != nil {
				continue
			}
			sm, err := ParseSourceMap(generated, data)
			if err != nil {
				r.trace("ignoring unparseable map %s: %v", mapPath, err)
				continue
			}
			r.RegisterMap(mapPath, sm)
		}
	}
}

func (r *Resolver) trace(format string, args ...interface{}) {
	if r.options.Trace {
		logrus.Infof("[SourceMaps] "+format, args...)
	}
}
