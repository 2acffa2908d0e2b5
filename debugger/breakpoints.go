package debugger

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"

	"github.com/fansqz/node-debugger/constants"
	"github.com/fansqz/node-debugger/protocol"
	"github.com/fansqz/node-debugger/sourcemap"
	"github.com/fansqz/node-debugger/utils"
	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"
)

const functionSelectorKey = "function:"

// registeredBreakpoint is one breakpoint the runtime accepted.
type registeredBreakpoint struct {
	runtimeId  int
	scriptName string
	line       int
}

// BreakpointManager owns every breakpoint of the session. DAP semantics are
// full replacement per source: each setBreakpoints request carries the
// complete desired set for one file, so the previous set for that file is
// cleared before the new one is installed. Results are reported 1:1 in
// request order.
type BreakpointManager struct {
	client   *protocol.Client
	resolver *sourcemap.Resolver
	config   *Config

	mu         sync.Mutex
	bySelector map[string][]registeredBreakpoint

	exceptionAll      bool
	exceptionUncaught bool
}

func NewBreakpointManager(client *protocol.Client, resolver *sourcemap.Resolver, config *Config) *BreakpointManager {
	return &BreakpointManager{
		client:     client,
		resolver:   resolver,
		config:     config,
		bySelector: map[string][]registeredBreakpoint{},
	}
}

// SetBreakpoints replaces the breakpoints of one source file.
func (b *BreakpointManager) SetBreakpoints(ctx context.Context, source dap.Source, breakpoints []dap.SourceBreakpoint) ([]dap.Breakpoint, error) {
	if source.Path == "" {
		// script sources fetched by reference cannot take breakpoints here
		results := make([]dap.Breakpoint, len(breakpoints))
		for i, bp := range breakpoints {
			results[i] = dap.Breakpoint{Verified: false, Line: bp.Line, Message: "breakpoints need a file path"}
		}
		return results, nil
	}

	localPath := source.Path
	generatedPath := localPath
	mapped := false
	if b.resolver.Enabled() {
		if g, ok := b.resolver.MapPathFromSource(localPath); ok {
			generatedPath = g
			mapped = true
		}
	}
	remotePath := b.localToRemote(generatedPath)
	selectorType, target := makeScriptSelector(remotePath)
	selectorKey := selectorType + ":" + sourcemap.NormalizePath(remotePath)

	b.clearSelector(ctx, selectorKey)

	results := make([]dap.Breakpoint, len(breakpoints))
	registered := make([]registeredBreakpoint, 0, len(breakpoints))
	for i, bp := range breakpoints {
		requestedLine := bp.Line
		// runtime coordinates are 0-based
		line := requestedLine - 1
		var column *int
		if mapped {
			position, ok := b.resolver.MapFromSource(localPath, line, 0, sourcemap.GreatestLowerBound)
			if !ok {
				position, ok = b.resolver.MapFromSource(localPath, line, 0, sourcemap.LeastUpperBound)
			}
			if !ok {
				results[i] = dap.Breakpoint{Verified: false, Line: requestedLine, Message: "no generated code for this line"}
				continue
			}
			line = position.Line
			c := position.Column
			column = &c
		}

		response, err := b.client.Command(ctx, "setbreakpoint", &protocol.SetBreakpointArgs{
			Type:      selectorType,
			Target:    target,
			Line:      line,
			Column:    column,
			Condition: bp.Condition,
		})
		if err != nil {
			logrus.Warnf("[Breakpoints] setbreakpoint %s:%d failed: %v", remotePath, line, err)
			results[i] = dap.Breakpoint{Verified: false, Line: requestedLine, Message: err.Error()}
			continue
		}
		if !response.Success {
			results[i] = dap.Breakpoint{Verified: false, Line: requestedLine, Message: response.Message}
			continue
		}
		body := protocol.SetBreakpointResponseBody{}
		if err := response.BodyAs(&body); err != nil {
			results[i] = dap.Breakpoint{Verified: false, Line: requestedLine, Message: err.Error()}
			continue
		}

		actualLine := line
		verified := false
		if len(body.ActualLocations) > 0 {
			actualLine = body.ActualLocations[0].Line
			verified = true
		}
		registered = append(registered, registeredBreakpoint{
			runtimeId:  body.Breakpoint,
			scriptName: remotePath,
			line:       actualLine,
		})

		reportedLine := actualLine + 1
		if mapped {
			if src, ok := b.resolver.MapToSource(generatedPath, actualLine, 0, sourcemap.GreatestLowerBound); ok {
				reportedLine = src.Line + 1
			} else {
				reportedLine = requestedLine
			}
		}
		results[i] = dap.Breakpoint{
			Id:       body.Breakpoint,
			Verified: verified,
			Line:     reportedLine,
			Source:   &dap.Source{Name: filepath.Base(localPath), Path: localPath},
		}
		if b.config.TraceEnabled(constants.TraceBreakpoint) {
			logrus.Debugf("[Breakpoints] %s:%d -> runtime %d at line %d", localPath, requestedLine, body.Breakpoint, actualLine)
		}
	}

	b.mu.Lock()
	b.bySelector[selectorKey] = registered
	b.mu.Unlock()
	return results, nil
}

// SetFunctionBreakpoints replaces the whole function breakpoint set.
func (b *BreakpointManager) SetFunctionBreakpoints(ctx context.Context, breakpoints []dap.FunctionBreakpoint) ([]dap.Breakpoint, error) {
	b.clearSelector(ctx, functionSelectorKey)

	results := make([]dap.Breakpoint, len(breakpoints))
	registered := make([]registeredBreakpoint, 0, len(breakpoints))
	for i, bp := range breakpoints {
		response, err := b.client.Command(ctx, "setbreakpoint", &protocol.SetBreakpointArgs{
			Type:      "function",
			Target:    bp.Name,
			Condition: bp.Condition,
		})
		if err != nil {
			results[i] = dap.Breakpoint{Verified: false, Message: err.Error()}
			continue
		}
		if !response.Success {
			results[i] = dap.Breakpoint{Verified: false, Message: response.Message}
			continue
		}
		body := protocol.SetBreakpointResponseBody{}
		if err := response.BodyAs(&body); err != nil {
			results[i] = dap.Breakpoint{Verified: false, Message: err.Error()}
			continue
		}
		registered = append(registered, registeredBreakpoint{runtimeId: body.Breakpoint})
		results[i] = dap.Breakpoint{Id: body.Breakpoint, Verified: true}
	}

	b.mu.Lock()
	b.bySelector[functionSelectorKey] = registered
	b.mu.Unlock()
	return results, nil
}

// SetExceptionBreakpoints applies the exception pause policy. Both flags are
// always written so deselecting a filter turns it off again.
func (b *BreakpointManager) SetExceptionBreakpoints(ctx context.Context, filters []string) error {
	selected := utils.List2set(filters)
	all := selected.Contains("all")
	uncaught := selected.Contains("uncaught")

	b.mu.Lock()
	changedAll := all != b.exceptionAll
	changedUncaught := uncaught != b.exceptionUncaught
	b.exceptionAll = all
	b.exceptionUncaught = uncaught
	b.mu.Unlock()

	if changedAll {
		if err := b.setExceptionBreak(ctx, "all", all); err != nil {
			return err
		}
	}
	if changedUncaught {
		if err := b.setExceptionBreak(ctx, "uncaught", uncaught); err != nil {
			return err
		}
	}
	return nil
}

func (b *BreakpointManager) setExceptionBreak(ctx context.Context, breakType string, enabled bool) error {
	response, err := b.client.Command(ctx, "setexceptionbreak", &protocol.SetExceptionBreakArgs{
		Type:    breakType,
		Enabled: enabled,
	})
	if err != nil {
		return err
	}
	if !response.Success {
		return fmt.Errorf("setexceptionbreak %s: %s", breakType, response.Message)
	}
	return nil
}

// HasBreakpointAt reports whether a registered breakpoint sits on the given
// runtime location. Used for the entry stop corner case: stopOnEntry off but
// a user breakpoint on the first line.
func (b *BreakpointManager) HasBreakpointAt(scriptName string, line int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, registered := range b.bySelector {
		for _, bp := range registered {
			if bp.scriptName != "" && sourcemap.PathEquals(bp.scriptName, scriptName) && bp.line == line {
				return true
			}
		}
	}
	return false
}

// clearSelector removes the previously installed runtime breakpoints for one
// selector. Clear failures are logged and ignored; a dangling runtime
// breakpoint is better than refusing the new set.
func (b *BreakpointManager) clearSelector(ctx context.Context, selectorKey string) {
	b.mu.Lock()
	previous := b.bySelector[selectorKey]
	delete(b.bySelector, selectorKey)
	b.mu.Unlock()
	for _, bp := range previous {
		response, err := b.client.Command(ctx, "clearbreakpoint", &protocol.ClearBreakpointArgs{Breakpoint: bp.runtimeId})
		if err != nil {
			logrus.Warnf("[Breakpoints] clearbreakpoint %d failed: %v", bp.runtimeId, err)
			continue
		}
		if !response.Success {
			logrus.Warnf("[Breakpoints] clearbreakpoint %d rejected: %s", bp.runtimeId, response.Message)
		}
	}
}

// localToRemote rewrites a client-side path into the runtime's filesystem
// when a remote root is configured.
func (b *BreakpointManager) localToRemote(localPath string) string {
	return translateRoot(localPath, b.config.LocalRoot, b.config.RemoteRoot)
}

// makeScriptSelector picks how the runtime should match the target script.
// Case-insensitive filesystems need a regexp match because the runtime
// compares script names byte for byte.
func makeScriptSelector(remotePath string) (string, string) {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		return protocol.BreakpointTypeScriptRegExp, caseInsensitivePathRegExp(remotePath)
	}
	return protocol.BreakpointTypeScript, remotePath
}

// caseInsensitivePathRegExp builds a regexp that matches the path with any
// casing and either separator style.
func caseInsensitivePathRegExp(p string) string {
	var sb strings.Builder
	for _, r := range p {
		switch {
		case r == '/' || r == '\\':
			sb.WriteString(`[/\\]`)
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			sb.WriteString("[")
			sb.WriteRune(toLowerRune(r))
			sb.WriteRune(toUpperRune(r))
			sb.WriteString("]")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return "^" + sb.String() + "$"
}

func toLowerRune(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}

func toUpperRune(r rune) rune {
	if r >= 'a' && r <= 'z' {
		return r - ('a' - 'A')
	}
	return r
}

// translateRoot swaps the prefix of a path between the local and remote
// filesystem roots.
func translateRoot(p, fromRoot, toRoot string) string {
	if fromRoot == "" || toRoot == "" {
		return p
	}
	normalized := sourcemap.NormalizePath(p)
	prefix := sourcemap.NormalizePath(fromRoot)
	if !strings.HasPrefix(normalized, prefix) {
		return p
	}
	rest := strings.TrimPrefix(normalized, prefix)
	rest = strings.TrimPrefix(rest, "/")
	if rest == "" {
		return toRoot
	}
	return strings.TrimSuffix(toRoot, "/") + "/" + rest
}
