package protocol

import (
	"encoding/json"
	"fmt"
)

// V8Ref points at a value by runtime handle. Handles are only valid between
// two stops; they must be resolved through the reference cache, never stored.
type V8Ref struct {
	Ref int `json:"ref"`
}

// V8Property describes one property of an object. V8 serializes numeric
// property names as JSON numbers, so Name needs to accept both shapes.
type V8Property struct {
	Name         interface{} `json:"name"`
	Ref          int         `json:"ref"`
	Attributes   int         `json:"attributes,omitempty"`
	PropertyType int         `json:"propertyType,omitempty"`
}

// NameString normalizes the property name to a string.
func (p *V8Property) NameString() string {
	switch n := p.Name.(type) {
	case string:
		return n
	case float64:
		return fmt.Sprintf("%.0f", n)
	default:
		return fmt.Sprintf("%v", n)
	}
}

// V8Object is a mirrored runtime value. Which fields are populated depends on
// Type: scripts carry Id/Source, functions Name/ScriptId, scalars Value/Text.
type V8Object struct {
	Handle       int             `json:"handle"`
	Type         string          `json:"type"`
	ClassName    string          `json:"className,omitempty"`
	Value        json.RawMessage `json:"value,omitempty"`
	Text         string          `json:"text,omitempty"`
	Properties   []V8Property    `json:"properties,omitempty"`
	ProtoObject  *V8Ref          `json:"protoObject,omitempty"`

	// functions
	Name         string `json:"name,omitempty"`
	InferredName string `json:"inferredName,omitempty"`
	ScriptId     int    `json:"scriptId,omitempty"`

	// scripts
	Id           int    `json:"id,omitempty"`
	Source       string `json:"source,omitempty"`
	LineOffset   int    `json:"lineOffset,omitempty"`
	ColumnOffset int    `json:"columnOffset,omitempty"`
	LineCount    int    `json:"lineCount,omitempty"`
	Line         int    `json:"line,omitempty"`
	Column       int    `json:"column,omitempty"`
}

// V8 object types we special-case.
const (
	V8TypeUndefined = "undefined"
	V8TypeNull      = "null"
	V8TypeBoolean   = "boolean"
	V8TypeNumber    = "number"
	V8TypeString    = "string"
	V8TypeObject    = "object"
	V8TypeFunction  = "function"
	V8TypeError     = "error"
	V8TypeScript    = "script"
	V8TypeFrame     = "frame"
)

// V8Scope types as reported in frame scope lists.
const (
	ScopeTypeGlobal  = 0
	ScopeTypeLocal   = 1
	ScopeTypeWith    = 2
	ScopeTypeClosure = 3
	ScopeTypeCatch   = 4
	ScopeTypeBlock   = 5
	ScopeTypeScript  = 6
)

type V8ScopeRef struct {
	Index int `json:"index"`
	Type  int `json:"type"`
}

type V8Scope struct {
	Index  int   `json:"index"`
	Type   int   `json:"type"`
	Object V8Ref `json:"object"`
}

type V8FrameFunc struct {
	Ref          int    `json:"ref"`
	Name         string `json:"name,omitempty"`
	InferredName string `json:"inferredName,omitempty"`
	ScriptId     int    `json:"scriptId,omitempty"`
}

// V8Frame is one stack frame as returned by backtrace/frame.
type V8Frame struct {
	Type           string       `json:"type"`
	Index          int          `json:"index"`
	Receiver       V8Ref        `json:"receiver"`
	Func           V8FrameFunc  `json:"func"`
	Script         V8Ref        `json:"script"`
	Line           int          `json:"line"`
	Column         int          `json:"column"`
	SourceLineText string       `json:"sourceLineText,omitempty"`
	Scopes         []V8ScopeRef `json:"scopes,omitempty"`
}

// V8ScriptRef is the inline script reference carried in break events.
type V8ScriptRef struct {
	Id           int    `json:"id"`
	Name         string `json:"name,omitempty"`
	LineOffset   int    `json:"lineOffset,omitempty"`
	ColumnOffset int    `json:"columnOffset,omitempty"`
	LineCount    int    `json:"lineCount,omitempty"`
}

// --- command arguments ---

type BacktraceArgs struct {
	FromFrame   int  `json:"fromFrame"`
	ToFrame     int  `json:"toFrame"`
	TotalFrames bool `json:"totalFrames,omitempty"`
}

type FrameArgs struct {
	Number int `json:"number"`
}

type ScopesArgs struct {
	FrameNumber int `json:"frameNumber"`
}

type ScopeArgs struct {
	Number      int `json:"number"`
	FrameNumber int `json:"frameNumber"`
}

type LookupArgs struct {
	Handles       []int `json:"handles"`
	IncludeSource bool  `json:"includeSource,omitempty"`
}

type EvaluateArgs struct {
	Expression      string `json:"expression"`
	Frame           *int   `json:"frame,omitempty"`
	Global          bool   `json:"global,omitempty"`
	DisableBreak    bool   `json:"disable_break"`
	MaxStringLength int    `json:"maxStringLength,omitempty"`
}

// Breakpoint target kinds for setbreakpoint.
const (
	BreakpointTypeScript       = "script"
	BreakpointTypeScriptId     = "scriptId"
	BreakpointTypeScriptRegExp = "scriptRegExp"
)

type SetBreakpointArgs struct {
	Type      string `json:"type"`
	Target    string `json:"target"`
	Line      int    `json:"line"`
	Column    *int   `json:"column,omitempty"`
	Condition string `json:"condition,omitempty"`
}

type ClearBreakpointArgs struct {
	Breakpoint int `json:"breakpoint"`
}

type SetExceptionBreakArgs struct {
	Type    string `json:"type"` // "all" or "uncaught"
	Enabled bool   `json:"enabled"`
}

type ContinueArgs struct {
	StepAction string `json:"stepaction,omitempty"` // next, in, out
	StepCount  int    `json:"stepcount,omitempty"`
}

type ScriptsArgs struct {
	Types         int    `json:"types,omitempty"`
	Ids           []int  `json:"ids,omitempty"`
	IncludeSource bool   `json:"includeSource,omitempty"`
	Filter        string `json:"filter,omitempty"`
}

// --- response bodies ---

type BacktraceResponseBody struct {
	FromFrame   int       `json:"fromFrame"`
	ToFrame     int       `json:"toFrame"`
	TotalFrames int       `json:"totalFrames"`
	Frames      []V8Frame `json:"frames"`
}

type ScopesResponseBody struct {
	FromScope   int       `json:"fromScope"`
	ToScope     int       `json:"toScope"`
	TotalScopes int       `json:"totalScopes"`
	Scopes      []V8Scope `json:"scopes"`
}

type ScopeResponseBody struct {
	Index  int      `json:"index"`
	Type   int      `json:"type"`
	Object V8Object `json:"object"`
}

// LookupResponseBody maps the decimal handle back to its resolved object.
type LookupResponseBody map[string]V8Object

type V8Location struct {
	Line     int `json:"line"`
	Column   int `json:"column"`
	ScriptId int `json:"script_id"`
}

type SetBreakpointResponseBody struct {
	Type            string       `json:"type"`
	Breakpoint      int          `json:"breakpoint"`
	ScriptName      string       `json:"script_name,omitempty"`
	Line            int          `json:"line"`
	Column          int          `json:"column"`
	ActualLocations []V8Location `json:"actual_locations,omitempty"`
}

type VersionResponseBody struct {
	V8Version string `json:"V8Version"`
}

// BreakEventBody is the payload of the break event. Breakpoints lists the
// runtime ids of every breakpoint hit at this location; the reserved entry
// breakpoint id shows up here for the --debug-brk stop.
type BreakEventBody struct {
	InvocationText string      `json:"invocationText,omitempty"`
	SourceLine     int         `json:"sourceLine"`
	SourceColumn   int         `json:"sourceColumn"`
	SourceLineText string      `json:"sourceLineText,omitempty"`
	Script         V8ScriptRef `json:"script"`
	Breakpoints    []int       `json:"breakpoints,omitempty"`
}

type ExceptionEventBody struct {
	Exception      V8Object    `json:"exception"`
	Uncaught       bool        `json:"uncaught"`
	SourceLine     int         `json:"sourceLine"`
	SourceColumn   int         `json:"sourceColumn"`
	SourceLineText string      `json:"sourceLineText,omitempty"`
	Script         V8ScriptRef `json:"script"`
}
