package constants

import "time"

// StoppedReasonType classifies why the debuggee stopped.
// The orchestrator classifies stop events in priority order:
// exception wins over breakpoint, entry is only reported once.
type StoppedReasonType string

const (
	EntryStopped             StoppedReasonType = "entry"
	StepStopped              StoppedReasonType = "step"
	BreakpointStopped        StoppedReasonType = "breakpoint"
	ExceptionStopped         StoppedReasonType = "exception"
	DebuggerStatementStopped StoppedReasonType = "debugger statement"
	PauseStopped             StoppedReasonType = "pause"
)

// StepType 单步调试类型
type StepType string

const (
	StepIn   StepType = "stepIn"
	StepOut  StepType = "stepOut"
	StepOver StepType = "stepOver"
)

// TraceCategory gates diagnostic logging, set from the launch config `trace`.
type TraceCategory string

const (
	TraceAll        TraceCategory = "all"
	TraceProtocol   TraceCategory = "rc"
	TraceSourceMaps TraceCategory = "sm"
	TraceLaunch     TraceCategory = "la"
	TraceBreakpoint TraceCategory = "bp"
	TraceVariables  TraceCategory = "va"
)

const (
	// DefaultDebugPort is the legacy V8 debug port node listens on with --debug-brk.
	DefaultDebugPort = 5858

	// DefaultAttachTimeout bounds the connect retry loop in attach mode.
	DefaultAttachTimeout = 10 * time.Second
	// AttachRetryInterval is the fixed delay between connect attempts.
	AttachRetryInterval = 200 * time.Millisecond

	// EntryBreakpointID is the breakpoint id the runtime reserves for the
	// --debug-brk entry stop. A break event reporting this id before any
	// other stop has been seen is the entry stop.
	EntryBreakpointID = 1
)
