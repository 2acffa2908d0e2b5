package error

import "errors"

var (
	// launch preconditions, kept distinct so the client sees a precise message
	ErrProgramNotFound          = errors.New("program does not exist")
	ErrRuntimeNotFound          = errors.New("runtime executable not found")
	ErrWorkingDirectoryNotFound = errors.New("working directory does not exist")

	// attach
	ErrConnectFailed = errors.New("cannot connect to runtime process")

	// runtime protocol
	ErrCommandTimeout     = errors.New("command timed out")
	ErrClientUnresponsive = errors.New("runtime is unresponsive, command cancelled")
	ErrTransportClosed    = errors.New("connection to runtime closed")

	// evaluate failures, subclassified from runtime-reported messages
	ErrEvaluateNotAvailable = errors.New("not available")
	ErrEvaluateInvalidExpr  = errors.New("invalid expression")

	ErrReferenceNotFound          = errors.New("variable reference not found")
	ErrProgramIsRunningOptionFail = errors.New("the program is running")
	ErrDebuggerIsClosed           = errors.New("debug is closed")
)
