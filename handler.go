package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fansqz/node-debugger/debugger"
	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"
)

// requestTimeout bounds request handling against a wedged runtime; the
// protocol client has its own per-command deadline below this one.
const requestTimeout = 30 * time.Second

func (d *DebugSession) dispatchRequest(request dap.Message) {
	switch request := request.(type) {
	case *dap.InitializeRequest:
		d.onInitializeRequest(request)
	case *dap.LaunchRequest:
		d.onLaunchRequest(request)
	case *dap.AttachRequest:
		d.onAttachRequest(request)
	case *dap.SetBreakpointsRequest:
		d.onSetBreakpointsRequest(request)
	case *dap.SetFunctionBreakpointsRequest:
		d.onSetFunctionBreakpointsRequest(request)
	case *dap.SetExceptionBreakpointsRequest:
		d.onSetExceptionBreakpointsRequest(request)
	case *dap.ConfigurationDoneRequest:
		d.onConfigurationDoneRequest(request)
	case *dap.ThreadsRequest:
		d.onThreadsRequest(request)
	case *dap.StackTraceRequest:
		d.onStackTraceRequest(request)
	case *dap.ScopesRequest:
		d.onScopesRequest(request)
	case *dap.VariablesRequest:
		d.onVariablesRequest(request)
	case *dap.SourceRequest:
		d.onSourceRequest(request)
	case *dap.EvaluateRequest:
		d.onEvaluateRequest(request)
	case *dap.PauseRequest:
		d.onPauseRequest(request)
	case *dap.ContinueRequest:
		d.onContinueRequest(request)
	case *dap.NextRequest:
		d.onNextRequest(request)
	case *dap.StepInRequest:
		d.onStepInRequest(request)
	case *dap.StepOutRequest:
		d.onStepOutRequest(request)
	case *dap.DisconnectRequest:
		d.onDisconnectRequest(request)
	case *dap.TerminateRequest:
		d.onTerminateRequest(request)
	default:
		if baseReq, ok := request.(dap.RequestMessage); ok {
			r := baseReq.GetRequest()
			d.send(newErrorResponse(r.Seq, r.Command, fmtUnsupported(r.Command)))
		}
		logrus.Warnf("[Server] unable to process %#v", request)
	}
}

func (d *DebugSession) requireDebugger(seq int, command string) bool {
	if d.debugger == nil {
		d.send(newErrorResponse(seq, command, "no debug session started"))
		return false
	}
	return true
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

func (d *DebugSession) onInitializeRequest(request *dap.InitializeRequest) {
	response := &dap.InitializeResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body.SupportsConfigurationDoneRequest = true
	response.Body.SupportsFunctionBreakpoints = true
	response.Body.SupportsConditionalBreakpoints = true
	response.Body.SupportsEvaluateForHovers = true
	response.Body.SupportsTerminateRequest = true
	response.Body.ExceptionBreakpointFilters = []dap.ExceptionBreakpointsFilter{
		{Filter: "all", Label: "All Exceptions"},
		{Filter: "uncaught", Label: "Uncaught Exceptions", Default: true},
	}
	// the initialized event follows once the runtime reports its entry stop
	d.send(response)
}

func (d *DebugSession) onLaunchRequest(request *dap.LaunchRequest) {
	if !d.startSession(request.Seq, request.Command, request.Arguments, false) {
		return
	}
	response := &dap.LaunchResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onAttachRequest(request *dap.AttachRequest) {
	if !d.startSession(request.Seq, request.Command, request.Arguments, true) {
		return
	}
	response := &dap.AttachResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

// startSession parses the client config and brings the debugger up. On
// failure it answers the request with the error itself.
func (d *DebugSession) startSession(seq int, command string, arguments json.RawMessage, attach bool) bool {
	if d.debugger != nil {
		d.send(newErrorResponse(seq, command, "debug session already started"))
		return false
	}
	config := debugger.Config{}
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &config); err != nil {
			d.send(newErrorResponse(seq, command, fmt.Sprintf("bad %s arguments: %v", command, err)))
			return false
		}
	}

	debug := debugger.NewNodeDebugger()
	ctx, cancel := requestContext()
	defer cancel()
	err := debug.Start(ctx, &debugger.StartOption{
		Config: config,
		Attach: attach,
		Callback: func(event dap.EventMessage) {
			d.send(event)
		},
	})
	if err != nil {
		logrus.Errorf("[Server] %s failed: %v", command, err)
		d.send(newErrorResponse(seq, command, err.Error()))
		return false
	}
	d.debugger = debug
	return true
}

func (d *DebugSession) onSetBreakpointsRequest(request *dap.SetBreakpointsRequest) {
	if !d.requireDebugger(request.Seq, request.Command) {
		return
	}
	ctx, cancel := requestContext()
	defer cancel()
	breakpoints, err := d.debugger.SetBreakpoints(ctx, request.Arguments.Source, request.Arguments.Breakpoints)
	if err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.SetBreakpointsResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body.Breakpoints = breakpoints
	d.send(response)
}

func (d *DebugSession) onSetFunctionBreakpointsRequest(request *dap.SetFunctionBreakpointsRequest) {
	if !d.requireDebugger(request.Seq, request.Command) {
		return
	}
	ctx, cancel := requestContext()
	defer cancel()
	breakpoints, err := d.debugger.SetFunctionBreakpoints(ctx, request.Arguments.Breakpoints)
	if err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.SetFunctionBreakpointsResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body.Breakpoints = breakpoints
	d.send(response)
}

func (d *DebugSession) onSetExceptionBreakpointsRequest(request *dap.SetExceptionBreakpointsRequest) {
	if !d.requireDebugger(request.Seq, request.Command) {
		return
	}
	ctx, cancel := requestContext()
	defer cancel()
	if err := d.debugger.SetExceptionBreakpoints(ctx, request.Arguments.Filters); err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.SetExceptionBreakpointsResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onConfigurationDoneRequest(request *dap.ConfigurationDoneRequest) {
	if !d.requireDebugger(request.Seq, request.Command) {
		return
	}
	ctx, cancel := requestContext()
	defer cancel()
	if err := d.debugger.ConfigurationDone(ctx); err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.ConfigurationDoneResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onThreadsRequest(request *dap.ThreadsRequest) {
	response := &dap.ThreadsResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body.Threads = []dap.Thread{
		{Id: debugger.MainThreadID, Name: "Node"},
	}
	d.send(response)
}

func (d *DebugSession) onStackTraceRequest(request *dap.StackTraceRequest) {
	if !d.requireDebugger(request.Seq, request.Command) {
		return
	}
	ctx, cancel := requestContext()
	defer cancel()
	frames, total, err := d.debugger.GetStackTrace(ctx, request.Arguments.StartFrame, request.Arguments.Levels)
	if err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.StackTraceResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body = dap.StackTraceResponseBody{
		StackFrames: frames,
		TotalFrames: total,
	}
	d.send(response)
}

func (d *DebugSession) onScopesRequest(request *dap.ScopesRequest) {
	if !d.requireDebugger(request.Seq, request.Command) {
		return
	}
	ctx, cancel := requestContext()
	defer cancel()
	scopes, err := d.debugger.GetScopes(ctx, request.Arguments.FrameId)
	if err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.ScopesResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body = dap.ScopesResponseBody{
		Scopes: scopes,
	}
	d.send(response)
}

func (d *DebugSession) onVariablesRequest(request *dap.VariablesRequest) {
	if !d.requireDebugger(request.Seq, request.Command) {
		return
	}
	ctx, cancel := requestContext()
	defer cancel()
	variables, err := d.debugger.GetVariables(ctx,
		request.Arguments.VariablesReference,
		request.Arguments.Filter,
		request.Arguments.Start,
		request.Arguments.Count)
	if err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.VariablesResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body = dap.VariablesResponseBody{
		Variables: variables,
	}
	d.send(response)
}

func (d *DebugSession) onSourceRequest(request *dap.SourceRequest) {
	if !d.requireDebugger(request.Seq, request.Command) {
		return
	}
	reference := request.Arguments.SourceReference
	if reference == 0 && request.Arguments.Source != nil {
		reference = request.Arguments.Source.SourceReference
	}
	ctx, cancel := requestContext()
	defer cancel()
	content, err := d.debugger.GetSource(ctx, reference)
	if err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.SourceResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body.Content = content
	d.send(response)
}

func (d *DebugSession) onEvaluateRequest(request *dap.EvaluateRequest) {
	if !d.requireDebugger(request.Seq, request.Command) {
		return
	}
	frameId := request.Arguments.FrameId
	if frameId == 0 && request.Arguments.Context == "repl" {
		frameId = -1
	}
	ctx, cancel := requestContext()
	defer cancel()
	variable, err := d.debugger.Evaluate(ctx, request.Arguments.Expression, frameId)
	if err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.EvaluateResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body = dap.EvaluateResponseBody{
		Result:             variable.Value,
		Type:               variable.Type,
		VariablesReference: variable.VariablesReference,
		IndexedVariables:   variable.IndexedVariables,
		NamedVariables:     variable.NamedVariables,
	}
	d.send(response)
}

func (d *DebugSession) onPauseRequest(request *dap.PauseRequest) {
	if !d.requireDebugger(request.Seq, request.Command) {
		return
	}
	ctx, cancel := requestContext()
	defer cancel()
	if err := d.debugger.Pause(ctx); err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.PauseResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onContinueRequest(request *dap.ContinueRequest) {
	if !d.requireDebugger(request.Seq, request.Command) {
		return
	}
	ctx, cancel := requestContext()
	defer cancel()
	if err := d.debugger.Continue(ctx); err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.ContinueResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body.AllThreadsContinued = true
	d.send(response)
}

func (d *DebugSession) onNextRequest(request *dap.NextRequest) {
	if !d.requireDebugger(request.Seq, request.Command) {
		return
	}
	ctx, cancel := requestContext()
	defer cancel()
	if err := d.debugger.StepOver(ctx); err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.NextResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onStepInRequest(request *dap.StepInRequest) {
	if !d.requireDebugger(request.Seq, request.Command) {
		return
	}
	ctx, cancel := requestContext()
	defer cancel()
	if err := d.debugger.StepIn(ctx); err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.StepInResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onStepOutRequest(request *dap.StepOutRequest) {
	if !d.requireDebugger(request.Seq, request.Command) {
		return
	}
	ctx, cancel := requestContext()
	defer cancel()
	if err := d.debugger.StepOut(ctx); err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.StepOutResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onDisconnectRequest(request *dap.DisconnectRequest) {
	if d.debugger != nil {
		ctx, cancel := requestContext()
		if err := d.debugger.Terminate(ctx); err != nil {
			logrus.Warnf("[Server] terminate on disconnect: %v", err)
		}
		cancel()
		d.debugger = nil
	}
	response := &dap.DisconnectResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onTerminateRequest(request *dap.TerminateRequest) {
	if !d.requireDebugger(request.Seq, request.Command) {
		return
	}
	ctx, cancel := requestContext()
	defer cancel()
	if err := d.debugger.Terminate(ctx); err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	d.debugger = nil
	response := &dap.TerminateResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}
