package debugger

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/fansqz/node-debugger/constants"
	e "github.com/fansqz/node-debugger/error"
	"github.com/fansqz/node-debugger/protocol"
	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
)

// fakeV8 serves the runtime side of the debug protocol on a real TCP port so
// the debugger can attach to it like to a node process.
type fakeV8 struct {
	t        *testing.T
	listener net.Listener

	mu       sync.Mutex
	conn     net.Conn
	handlers map[string]func(request *protocol.Request) *protocol.Response

	requests chan *protocol.Request
}

func newFakeV8(t *testing.T) *fakeV8 {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	assert.Nil(t, err)
	f := &fakeV8{
		t:        t,
		listener: listener,
		handlers: map[string]func(request *protocol.Request) *protocol.Response{},
		requests: make(chan *protocol.Request, 64),
	}
	f.handle("version", func(request *protocol.Request) *protocol.Response {
		return f.success(request, protocol.VersionResponseBody{V8Version: "3.14.5.9"}, nil)
	})
	f.handle("disconnect", func(request *protocol.Request) *protocol.Response {
		return f.success(request, nil, nil)
	})
	go f.serve()
	t.Cleanup(func() {
		listener.Close()
		f.mu.Lock()
		if f.conn != nil {
			f.conn.Close()
		}
		f.mu.Unlock()
	})
	return f
}

func (f *fakeV8) port() int {
	return f.listener.Addr().(*net.TCPAddr).Port
}

func (f *fakeV8) handle(command string, handler func(request *protocol.Request) *protocol.Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[command] = handler
}

func (f *fakeV8) success(request *protocol.Request, body interface{}, refs []protocol.V8Object) *protocol.Response {
	var raw json.RawMessage
	if body != nil {
		raw, _ = json.Marshal(body)
	}
	return &protocol.Response{
		Type:       protocol.TypeResponse,
		RequestSeq: request.Seq,
		Command:    request.Command,
		Success:    true,
		Body:       raw,
		Refs:       refs,
	}
}

func (f *fakeV8) failure(request *protocol.Request, message string) *protocol.Response {
	return &protocol.Response{
		Type:       protocol.TypeResponse,
		RequestSeq: request.Seq,
		Command:    request.Command,
		Success:    false,
		Message:    message,
	}
}

func (f *fakeV8) serve() {
	conn, err := f.listener.Accept()
	if err != nil {
		return
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	// connect handshake
	conn.Write([]byte("Embedding-Host: node v0.12.0\r\nContent-Length: 0\r\n\r\n"))

	codec := protocol.NewCodec()
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			for _, frame := range codec.Append(buf[:n]) {
				request := &protocol.Request{}
				if json.Unmarshal(frame, request) != nil {
					continue
				}
				f.requests <- request
				f.mu.Lock()
				handler := f.handlers[request.Command]
				f.mu.Unlock()
				var response *protocol.Response
				if handler != nil {
					response = handler(request)
				} else {
					response = f.failure(request, "unknown command: "+request.Command)
				}
				f.write(response)
			}
		}
		if err != nil {
			return
		}
	}
}

func (f *fakeV8) write(v interface{}) {
	data, err := protocol.EncodeMessage(v)
	assert.Nil(f.t, err)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		f.conn.Write(data)
	}
}

func (f *fakeV8) sendBreak(body protocol.BreakEventBody) {
	raw, _ := json.Marshal(body)
	f.write(&protocol.Event{Type: protocol.TypeEvent, Event: "break", Body: raw})
}

func (f *fakeV8) sendException(body protocol.ExceptionEventBody) {
	raw, _ := json.Marshal(body)
	f.write(&protocol.Event{Type: protocol.TypeEvent, Event: "exception", Body: raw})
}

func (f *fakeV8) nextRequest() *protocol.Request {
	select {
	case request := <-f.requests:
		return request
	case <-time.After(2 * time.Second):
		f.t.Fatal("timed out waiting for a runtime request")
		return nil
	}
}

// decodeArgs re-marshals loosely typed request arguments into a struct.
func decodeArgs(request *protocol.Request, out interface{}) error {
	data, err := json.Marshal(request.Arguments)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func startTestDebugger(t *testing.T, fake *fakeV8, mutate func(*StartOption)) (*NodeDebugger, chan dap.EventMessage) {
	events := make(chan dap.EventMessage, 64)
	option := &StartOption{
		Config: Config{
			Address: "127.0.0.1",
			Port:    fake.port(),
			Timeout: 2000,
		},
		Attach: true,
		Callback: func(event dap.EventMessage) {
			events <- event
		},
	}
	if mutate != nil {
		mutate(option)
	}
	debug := NewNodeDebugger()
	err := debug.Start(context.Background(), option)
	assert.Nil(t, err)
	t.Cleanup(func() { _ = debug.Terminate(context.Background()) })
	return debug, events
}

func waitForEvent(t *testing.T, events chan dap.EventMessage, name string) dap.EventMessage {
	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-events:
			if event.GetEvent().Event == name {
				return event
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q event", name)
			return nil
		}
	}
}

func entryBreak(scriptName string) protocol.BreakEventBody {
	return protocol.BreakEventBody{
		SourceLine:   0,
		SourceColumn: 0,
		Script:       protocol.V8ScriptRef{Id: 42, Name: scriptName},
		Breakpoints:  []int{constants.EntryBreakpointID},
	}
}

// stoppedSession brings a session to a configured entry stop.
func stoppedSession(t *testing.T, fake *fakeV8) (*NodeDebugger, chan dap.EventMessage) {
	debug, events := startTestDebugger(t, fake, func(option *StartOption) {
		option.StopOnEntry = true
	})
	fake.sendBreak(entryBreak("/work/app.js"))
	waitForEvent(t, events, "initialized")
	assert.Nil(t, debug.ConfigurationDone(context.Background()))
	stopped := waitForEvent(t, events, "stopped").(*dap.StoppedEvent)
	assert.Equal(t, string(constants.EntryStopped), stopped.Body.Reason)
	return debug, events
}

func TestStopOnEntryReportsEntryStop(t *testing.T) {
	fake := newFakeV8(t)
	stoppedSession(t, fake)
}

func TestEntryAutoContinuesWithoutStopOnEntry(t *testing.T) {
	fake := newFakeV8(t)
	continued := make(chan struct{}, 1)
	fake.handle("continue", func(request *protocol.Request) *protocol.Response {
		continued <- struct{}{}
		return fake.success(request, nil, nil)
	})

	debug, events := startTestDebugger(t, fake, nil)
	fake.sendBreak(entryBreak("/work/app.js"))
	waitForEvent(t, events, "initialized")
	assert.Nil(t, debug.ConfigurationDone(context.Background()))

	select {
	case <-continued:
	case <-time.After(2 * time.Second):
		t.Fatal("entry stop was not auto-continued")
	}
	waitForEvent(t, events, "continued")
}

func TestEntryStopAtUserBreakpointReportsBreakpoint(t *testing.T) {
	fake := newFakeV8(t)
	fake.handle("setbreakpoint", func(request *protocol.Request) *protocol.Response {
		return fake.success(request, protocol.SetBreakpointResponseBody{
			Breakpoint:      7,
			ActualLocations: []protocol.V8Location{{Line: 0}},
		}, nil)
	})

	debug, events := startTestDebugger(t, fake, nil)
	fake.sendBreak(entryBreak("/work/app.js"))
	waitForEvent(t, events, "initialized")

	results, err := debug.SetBreakpoints(context.Background(),
		dap.Source{Path: "/work/app.js"},
		[]dap.SourceBreakpoint{{Line: 1}})
	assert.Nil(t, err)
	assert.Len(t, results, 1)
	assert.True(t, results[0].Verified)

	assert.Nil(t, debug.ConfigurationDone(context.Background()))
	stopped := waitForEvent(t, events, "stopped").(*dap.StoppedEvent)
	assert.Equal(t, string(constants.BreakpointStopped), stopped.Body.Reason)
}

func TestSetBreakpointsReplacesPreviousSet(t *testing.T) {
	fake := newFakeV8(t)
	nextId := 10
	fake.handle("setbreakpoint", func(request *protocol.Request) *protocol.Response {
		args := protocol.SetBreakpointArgs{}
		assert.Nil(t, decodeArgs(request, &args))
		nextId++
		return fake.success(request, protocol.SetBreakpointResponseBody{
			Breakpoint:      nextId,
			ActualLocations: []protocol.V8Location{{Line: args.Line}},
		}, nil)
	})
	cleared := make(chan int, 8)
	fake.handle("clearbreakpoint", func(request *protocol.Request) *protocol.Response {
		args := protocol.ClearBreakpointArgs{}
		assert.Nil(t, decodeArgs(request, &args))
		cleared <- args.Breakpoint
		return fake.success(request, nil, nil)
	})

	debug, _ := stoppedSessionPair(t, fake)

	first, err := debug.SetBreakpoints(context.Background(),
		dap.Source{Path: "/work/app.js"},
		[]dap.SourceBreakpoint{{Line: 3}, {Line: 8}})
	assert.Nil(t, err)
	assert.Len(t, first, 2)
	assert.True(t, first[0].Verified)
	assert.True(t, first[1].Verified)
	assert.Equal(t, 3, first[0].Line)
	assert.Equal(t, 8, first[1].Line)

	second, err := debug.SetBreakpoints(context.Background(),
		dap.Source{Path: "/work/app.js"},
		[]dap.SourceBreakpoint{{Line: 5}})
	assert.Nil(t, err)
	assert.Len(t, second, 1)

	// the previous two runtime breakpoints were cleared before the new set
	clearedIds := []int{<-cleared, <-cleared}
	assert.ElementsMatch(t, []int{11, 12}, clearedIds)
}

// stoppedSessionPair is stoppedSession for tests that installed their own
// handlers before starting.
func stoppedSessionPair(t *testing.T, fake *fakeV8) (*NodeDebugger, chan dap.EventMessage) {
	debug, events := startTestDebugger(t, fake, func(option *StartOption) {
		option.StopOnEntry = true
	})
	fake.sendBreak(entryBreak("/work/app.js"))
	waitForEvent(t, events, "initialized")
	assert.Nil(t, debug.ConfigurationDone(context.Background()))
	waitForEvent(t, events, "stopped")
	return debug, events
}

func TestStackTraceResolvesNamesAndPaths(t *testing.T) {
	scriptPath := filepath.Join(t.TempDir(), "app.js")
	assert.Nil(t, os.WriteFile(scriptPath, []byte("var x = 1;\n"), 0644))

	fake := newFakeV8(t)
	fake.handle("backtrace", func(request *protocol.Request) *protocol.Response {
		args := protocol.BacktraceArgs{}
		assert.Nil(t, decodeArgs(request, &args))
		frames := []protocol.V8Frame{}
		if args.FromFrame == 0 {
			frames = append(frames, protocol.V8Frame{
				Index:  0,
				Func:   protocol.V8FrameFunc{Ref: 11},
				Script: protocol.V8Ref{Ref: 21},
				Line:   4,
				Column: 2,
			})
		} else if args.FromFrame == 1 {
			frames = append(frames, protocol.V8Frame{
				Index:  1,
				Func:   protocol.V8FrameFunc{Ref: 12},
				Script: protocol.V8Ref{Ref: 21},
				Line:   9,
				Column: 0,
			})
		}
		return fake.success(request, protocol.BacktraceResponseBody{
			FromFrame:   args.FromFrame,
			ToFrame:     args.ToFrame,
			TotalFrames: 2,
			Frames:      frames,
		}, nil)
	})
	fake.handle("lookup", func(request *protocol.Request) *protocol.Response {
		args := protocol.LookupArgs{}
		assert.Nil(t, decodeArgs(request, &args))
		body := map[string]protocol.V8Object{}
		for _, handle := range args.Handles {
			switch handle {
			case 11:
				body[strconv.Itoa(handle)] = protocol.V8Object{Handle: 11, Type: "function", Name: "main"}
			case 12:
				body[strconv.Itoa(handle)] = protocol.V8Object{Handle: 12, Type: "function", InferredName: "helper"}
			case 21:
				body[strconv.Itoa(handle)] = protocol.V8Object{Handle: 21, Type: "script", Id: 42, Name: scriptPath}
			}
		}
		return fake.success(request, body, nil)
	})

	debug, _ := stoppedSessionPair(t, fake)

	frames, total, err := debug.GetStackTrace(context.Background(), 0, 10)
	assert.Nil(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, frames, 2)

	assert.Equal(t, 0, frames[0].Id)
	assert.Equal(t, "main", frames[0].Name)
	assert.Equal(t, scriptPath, frames[0].Source.Path)
	assert.Equal(t, 5, frames[0].Line)
	assert.Equal(t, 3, frames[0].Column)

	assert.Equal(t, 1, frames[1].Id)
	assert.Equal(t, "helper", frames[1].Name)
	assert.Equal(t, 10, frames[1].Line)
}

func TestStackTraceWindowPastEnd(t *testing.T) {
	fake := newFakeV8(t)
	fake.handle("backtrace", func(request *protocol.Request) *protocol.Response {
		args := protocol.BacktraceArgs{}
		assert.Nil(t, decodeArgs(request, &args))
		frames := []protocol.V8Frame{}
		if args.FromFrame == 0 {
			frames = append(frames, protocol.V8Frame{Index: 0})
		}
		return fake.success(request, protocol.BacktraceResponseBody{
			FromFrame:   args.FromFrame,
			ToFrame:     args.ToFrame,
			TotalFrames: 2,
			Frames:      frames,
		}, nil)
	})

	debug, _ := stoppedSessionPair(t, fake)

	// paging past a shallow stack is an empty page, never an error
	frames, total, err := debug.GetStackTrace(context.Background(), 5, 20)
	assert.Nil(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, frames, 0)

	frames, total, err = debug.GetStackTrace(context.Background(), -3, 1)
	assert.Nil(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, frames, 1)
}

func TestScopesAndVariables(t *testing.T) {
	fake := newFakeV8(t)
	fake.handle("backtrace", func(request *protocol.Request) *protocol.Response {
		return fake.success(request, protocol.BacktraceResponseBody{
			TotalFrames: 1,
			Frames: []protocol.V8Frame{{
				Index:    0,
				Receiver: protocol.V8Ref{Ref: 99},
				Scopes: []protocol.V8ScopeRef{
					{Index: 0, Type: protocol.ScopeTypeLocal},
					{Index: 1, Type: protocol.ScopeTypeGlobal},
				},
			}},
		}, nil)
	})
	fake.handle("scope", func(request *protocol.Request) *protocol.Response {
		return fake.success(request, protocol.ScopeResponseBody{
			Index: 0,
			Type:  protocol.ScopeTypeLocal,
			Object: protocol.V8Object{
				Handle: 50,
				Type:   "object",
				Properties: []protocol.V8Property{
					{Name: "count", Ref: 60},
					{Name: "label", Ref: 61},
				},
			},
		}, nil)
	})
	fake.handle("lookup", func(request *protocol.Request) *protocol.Response {
		args := protocol.LookupArgs{}
		assert.Nil(t, decodeArgs(request, &args))
		body := map[string]protocol.V8Object{}
		for _, handle := range args.Handles {
			switch handle {
			case 60:
				body["60"] = protocol.V8Object{Handle: 60, Type: "number", Text: "3"}
			case 61:
				body["61"] = protocol.V8Object{Handle: 61, Type: "string", Text: "hi\nthere"}
			case 99:
				body["99"] = protocol.V8Object{Handle: 99, Type: "object", ClassName: "Window"}
			}
		}
		return fake.success(request, body, nil)
	})

	debug, _ := stoppedSessionPair(t, fake)
	_, _, err := debug.GetStackTrace(context.Background(), 0, 1)
	assert.Nil(t, err)

	scopes, err := debug.GetScopes(context.Background(), 0)
	assert.Nil(t, err)
	assert.Len(t, scopes, 2)
	assert.Equal(t, "Local", scopes[0].Name)
	assert.Equal(t, "Global", scopes[1].Name)
	assert.False(t, scopes[0].Expensive)
	assert.True(t, scopes[1].Expensive)

	variables, err := debug.GetVariables(context.Background(), scopes[0].VariablesReference, "", 0, 0)
	assert.Nil(t, err)
	assert.Len(t, variables, 3)

	// the receiver leads the local scope
	assert.Equal(t, "this", variables[0].Name)
	assert.Equal(t, "Window", variables[0].Value)
	assert.NotZero(t, variables[0].VariablesReference)

	assert.Equal(t, "count", variables[1].Name)
	assert.Equal(t, "3", variables[1].Value)
	assert.Zero(t, variables[1].VariablesReference)

	assert.Equal(t, "label", variables[2].Name)
	assert.Equal(t, `"hi\nthere"`, variables[2].Value)
}

func TestLargeArrayExpandsAsChunks(t *testing.T) {
	const size = 250
	properties := make([]protocol.V8Property, 0, size+1)
	for i := 0; i < size; i++ {
		properties = append(properties, protocol.V8Property{Name: float64(i), Ref: 1000 + i})
	}
	properties = append(properties, protocol.V8Property{Name: "length", Ref: 900})

	fake := newFakeV8(t)
	fake.handle("lookup", func(request *protocol.Request) *protocol.Response {
		args := protocol.LookupArgs{}
		assert.Nil(t, decodeArgs(request, &args))
		body := map[string]protocol.V8Object{}
		for _, handle := range args.Handles {
			switch {
			case handle == 5:
				body["5"] = protocol.V8Object{
					Handle:     5,
					Type:       "object",
					ClassName:  "Array",
					Properties: properties,
				}
			case handle == 900:
				body["900"] = protocol.V8Object{Handle: 900, Type: "number", Text: strconv.Itoa(size)}
			case handle >= 1000:
				body[strconv.Itoa(handle)] = protocol.V8Object{
					Handle: handle,
					Type:   "number",
					Text:   strconv.Itoa(handle - 1000),
				}
			}
		}
		return fake.success(request, body, nil)
	})

	debug, _ := stoppedSessionPair(t, fake)

	reference, err := debug.refUtil.CreateVariableReference(NewObjectExpander(5))
	assert.Nil(t, err)

	variables, err := debug.GetVariables(context.Background(), reference, "", 0, 0)
	assert.Nil(t, err)
	// "length" plus three range placeholders
	assert.Len(t, variables, 4)
	assert.Equal(t, "[0..99]", variables[1].Name)
	assert.Equal(t, "[100..199]", variables[2].Name)
	assert.Equal(t, "[200..249]", variables[3].Name)

	// expanding a placeholder yields the concrete elements
	chunk, err := debug.GetVariables(context.Background(), variables[2].VariablesReference, "", 0, 0)
	assert.Nil(t, err)
	assert.Len(t, chunk, 100)
	assert.Equal(t, "100", chunk[0].Name)
	assert.Equal(t, "100", chunk[0].Value)
	assert.Equal(t, "199", chunk[99].Name)
}

func TestEvaluateInFrame(t *testing.T) {
	fake := newFakeV8(t)
	fake.handle("backtrace", func(request *protocol.Request) *protocol.Response {
		return fake.success(request, protocol.BacktraceResponseBody{
			TotalFrames: 1,
			Frames:      []protocol.V8Frame{{Index: 0}},
		}, nil)
	})
	fake.handle("evaluate", func(request *protocol.Request) *protocol.Response {
		args := protocol.EvaluateArgs{}
		assert.Nil(t, decodeArgs(request, &args))
		if args.Expression == "x + 1" {
			assert.NotNil(t, args.Frame)
			assert.True(t, args.DisableBreak)
			return fake.success(request, protocol.V8Object{Handle: 70, Type: "number", Text: "42"}, nil)
		}
		return fake.failure(request, "ReferenceError: nope is not defined")
	})

	debug, _ := stoppedSessionPair(t, fake)
	_, _, err := debug.GetStackTrace(context.Background(), 0, 1)
	assert.Nil(t, err)

	variable, err := debug.Evaluate(context.Background(), "x + 1", 0)
	assert.Nil(t, err)
	assert.Equal(t, "42", variable.Value)
	assert.Equal(t, "number", variable.Type)

	_, err = debug.Evaluate(context.Background(), "nope", 0)
	assert.ErrorIs(t, err, e.ErrEvaluateNotAvailable)
}

func TestExceptionStop(t *testing.T) {
	fake := newFakeV8(t)
	debug, events := stoppedSessionPair(t, fake)

	fake.handle("continue", func(request *protocol.Request) *protocol.Response {
		return fake.success(request, nil, nil)
	})
	assert.Nil(t, debug.Continue(context.Background()))
	waitForEvent(t, events, "continued")

	fake.sendException(protocol.ExceptionEventBody{
		Exception:  protocol.V8Object{Type: "object", ClassName: "Error", Text: "Error: boom"},
		Uncaught:   true,
		SourceLine: 7,
		Script:     protocol.V8ScriptRef{Id: 42, Name: "/work/app.js"},
	})
	stopped := waitForEvent(t, events, "stopped").(*dap.StoppedEvent)
	assert.Equal(t, string(constants.ExceptionStopped), stopped.Body.Reason)
	assert.Equal(t, "Error: boom", stopped.Body.Text)
}

func TestStepEmitsStepStop(t *testing.T) {
	fake := newFakeV8(t)
	stepped := make(chan protocol.ContinueArgs, 1)
	fake.handle("continue", func(request *protocol.Request) *protocol.Response {
		args := protocol.ContinueArgs{}
		assert.Nil(t, decodeArgs(request, &args))
		stepped <- args
		return fake.success(request, nil, nil)
	})

	debug, events := stoppedSessionPair(t, fake)
	assert.Nil(t, debug.StepOver(context.Background()))
	args := <-stepped
	assert.Equal(t, "next", args.StepAction)
	waitForEvent(t, events, "continued")

	fake.sendBreak(protocol.BreakEventBody{
		SourceLine: 5,
		Script:     protocol.V8ScriptRef{Id: 42, Name: "/work/app.js"},
	})
	stopped := waitForEvent(t, events, "stopped").(*dap.StoppedEvent)
	assert.Equal(t, string(constants.StepStopped), stopped.Body.Reason)
}

func TestResumeWhileRunningFails(t *testing.T) {
	fake := newFakeV8(t)
	fake.handle("continue", func(request *protocol.Request) *protocol.Response {
		return fake.success(request, nil, nil)
	})
	debug, events := stoppedSessionPair(t, fake)

	assert.Nil(t, debug.Continue(context.Background()))
	waitForEvent(t, events, "continued")
	assert.ErrorIs(t, debug.Continue(context.Background()), e.ErrProgramIsRunningOptionFail)
}

func TestTerminateClosesSession(t *testing.T) {
	fake := newFakeV8(t)
	debug, events := stoppedSessionPair(t, fake)

	assert.Nil(t, debug.Terminate(context.Background()))
	waitForEvent(t, events, "terminated")
	assert.ErrorIs(t, debug.Continue(context.Background()), e.ErrDebuggerIsClosed)
}

func TestLaunchPreconditions(t *testing.T) {
	launch := func(mutate func(*Config)) error {
		config := Config{
			Program: filepath.Join(t.TempDir(), "missing.js"),
			Timeout: 300,
		}
		mutate(&config)
		debug := NewNodeDebugger()
		return debug.Start(context.Background(), &StartOption{
			Config:   config,
			Callback: func(event dap.EventMessage) {},
		})
	}

	err := launch(func(config *Config) {
		config.Cwd = "/nonexistent/cwd"
	})
	assert.ErrorIs(t, err, e.ErrWorkingDirectoryNotFound)

	err = launch(func(config *Config) {
		config.RuntimeExecutable = "definitely-not-a-runtime-binary"
	})
	assert.ErrorIs(t, err, e.ErrRuntimeNotFound)

	err = launch(func(config *Config) {
		config.RuntimeExecutable = "true" // exists everywhere, program does not
	})
	assert.ErrorIs(t, err, e.ErrProgramNotFound)
}

func TestConnectFailure(t *testing.T) {
	debug := NewNodeDebugger()
	err := debug.Start(context.Background(), &StartOption{
		Config: Config{
			Address: "127.0.0.1",
			Port:    1, // nothing listens here
			Timeout: 300,
		},
		Attach:   true,
		Callback: func(event dap.EventMessage) {},
	})
	assert.ErrorIs(t, err, e.ErrConnectFailed)
}

func TestClassifyStop(t *testing.T) {
	cases := []struct {
		name          string
		body          protocol.BreakEventBody
		first         bool
		pendingStep   bool
		pendingPause  bool
		debuggerLines map[int]bool
		want          constants.StoppedReasonType
	}{
		{
			name:  "entry via reserved id",
			body:  protocol.BreakEventBody{Breakpoints: []int{constants.EntryBreakpointID}},
			first: true,
			want:  constants.EntryStopped,
		},
		{
			name:  "entry without breakpoint list",
			body:  protocol.BreakEventBody{},
			first: true,
			want:  constants.EntryStopped,
		},
		{
			name: "user breakpoint",
			body: protocol.BreakEventBody{Breakpoints: []int{7}},
			want: constants.BreakpointStopped,
		},
		{
			name:  "user breakpoint on first stop wins over entry",
			body:  protocol.BreakEventBody{Breakpoints: []int{7}},
			first: true,
			want:  constants.BreakpointStopped,
		},
		{
			name:          "debugger statement by parsed line",
			body:          protocol.BreakEventBody{SourceLine: 12},
			debuggerLines: map[int]bool{12: true},
			want:          constants.DebuggerStatementStopped,
		},
		{
			name: "debugger statement by source text",
			body: protocol.BreakEventBody{SourceLineText: "  debugger;"},
			want: constants.DebuggerStatementStopped,
		},
		{
			name:        "step",
			body:        protocol.BreakEventBody{},
			pendingStep: true,
			want:        constants.StepStopped,
		},
		{
			name:         "pause wins over step",
			body:         protocol.BreakEventBody{},
			pendingStep:  true,
			pendingPause: true,
			want:         constants.PauseStopped,
		},
		{
			name: "unsolicited stop counts as step",
			body: protocol.BreakEventBody{},
			want: constants.StepStopped,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := classifyStop(&c.body, c.first, c.pendingStep, c.pendingPause, c.debuggerLines)
			assert.Equal(t, c.want, got)
		})
	}
}

func TestTraceCategorySelection(t *testing.T) {
	config := Config{Trace: "rc, sm"}
	assert.True(t, config.TraceEnabled(constants.TraceProtocol))
	assert.True(t, config.TraceEnabled(constants.TraceSourceMaps))
	assert.False(t, config.TraceEnabled(constants.TraceVariables))

	all := Config{Trace: "all"}
	assert.True(t, all.TraceEnabled(constants.TraceVariables))

	none := Config{}
	assert.False(t, none.TraceEnabled(constants.TraceProtocol))
}
