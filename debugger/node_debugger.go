package debugger

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/fansqz/node-debugger/constants"
	e "github.com/fansqz/node-debugger/error"
	"github.com/fansqz/node-debugger/protocol"
	"github.com/fansqz/node-debugger/sourcemap"
	"github.com/fansqz/node-debugger/utils"
	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"
)

const (
	// MainThreadID 调试目标只有一个线程
	MainThreadID = 1

	// entryWaitTimeout bounds the wait for the break-on-entry event. When it
	// expires (attaching to a runtime that is already running) the entry
	// location is synthesized from the current top frame instead.
	entryWaitTimeout = 2 * time.Second
)

// stopLocation is where the debuggee last stopped, in runtime coordinates
// (0-based line/column, remote script path).
type stopLocation struct {
	scriptId       int
	scriptName     string
	line           int
	column         int
	sourceLineText string
}

// NodeDebugger drives one debug session against a node runtime speaking the
// legacy V8 debugger protocol. All exported methods are safe for concurrent
// use; the DAP server calls them from its request loop while runtime events
// arrive on the client dispatch goroutine.
type NodeDebugger struct {
	option   *StartOption
	callback NotificationCallback

	status      *utils.StatusManager
	client      *protocol.Client
	resolver    *sourcemap.Resolver
	refUtil     *ReferenceUtil
	handles     *HandleCache
	breakpoints *BreakpointManager
	entryTimer  *utils.TimeoutManager

	cmd     *exec.Cmd
	ptyFile *os.File

	mu            sync.Mutex
	seenEntry     bool
	configured    bool
	entryStop     *stopLocation
	currentStop   *stopLocation
	exceptionText string
	pendingStep   bool
	pendingPause  bool
	// debuggerLines are the lines of the main script that hold a debugger
	// statement, found by parsing it at launch.
	debuggerLines map[int]bool

	frameMu     sync.Mutex
	frames      map[int]protocol.V8Frame
	totalFrames int

	sourceMu       sync.Mutex
	nextSourceRef  int
	sourceByRef    map[int]*sourceRef
	sourceRefByKey map[string]int

	terminateOnce sync.Once
}

// sourceRef backs one DAP sourceReference: either inlined text from a source
// map, or a runtime script to stream on demand.
type sourceRef struct {
	content  string
	scriptId int
}

func NewNodeDebugger() *NodeDebugger {
	return &NodeDebugger{
		status:         utils.NewStatusManager(),
		refUtil:        NewReferenceUtil(),
		entryTimer:     utils.NewTimeoutManager(),
		frames:         map[int]protocol.V8Frame{},
		nextSourceRef:  1,
		sourceByRef:    map[int]*sourceRef{},
		sourceRefByKey: map[string]int{},
	}
}

// Start launches or attaches per the option and brings the session to the
// point where the client can configure breakpoints. It returns once the
// runtime connection is established; the initialized event is emitted
// asynchronously when the entry stop is known.
func (d *NodeDebugger) Start(ctx context.Context, option *StartOption) error {
	if !d.status.Is(utils.Uninitialized) {
		return fmt.Errorf("debugger already started")
	}
	d.status.Set(utils.Initializing)
	d.option = option
	d.callback = option.Callback

	d.resolver = sourcemap.NewResolver(sourcemap.Options{
		SourceMaps: option.SourceMaps,
		OutDir:     option.OutDir,
		OutFiles:   option.OutFiles,
		Trace:      option.TraceEnabled(constants.TraceSourceMaps),
	})

	d.client = protocol.NewClient()
	d.client.SetTrace(option.TraceEnabled(constants.TraceProtocol))
	d.client.OnEvent("break", d.onBreakEvent)
	d.client.OnEvent("exception", d.onExceptionEvent)
	// module loading before the entry break emits a compile event per file;
	// each one proves the runtime is alive, so the entry wait starts over
	d.client.OnEvent("afterCompile", func(event *protocol.Event) {
		d.entryTimer.Reset()
	})
	d.client.OnEnd(d.onTransportEnd)
	d.client.OnDiagnostic(d.onDiagnostic)
	d.handles = NewHandleCache(d.client)
	d.breakpoints = NewBreakpointManager(d.client, d.resolver, &option.Config)

	if !option.Attach {
		if err := d.launchProcess(ctx); err != nil {
			d.status.Set(utils.Terminated)
			return err
		}
	} else if option.ProcessId > 0 {
		if err := sendEnterDebugSignal(option.ProcessId); err != nil {
			d.status.Set(utils.Terminated)
			return err
		}
	}

	conn, err := d.connectWithRetry(ctx)
	if err != nil {
		d.killDebuggee()
		d.status.Set(utils.Terminated)
		return err
	}
	d.client.StartDispatch(context.Background(), conn)

	// first round trip confirms the runtime answers commands
	if response, err := d.client.Command(ctx, "version", nil); err == nil && response.Success {
		body := protocol.VersionResponseBody{}
		if response.BodyAs(&body) == nil && body.V8Version != "" {
			logrus.Infof("[NodeDebugger] connected, V8 %s", body.V8Version)
		}
	}
	if option.Attach {
		d.probeDebuggeePid(ctx)
	}

	d.scanProgram()

	// wait for the --debug-brk entry break; synthesize one if it never comes
	d.entryTimer.Start(context.Background(), entryWaitTimeout, d.synthesizeEntry)
	return nil
}

// probeDebuggeePid asks the attached runtime for its pid. Best effort, the
// result only feeds logging; some runtimes refuse global evaluates while
// running.
func (d *NodeDebugger) probeDebuggeePid(ctx context.Context) {
	response, err := d.client.Command(ctx, "evaluate", &protocol.EvaluateArgs{
		Expression:   "process.pid",
		Global:       true,
		DisableBreak: true,
	})
	if err != nil || !response.Success {
		return
	}
	object := protocol.V8Object{}
	if response.BodyAs(&object) == nil && object.Type == protocol.V8TypeNumber {
		logrus.Infof("[NodeDebugger] attached to pid %s", scalarText(&object))
	}
}

// scanProgram parses the program for debugger statements so later stops on
// those lines can be classified.
func (d *NodeDebugger) scanProgram() {
	program := d.option.Program
	if program == "" {
		return
	}
	if generated, ok := d.resolver.MapPathFromSource(program); ok {
		program = generated
	}
	content, err := os.ReadFile(program)
	if err != nil {
		return
	}
	lines, err := AnalyzeDebuggerLines(content)
	if err != nil {
		logrus.Warnf("[NodeDebugger] cannot parse %s: %v", program, err)
		return
	}
	d.mu.Lock()
	d.debuggerLines = lines
	d.mu.Unlock()
}

// synthesizeEntry fires when no break event arrived inside the entry wait
// window. The debuggee may be running (plain attach); best effort only.
func (d *NodeDebugger) synthesizeEntry() {
	d.mu.Lock()
	if d.seenEntry {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), protocol.DefaultCommandTimeout)
	defer cancel()
	var loc *stopLocation
	response, err := d.client.Command(ctx, "backtrace", &protocol.BacktraceArgs{FromFrame: 0, ToFrame: 1, TotalFrames: true})
	if err == nil && response.Success && !response.Running {
		body := protocol.BacktraceResponseBody{}
		if response.BodyAs(&body) == nil && len(body.Frames) > 0 {
			frame := body.Frames[0]
			loc = &stopLocation{line: frame.Line, column: frame.Column}
		}
	}
	if loc == nil && !d.option.Attach {
		// --debug-brk parks the runtime before the first statement even when
		// backtrace misbehaves; derive the entry location from the script
		loc = d.entryFromProgram()
	}

	d.mu.Lock()
	if d.seenEntry {
		d.mu.Unlock()
		return
	}
	d.seenEntry = true
	d.entryStop = loc
	d.currentStop = loc
	configured := d.configured
	d.mu.Unlock()

	if loc != nil {
		d.status.Set(utils.Stopped)
	} else {
		d.status.Set(utils.Running)
	}
	if !configured {
		d.emit(&dap.InitializedEvent{Event: newEvent("initialized")})
	}
}

// entryFromProgram locates the first executable statement of the launched
// program as the presumed entry stop.
func (d *NodeDebugger) entryFromProgram() *stopLocation {
	program := d.option.Program
	if program == "" {
		return nil
	}
	if generated, ok := d.resolver.MapPathFromSource(program); ok {
		program = generated
	}
	content, err := os.ReadFile(program)
	if err != nil {
		return nil
	}
	line, column, err := FirstStatementLocation(content)
	if err != nil {
		return nil
	}
	return &stopLocation{scriptName: program, line: line, column: column}
}

// ConfigurationDone ends the configuration phase. The deferred entry stop is
// surfaced now: reported as "entry" when stopOnEntry is set, as "breakpoint"
// when a user breakpoint covers the entry location, and auto-continued
// otherwise.
func (d *NodeDebugger) ConfigurationDone(ctx context.Context) error {
	d.mu.Lock()
	if d.configured {
		d.mu.Unlock()
		return nil
	}
	d.configured = true
	entry := d.entryStop
	d.entryStop = nil
	d.mu.Unlock()

	if entry == nil {
		return nil
	}
	if d.option.StopOnEntry {
		d.status.Set(utils.Stopped)
		d.emitStopped(constants.EntryStopped, "")
		return nil
	}
	if d.breakpoints.HasBreakpointAt(entry.scriptName, entry.line) {
		d.status.Set(utils.Stopped)
		d.emitStopped(constants.BreakpointStopped, "")
		return nil
	}
	return d.resume(ctx, "")
}

// onBreakEvent handles the runtime break event: every previous mirror and
// variable reference is invalid from here on.
func (d *NodeDebugger) onBreakEvent(event *protocol.Event) {
	body := protocol.BreakEventBody{}
	if err := event.BodyAs(&body); err != nil {
		logrus.Warnf("[NodeDebugger] bad break event: %v", err)
		return
	}
	d.invalidateStopState()

	loc := &stopLocation{
		scriptId:       body.Script.Id,
		scriptName:     body.Script.Name,
		line:           body.SourceLine,
		column:         body.SourceColumn,
		sourceLineText: body.SourceLineText,
	}

	d.mu.Lock()
	first := !d.seenEntry
	d.seenEntry = true
	d.currentStop = loc
	d.exceptionText = ""
	pendingStep := d.pendingStep
	pendingPause := d.pendingPause
	d.pendingStep = false
	d.pendingPause = false
	configured := d.configured
	debuggerLines := d.debuggerLines
	d.mu.Unlock()
	d.entryTimer.Cancel()
	d.status.Set(utils.Stopped)

	if first && !configured {
		// hold the entry stop until the client finishes configuration
		d.mu.Lock()
		d.entryStop = loc
		d.mu.Unlock()
		d.emit(&dap.InitializedEvent{Event: newEvent("initialized")})
		return
	}

	reason := classifyStop(&body, first, pendingStep, pendingPause, debuggerLines)
	d.emitStopped(reason, "")
}

func (d *NodeDebugger) onExceptionEvent(event *protocol.Event) {
	body := protocol.ExceptionEventBody{}
	if err := event.BodyAs(&body); err != nil {
		logrus.Warnf("[NodeDebugger] bad exception event: %v", err)
		return
	}
	d.invalidateStopState()

	text := body.Exception.Text
	if text == "" {
		text = "uncaught exception"
	}
	d.mu.Lock()
	d.seenEntry = true
	d.currentStop = &stopLocation{
		scriptId:   body.Script.Id,
		scriptName: body.Script.Name,
		line:       body.SourceLine,
		column:     body.SourceColumn,
	}
	d.exceptionText = text
	d.pendingStep = false
	d.pendingPause = false
	d.mu.Unlock()
	d.entryTimer.Cancel()
	d.status.Set(utils.Stopped)
	d.emitStopped(constants.ExceptionStopped, text)
}

// classifyStop decides the stop reason in priority order. Exceptions arrive
// on their own event and never reach here.
func classifyStop(body *protocol.BreakEventBody, first, pendingStep, pendingPause bool, debuggerLines map[int]bool) constants.StoppedReasonType {
	if first {
		for _, id := range body.Breakpoints {
			if id == constants.EntryBreakpointID {
				return constants.EntryStopped
			}
		}
		// --debug-brk stops report the reserved id, but some runtimes omit
		// the list entirely on the entry stop
		if len(body.Breakpoints) == 0 {
			return constants.EntryStopped
		}
	}
	for _, id := range body.Breakpoints {
		if id != constants.EntryBreakpointID {
			return constants.BreakpointStopped
		}
	}
	if debuggerLines[body.SourceLine] || strings.HasPrefix(strings.TrimSpace(body.SourceLineText), "debugger") {
		return constants.DebuggerStatementStopped
	}
	if pendingPause {
		return constants.PauseStopped
	}
	// anything else, solicited or not, presents as a step: the runtime only
	// halts mid-flight on its own while honoring a step action
	return constants.StepStopped
}

// invalidateStopState drops everything keyed to the previous stop: cached
// mirrors, variable references and the frame window.
func (d *NodeDebugger) invalidateStopState() {
	if d.handles != nil {
		d.handles.Clear()
	}
	d.refUtil.Reset()
	d.frameMu.Lock()
	d.frames = map[int]protocol.V8Frame{}
	d.totalFrames = 0
	d.frameMu.Unlock()
}

func (d *NodeDebugger) onTransportEnd(err error) {
	if d.status.Is(utils.Terminating, utils.Terminated) {
		return
	}
	logrus.Infof("[NodeDebugger] runtime connection ended: %v", err)
	d.finish()
}

func (d *NodeDebugger) onDiagnostic(state string) {
	d.emit(&dap.OutputEvent{
		Event: newEvent("output"),
		Body: dap.OutputEventBody{
			Category: "console",
			Output:   fmt.Sprintf("debugger: runtime is %s\n", state),
		},
	})
}

// Continue 忽略继续执行
func (d *NodeDebugger) Continue(ctx context.Context) error {
	return d.resume(ctx, "")
}

// StepOver 下一步，不会进入函数内部
func (d *NodeDebugger) StepOver(ctx context.Context) error {
	return d.step(ctx, constants.StepOver)
}

// StepIn 下一步，会进入函数内部
func (d *NodeDebugger) StepIn(ctx context.Context) error {
	return d.step(ctx, constants.StepIn)
}

// StepOut 单步退出
func (d *NodeDebugger) StepOut(ctx context.Context) error {
	return d.step(ctx, constants.StepOut)
}

func (d *NodeDebugger) step(ctx context.Context, stepType constants.StepType) error {
	action := map[constants.StepType]string{
		constants.StepOver: "next",
		constants.StepIn:   "in",
		constants.StepOut:  "out",
	}[stepType]
	d.mu.Lock()
	d.pendingStep = true
	d.mu.Unlock()
	if err := d.resume(ctx, action); err != nil {
		d.mu.Lock()
		d.pendingStep = false
		d.mu.Unlock()
		return err
	}
	return nil
}

// resume sends continue with an optional step action. Mirrors and references
// die on resume, not only on the next stop: the runtime reuses handles.
func (d *NodeDebugger) resume(ctx context.Context, stepAction string) error {
	if d.status.Is(utils.Terminating, utils.Terminated) {
		return e.ErrDebuggerIsClosed
	}
	if !d.status.Is(utils.Stopped) {
		return e.ErrProgramIsRunningOptionFail
	}
	d.invalidateStopState()

	args := &protocol.ContinueArgs{}
	if stepAction != "" {
		args.StepAction = stepAction
		args.StepCount = 1
	}
	response, err := d.client.Command(ctx, "continue", args)
	if err != nil {
		return err
	}
	if !response.Success {
		return fmt.Errorf("continue failed: %s", response.Message)
	}
	d.status.Set(utils.Running)
	d.emit(&dap.ContinuedEvent{
		Event: newEvent("continued"),
		Body:  dap.ContinuedEventBody{ThreadId: MainThreadID, AllThreadsContinued: true},
	})
	return nil
}

// Pause suspends a running debuggee; the stop surfaces through the following
// break event.
func (d *NodeDebugger) Pause(ctx context.Context) error {
	if d.status.Is(utils.Terminating, utils.Terminated) {
		return e.ErrDebuggerIsClosed
	}
	if d.status.Is(utils.Stopped) {
		return nil
	}
	d.mu.Lock()
	d.pendingPause = true
	d.mu.Unlock()
	response, err := d.client.Command(ctx, "suspend", nil)
	if err != nil {
		return err
	}
	if !response.Success {
		return fmt.Errorf("suspend failed: %s", response.Message)
	}
	return nil
}

// Terminate 终止调试
func (d *NodeDebugger) Terminate(ctx context.Context) error {
	d.status.Set(utils.Terminating)
	d.entryTimer.Cancel()
	if d.client != nil && d.client.State() == protocol.Connected {
		// best effort, the runtime may already be gone
		shortCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		_, _ = d.client.CommandWithTimeout(shortCtx, 2*time.Second, "disconnect", nil)
		cancel()
	}
	if d.client != nil {
		_ = d.client.Close()
	}
	d.killDebuggee()
	d.finish()
	return nil
}

// finish moves the session to its terminal state exactly once.
func (d *NodeDebugger) finish() {
	d.terminateOnce.Do(func() {
		d.status.Set(utils.Terminated)
		d.invalidateStopState()
		d.emit(&dap.TerminatedEvent{Event: newEvent("terminated")})
	})
}

// SetBreakpoints replaces every breakpoint of one source.
func (d *NodeDebugger) SetBreakpoints(ctx context.Context, source dap.Source, breakpoints []dap.SourceBreakpoint) ([]dap.Breakpoint, error) {
	if d.status.Is(utils.Terminating, utils.Terminated) {
		return nil, e.ErrDebuggerIsClosed
	}
	return d.breakpoints.SetBreakpoints(ctx, source, breakpoints)
}

// SetFunctionBreakpoints replaces every function breakpoint.
func (d *NodeDebugger) SetFunctionBreakpoints(ctx context.Context, breakpoints []dap.FunctionBreakpoint) ([]dap.Breakpoint, error) {
	if d.status.Is(utils.Terminating, utils.Terminated) {
		return nil, e.ErrDebuggerIsClosed
	}
	return d.breakpoints.SetFunctionBreakpoints(ctx, breakpoints)
}

// SetExceptionBreakpoints configures the exception pause policy.
func (d *NodeDebugger) SetExceptionBreakpoints(ctx context.Context, filters []string) error {
	if d.status.Is(utils.Terminating, utils.Terminated) {
		return e.ErrDebuggerIsClosed
	}
	return d.breakpoints.SetExceptionBreakpoints(ctx, filters)
}

// emitStopped sends the stopped event for the current stop.
func (d *NodeDebugger) emitStopped(reason constants.StoppedReasonType, text string) {
	d.emit(&dap.StoppedEvent{
		Event: newEvent("stopped"),
		Body: dap.StoppedEventBody{
			Reason:            string(reason),
			ThreadId:          MainThreadID,
			AllThreadsStopped: true,
			Text:              text,
		},
	})
}

func (d *NodeDebugger) emit(event dap.EventMessage) {
	if d.callback != nil {
		d.callback(event)
	}
}

func newEvent(name string) dap.Event {
	return dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Type: "event"},
		Event:           name,
	}
}

// sourceReference interns a DAP source reference for inline map content or a
// runtime script.
func (d *NodeDebugger) sourceReference(key string, ref *sourceRef) int {
	d.sourceMu.Lock()
	defer d.sourceMu.Unlock()
	if existing, ok := d.sourceRefByKey[key]; ok {
		return existing
	}
	id := d.nextSourceRef
	d.nextSourceRef++
	d.sourceRefByKey[key] = id
	d.sourceByRef[id] = ref
	return id
}

// GetSource returns the text behind a source reference, streaming it from
// the runtime when the map did not inline it.
func (d *NodeDebugger) GetSource(ctx context.Context, sourceReference int) (string, error) {
	d.sourceMu.Lock()
	ref, ok := d.sourceByRef[sourceReference]
	d.sourceMu.Unlock()
	if !ok {
		return "", fmt.Errorf("unknown source reference %d", sourceReference)
	}
	if ref.content != "" {
		return ref.content, nil
	}
	response, err := d.client.Command(ctx, "scripts", &protocol.ScriptsArgs{
		Types:         4,
		Ids:           []int{ref.scriptId},
		IncludeSource: true,
	})
	if err != nil {
		return "", err
	}
	if !response.Success {
		return "", fmt.Errorf("scripts failed: %s", response.Message)
	}
	var scripts []protocol.V8Object
	if err := response.BodyAs(&scripts); err != nil {
		return "", err
	}
	if len(scripts) == 0 {
		return "", fmt.Errorf("script %d not found", ref.scriptId)
	}
	ref.content = scripts[0].Source
	return ref.content, nil
}
