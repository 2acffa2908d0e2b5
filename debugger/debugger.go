package debugger

import (
	"context"
	"strings"
	"time"

	"github.com/fansqz/node-debugger/constants"
	"github.com/google/go-dap"
)

// NotificationCallback 事件回调
// The orchestrator reports asynchronous session events (stopped, output,
// terminated) through this callback; the DAP server forwards them verbatim.
type NotificationCallback func(event dap.EventMessage)

// Config carries the launch/attach arguments as the client sends them.
// Field names follow the configuration keys of the node launch config.
type Config struct {
	// launch
	Program           string            `json:"program,omitempty"`
	Args              []string          `json:"args,omitempty"`
	Cwd               string            `json:"cwd,omitempty"`
	RuntimeExecutable string            `json:"runtimeExecutable,omitempty"`
	RuntimeArgs       []string          `json:"runtimeArgs,omitempty"`
	Env               map[string]string `json:"env,omitempty"`
	StopOnEntry       bool              `json:"stopOnEntry,omitempty"`
	// Console selects where debuggee IO goes. Only the internal console is
	// supported; other values fall back to it with a warning.
	Console string `json:"console,omitempty"`

	// source maps
	SourceMaps bool     `json:"sourceMaps,omitempty"`
	OutDir     string   `json:"outDir,omitempty"`
	OutFiles   []string `json:"outFiles,omitempty"`

	// attach
	Address string `json:"address,omitempty"`
	Port    int    `json:"port,omitempty"`
	// Timeout bounds the attach retry loop, in milliseconds.
	Timeout int `json:"timeout,omitempty"`
	// ProcessId enables attaching to a process that was not started in
	// debug mode; it is signalled to open the debug port first.
	ProcessId int `json:"processId,omitempty"`

	// path translation for remote debugging
	LocalRoot  string `json:"localRoot,omitempty"`
	RemoteRoot string `json:"remoteRoot,omitempty"`

	// Trace selects diagnostic categories, comma separated ("all", "rc,sm").
	Trace string `json:"trace,omitempty"`
}

// StartOption 启动调试的参数
type StartOption struct {
	Config
	// Attach connects to an already running runtime instead of spawning one.
	Attach bool
	// Callback 事件回调
	Callback NotificationCallback
}

// TraceEnabled reports whether a diagnostic category was requested.
func (c *Config) TraceEnabled(category constants.TraceCategory) bool {
	for _, part := range strings.Split(c.Trace, ",") {
		part = strings.TrimSpace(part)
		if part == string(constants.TraceAll) || part == string(category) {
			return true
		}
	}
	return false
}

// AttachTimeout returns the configured connect budget.
func (c *Config) AttachTimeout() time.Duration {
	if c.Timeout > 0 {
		return time.Duration(c.Timeout) * time.Millisecond
	}
	return constants.DefaultAttachTimeout
}

// AttachPort returns the configured debug port.
func (c *Config) AttachPort() int {
	if c.Port > 0 {
		return c.Port
	}
	return constants.DefaultDebugPort
}

// Debugger
// 用户的一次调试过程处理
// 需要保证并发安全
type Debugger interface {
	// Start 开始调试，callback用来异步处理事件
	Start(ctx context.Context, option *StartOption) error
	// SetBreakpoints replaces every breakpoint of one source.
	SetBreakpoints(ctx context.Context, source dap.Source, breakpoints []dap.SourceBreakpoint) ([]dap.Breakpoint, error)
	// SetFunctionBreakpoints replaces every function breakpoint.
	SetFunctionBreakpoints(ctx context.Context, breakpoints []dap.FunctionBreakpoint) ([]dap.Breakpoint, error)
	// SetExceptionBreakpoints configures the exception pause policy.
	SetExceptionBreakpoints(ctx context.Context, filters []string) error
	// ConfigurationDone finishes the startup sequence begun by Start.
	ConfigurationDone(ctx context.Context) error
	// GetStackTrace 获取栈帧
	GetStackTrace(ctx context.Context, startFrame, maxLevels int) ([]dap.StackFrame, int, error)
	// GetScopes lists the scopes of one stack frame.
	GetScopes(ctx context.Context, frameId int) ([]dap.Scope, error)
	// GetVariables 查看引用的值
	GetVariables(ctx context.Context, reference int, filter string, start, count int) ([]dap.Variable, error)
	// GetSource fetches script text for a source reference.
	GetSource(ctx context.Context, sourceReference int) (string, error)
	// Evaluate evaluates an expression, optionally in a frame context.
	Evaluate(ctx context.Context, expression string, frameId int) (*dap.Variable, error)
	// Continue 忽略继续执行
	Continue(ctx context.Context) error
	// StepOver 下一步，不会进入函数内部
	StepOver(ctx context.Context) error
	// StepIn 下一步，会进入函数内部
	StepIn(ctx context.Context) error
	// StepOut 单步退出
	StepOut(ctx context.Context) error
	// Pause suspends a running debuggee.
	Pause(ctx context.Context) error
	// Terminate 终止调试
	Terminate(ctx context.Context) error
}
