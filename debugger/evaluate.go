package debugger

import (
	"context"
	"fmt"
	"strings"

	e "github.com/fansqz/node-debugger/error"
	"github.com/fansqz/node-debugger/protocol"
	"github.com/fansqz/node-debugger/utils"
	"github.com/google/go-dap"
)

// Evaluate runs an expression in the context of a frame, or globally when
// frameId is negative. Break-on-exception stays disabled during the
// evaluation so a throwing watch expression cannot hijack the session.
func (d *NodeDebugger) Evaluate(ctx context.Context, expression string, frameId int) (*dap.Variable, error) {
	if d.status.Is(utils.Terminating, utils.Terminated) {
		return nil, e.ErrDebuggerIsClosed
	}
	if !d.status.Is(utils.Stopped) {
		return nil, e.ErrProgramIsRunningOptionFail
	}

	args := &protocol.EvaluateArgs{
		Expression:      expression,
		DisableBreak:    true,
		MaxStringLength: 10000,
	}
	if frameId >= 0 {
		if _, ok := d.frameByID(frameId); !ok {
			return nil, fmt.Errorf("unknown frame %d", frameId)
		}
		frame := frameId
		args.Frame = &frame
	} else {
		args.Global = true
	}

	response, err := d.client.Command(ctx, "evaluate", args)
	if err != nil {
		return nil, err
	}
	if !response.Success {
		return nil, classifyEvaluateFailure(response.Message)
	}
	d.handles.Put(response.Refs)

	object := protocol.V8Object{}
	if err := response.BodyAs(&object); err != nil {
		return nil, err
	}
	d.handles.Put([]protocol.V8Object{object})
	variable, err := d.variableFromObject(ctx, expression, &object)
	if err != nil {
		return nil, err
	}
	return &variable, nil
}

// classifyEvaluateFailure buckets the runtime error message so the client can
// tell a name that is simply not in scope from a malformed expression.
func classifyEvaluateFailure(message string) error {
	switch {
	case strings.Contains(message, "ReferenceError"):
		return e.ErrEvaluateNotAvailable
	case strings.Contains(message, "SyntaxError"), strings.Contains(message, "Unexpected token"):
		return e.ErrEvaluateInvalidExpr
	case message == "":
		return e.ErrEvaluateNotAvailable
	default:
		return fmt.Errorf("evaluate failed: %s", message)
	}
}
