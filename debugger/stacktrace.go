package debugger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	e "github.com/fansqz/node-debugger/error"
	"github.com/fansqz/node-debugger/protocol"
	"github.com/fansqz/node-debugger/sourcemap"
	"github.com/fansqz/node-debugger/utils"
	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"
)

// moduleWrapperOffset is the length of the function wrapper node puts around
// module code. Positions on the first line of a module arrive shifted by it.
const moduleWrapperOffset = 62

const anonymousFunctionName = "(anonymous function)"

// GetStackTrace returns the call stack of the paused debuggee. The top frame
// and the total depth come from one round trip so shallow stacks cost a
// single exchange; the remaining frames of the requested window are fetched
// concurrently. A frame that cannot be fetched becomes a placeholder instead
// of failing the whole request.
func (d *NodeDebugger) GetStackTrace(ctx context.Context, startFrame, maxLevels int) ([]dap.StackFrame, int, error) {
	if d.status.Is(utils.Terminating, utils.Terminated) {
		return nil, 0, e.ErrDebuggerIsClosed
	}
	if !d.status.Is(utils.Stopped) {
		return nil, 0, e.ErrProgramIsRunningOptionFail
	}
	if maxLevels <= 0 {
		maxLevels = 20
	}
	if startFrame < 0 {
		startFrame = 0
	}

	first, total, err := d.fetchFrameWindow(ctx, 0, 1)
	if err != nil {
		return nil, 0, err
	}
	if len(first) == 0 {
		return nil, 0, nil
	}
	d.storeFrames(first, total)

	end := startFrame + maxLevels
	if end > total {
		end = total
	}
	if startFrame >= end {
		// a window past the end of the stack is an empty page, not an error
		return []dap.StackFrame{}, total, nil
	}

	frames := make([]*protocol.V8Frame, total)
	frames[0] = &first[0]
	var wg sync.WaitGroup
	for i := startFrame; i < end; i++ {
		if i == 0 {
			continue
		}
		wg.Add(1)
		index := i
		go func() {
			defer wg.Done()
			window, _, err := d.fetchFrameWindow(ctx, index, index+1)
			if err != nil || len(window) == 0 {
				logrus.Warnf("[StackTrace] frame %d unavailable: %v", index, err)
				return
			}
			frames[index] = &window[0]
			d.storeFrames(window, total)
		}()
	}
	wg.Wait()

	// one batched lookup resolves every function and script mirror
	handles := make([]int, 0, 2*(end-startFrame))
	for i := startFrame; i < end; i++ {
		if frames[i] == nil {
			continue
		}
		if frames[i].Func.Ref > 0 {
			handles = append(handles, frames[i].Func.Ref)
		}
		if frames[i].Script.Ref > 0 {
			handles = append(handles, frames[i].Script.Ref)
		}
	}
	if err := d.handles.Resolve(ctx, handles); err != nil {
		return nil, 0, err
	}

	result := make([]dap.StackFrame, 0, end-startFrame)
	for i := startFrame; i < end; i++ {
		if frames[i] == nil {
			result = append(result, dap.StackFrame{
				Id:   i,
				Name: "(unknown)",
			})
			continue
		}
		result = append(result, d.renderFrame(i, frames[i]))
	}
	return result, total, nil
}

// fetchFrameWindow asks for frames [from, to).
func (d *NodeDebugger) fetchFrameWindow(ctx context.Context, from, to int) ([]protocol.V8Frame, int, error) {
	response, err := d.client.Command(ctx, "backtrace", &protocol.BacktraceArgs{
		FromFrame:   from,
		ToFrame:     to,
		TotalFrames: true,
	})
	if err != nil {
		return nil, 0, err
	}
	if !response.Success {
		return nil, 0, fmt.Errorf("backtrace failed: %s", response.Message)
	}
	d.handles.Put(response.Refs)
	body := protocol.BacktraceResponseBody{}
	if err := response.BodyAs(&body); err != nil {
		return nil, 0, err
	}
	return body.Frames, body.TotalFrames, nil
}

// storeFrames keeps fetched frames for later scope and evaluate requests;
// the DAP frame id is the frame index.
func (d *NodeDebugger) storeFrames(frames []protocol.V8Frame, total int) {
	d.frameMu.Lock()
	defer d.frameMu.Unlock()
	for i := range frames {
		d.frames[frames[i].Index] = frames[i]
	}
	d.totalFrames = total
}

func (d *NodeDebugger) frameByID(frameId int) (*protocol.V8Frame, bool) {
	d.frameMu.Lock()
	defer d.frameMu.Unlock()
	frame, ok := d.frames[frameId]
	if !ok {
		return nil, false
	}
	return &frame, true
}

// renderFrame converts one runtime frame into its DAP shape, localizing the
// script path and mapping through source maps.
func (d *NodeDebugger) renderFrame(index int, frame *protocol.V8Frame) dap.StackFrame {
	name := anonymousFunctionName
	if funcObj, ok := d.handles.Get(frame.Func.Ref); ok {
		if funcObj.Name != "" {
			name = funcObj.Name
		} else if funcObj.InferredName != "" {
			name = funcObj.InferredName
		}
	} else if frame.Func.Name != "" {
		name = frame.Func.Name
	}

	scriptName := ""
	scriptId := 0
	if scriptObj, ok := d.handles.Get(frame.Script.Ref); ok {
		scriptName = scriptObj.Name
		scriptId = scriptObj.Id
	}

	source, line, column := d.localizeLocation(scriptName, scriptId, frame.Line, frame.Column)
	return dap.StackFrame{
		Id:     index,
		Name:   name,
		Source: source,
		Line:   line,
		Column: column,
	}
}

// localizeLocation turns a runtime location (remote path, 0-based) into what
// the client should see (local path or source reference, 1-based). The
// fallback chain for a mapped source is: file on disk, content inlined in the
// map, then the generated script streamed from the runtime.
func (d *NodeDebugger) localizeLocation(scriptName string, scriptId, line, column int) (*dap.Source, int, int) {
	if line == 0 && d.client.Host().Name == "node" && column >= moduleWrapperOffset {
		column -= moduleWrapperOffset
	}

	if scriptName == "" {
		// eval'd or internal code with no script name
		source := d.scriptSource(scriptId, "<eval>")
		return source, line + 1, column + 1
	}

	localPath := d.remoteToLocal(scriptName)
	if d.resolver.Enabled() {
		if src, ok := d.resolver.MapToSource(localPath, line, column, sourcemap.GreatestLowerBound); ok {
			if _, err := os.Stat(src.Path); err == nil {
				return &dap.Source{Name: filepath.Base(src.Path), Path: src.Path}, src.Line + 1, src.Column + 1
			}
			if src.Content != "" {
				ref := d.sourceReference("map:"+sourcemap.NormalizePath(src.Path), &sourceRef{content: src.Content})
				return &dap.Source{Name: filepath.Base(src.Path), SourceReference: ref}, src.Line + 1, src.Column + 1
			}
		}
	}
	if _, err := os.Stat(localPath); err == nil {
		return &dap.Source{Name: filepath.Base(localPath), Path: localPath}, line + 1, column + 1
	}
	source := d.scriptSource(scriptId, filepath.Base(scriptName))
	return source, line + 1, column + 1
}

func (d *NodeDebugger) scriptSource(scriptId int, name string) *dap.Source {
	if scriptId <= 0 {
		return nil
	}
	ref := d.sourceReference("script:"+strconv.Itoa(scriptId), &sourceRef{scriptId: scriptId})
	return &dap.Source{Name: name, SourceReference: ref}
}

// remoteToLocal rewrites a runtime-side path into the client's filesystem.
func (d *NodeDebugger) remoteToLocal(remotePath string) string {
	return translateRoot(remotePath, d.option.RemoteRoot, d.option.LocalRoot)
}
