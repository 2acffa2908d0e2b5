package debugger

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"time"

	"github.com/creack/pty"
	"github.com/fansqz/node-debugger/constants"
	e "github.com/fansqz/node-debugger/error"
	"github.com/fansqz/node-debugger/utils/gosync"
	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

const defaultRuntime = "node"

// launchProcess validates the launch config, spawns the runtime under a pty
// and wires its output into DAP output events. The runtime is started with
// --debug-brk so it stops on the first line and waits for us to connect.
func (d *NodeDebugger) launchProcess(ctx context.Context) error {
	option := d.option

	cwd := option.Cwd
	if cwd != "" {
		if info, err := os.Stat(cwd); err != nil || !info.IsDir() {
			return e.ErrWorkingDirectoryNotFound
		}
	}

	if option.Console != "" && option.Console != "internalConsole" {
		logrus.Warnf("[Launch] console %q is not supported, using the internal console", option.Console)
	}

	runtime := option.RuntimeExecutable
	if runtime == "" {
		runtime = defaultRuntime
	}
	runtimePath, err := exec.LookPath(runtime)
	if err != nil {
		return e.ErrRuntimeNotFound
	}

	program, err := d.resolveProgram(option.Program)
	if err != nil {
		return err
	}

	args := append([]string{}, option.RuntimeArgs...)
	args = append(args, fmt.Sprintf("--debug-brk=%d", option.AttachPort()))
	args = append(args, program)
	args = append(args, option.Args...)
	if option.TraceEnabled(constants.TraceLaunch) {
		logrus.Debugf("[Launch] %s %v", runtimePath, args)
	}

	cmd := exec.Command(runtimePath, args...)
	cmd.Dir = cwd
	cmd.Env = os.Environ()
	for key, value := range option.Env {
		cmd.Env = append(cmd.Env, key+"="+value)
	}

	ptyFile, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("start runtime: %w", err)
	}
	// raw mode keeps the runtime from re-echoing its own output
	_, _ = term.MakeRaw(int(ptyFile.Fd()))
	d.cmd = cmd
	d.ptyFile = ptyFile

	gosync.Go(ctx, d.streamOutput)
	gosync.Go(ctx, d.waitForExit)
	return nil
}

// resolveProgram maps the configured program to the file the runtime should
// execute. A source-mapped program (the client passes the .ts file) runs its
// generated output instead.
func (d *NodeDebugger) resolveProgram(program string) (string, error) {
	if program == "" {
		return "", e.ErrProgramNotFound
	}
	if _, err := os.Stat(program); err != nil {
		return "", e.ErrProgramNotFound
	}
	if generated, ok := d.resolver.MapPathFromSource(program); ok {
		if _, err := os.Stat(generated); err != nil {
			return "", e.ErrProgramNotFound
		}
		return generated, nil
	}
	return program, nil
}

// streamOutput forwards debuggee output to the client as it arrives.
func (d *NodeDebugger) streamOutput(ctx context.Context) {
	buf := make([]byte, 4096)
	for {
		n, err := d.ptyFile.Read(buf)
		if n > 0 {
			d.emit(&dap.OutputEvent{
				Event: newEvent("output"),
				Body: dap.OutputEventBody{
					Category: "stdout",
					Output:   string(buf[:n]),
				},
			})
		}
		if err != nil {
			return
		}
	}
}

// waitForExit reaps the debuggee and reports its exit to the client.
func (d *NodeDebugger) waitForExit(ctx context.Context) {
	err := d.cmd.Wait()
	code := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		code = exitErr.ExitCode()
	}
	logrus.Infof("[Launch] debuggee exited with code %d", code)
	d.emit(&dap.ExitedEvent{
		Event: newEvent("exited"),
		Body:  dap.ExitedEventBody{ExitCode: code},
	})
	d.finish()
}

// connectWithRetry dials the runtime debug port until it answers or the
// attach budget runs out. A freshly signalled process needs a moment to open
// the port, so the first refusals are expected.
func (d *NodeDebugger) connectWithRetry(ctx context.Context) (net.Conn, error) {
	address := d.option.Address
	if address == "" {
		address = "127.0.0.1"
	}
	target := fmt.Sprintf("%s:%d", address, d.option.AttachPort())
	deadline := time.Now().Add(d.option.AttachTimeout())
	for {
		conn, err := net.DialTimeout("tcp", target, constants.AttachRetryInterval)
		if err == nil {
			logrus.Infof("[Launch] connected to runtime at %s", target)
			return conn, nil
		}
		if time.Now().After(deadline) {
			logrus.Errorf("[Launch] cannot connect to %s: %v", target, err)
			return nil, e.ErrConnectFailed
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(constants.AttachRetryInterval):
		}
	}
}

// killDebuggee tears down the spawned runtime and everything it forked.
// Attach sessions leave the debuggee alone.
func (d *NodeDebugger) killDebuggee() {
	if d.ptyFile != nil {
		_ = d.ptyFile.Close()
	}
	if d.cmd != nil && d.cmd.Process != nil {
		KillProcessTree(d.cmd.Process.Pid)
	}
}
