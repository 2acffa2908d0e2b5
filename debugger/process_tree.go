package debugger

import (
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// KillProcessTree kills a process and every descendant it forked. The
// debuggee may have spawned workers that would otherwise keep the debug port
// open. Failures are logged and swallowed: the processes may already be gone.
func KillProcessTree(pid int) {
	children := childProcesses()
	killTree(pid, children)
}

func killTree(pid int, children map[int][]int) {
	for _, child := range children[pid] {
		killTree(child, children)
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return
	}
	if err := process.Kill(); err != nil {
		logrus.Debugf("[Launch] kill %d: %v", pid, err)
	}
}

// childProcesses builds the ppid -> pids map from ps output.
func childProcesses() map[int][]int {
	out, err := exec.Command("ps", "-e", "-o", "pid=,ppid=").Output()
	if err != nil {
		logrus.Debugf("[Launch] ps failed: %v", err)
		return map[int][]int{}
	}
	children := map[int][]int{}
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		pid, err1 := strconv.Atoi(fields[0])
		ppid, err2 := strconv.Atoi(fields[1])
		if err1 != nil || err2 != nil {
			continue
		}
		children[ppid] = append(children[ppid], pid)
	}
	return children
}
