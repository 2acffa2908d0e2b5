package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/fansqz/node-debugger/debugger"
	"github.com/fansqz/node-debugger/utils"
	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"
)

// handleConnection handles a connection from a single client.
// It reads and decodes the incoming data and dispatches it
// to per-request processing goroutines. It also launches the
// sender goroutine to send resulting messages over the connection
// back to the client.
func handleConnection(conn net.Conn) {
	// 创建调试session
	debugSession := DebugSession{
		id:        utils.GetUUID(),
		conn:      conn,
		rw:        bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn)),
		sendQueue: make(chan dap.Message, 64),
		answered:  map[int]bool{},
	}
	debugSession.sendWg.Add(1)
	go debugSession.sendFromQueue()
	logrus.Infof("[Server] session %s started for %s", debugSession.id, conn.RemoteAddr())

	for {
		err := debugSession.handleRequest()
		if err != nil {
			if err == io.EOF {
				logrus.Infof("[Server] session %s: client disconnected", debugSession.id)
				break
			}
			logrus.Errorf("[Server] session %s: read error: %v", debugSession.id, err)
			break
		}
	}

	debugSession.shutdown()
	close(debugSession.sendQueue)
	debugSession.sendWg.Wait()
	conn.Close()
}

// DebugSession 调试会话
// One session serves one client connection and owns at most one debugger.
type DebugSession struct {
	id   string
	conn net.Conn
	// rw is used to read requests and write events/responses
	rw *bufio.ReadWriter

	debugger *debugger.NodeDebugger

	// sendQueue serializes writes: request handlers and debugger event
	// callbacks feed it, sendFromQueue drains it from a single goroutine.
	sendQueue chan dap.Message
	sendWg    sync.WaitGroup

	sendMu sync.Mutex
	seq    int
	// answered guards against a handler responding twice to one request
	answered map[int]bool
	closed   bool
}

func (d *DebugSession) handleRequest() error {
	request, err := dap.ReadProtocolMessage(d.rw.Reader)
	if err != nil {
		return err
	}
	d.dispatchRequest(request)
	return nil
}

// send assigns the outgoing sequence number and queues the message. A second
// response to an already answered request is dropped with a warning instead
// of corrupting the client's request bookkeeping.
func (d *DebugSession) send(message dap.Message) {
	d.sendMu.Lock()
	if d.closed {
		d.sendMu.Unlock()
		return
	}
	if response, ok := message.(dap.ResponseMessage); ok {
		requestSeq := response.GetResponse().RequestSeq
		if d.answered[requestSeq] {
			d.sendMu.Unlock()
			logrus.Warnf("[Server] dropping duplicate response to request %d (%s)",
				requestSeq, response.GetResponse().Command)
			return
		}
		d.answered[requestSeq] = true
	}
	d.seq++
	switch m := message.(type) {
	case dap.ResponseMessage:
		m.GetResponse().Seq = d.seq
	case dap.EventMessage:
		m.GetEvent().Seq = d.seq
	}
	d.sendQueue <- message
	d.sendMu.Unlock()
}

// sendFromQueue is the single writer. After a write error it keeps draining
// and discarding: senders block on a full queue while holding sendMu, so the
// queue must always empty out until it is closed or shutdown deadlocks.
func (d *DebugSession) sendFromQueue() {
	defer d.sendWg.Done()
	broken := false
	for message := range d.sendQueue {
		if broken {
			continue
		}
		if err := dap.WriteProtocolMessage(d.rw.Writer, message); err != nil {
			logrus.Errorf("[Server] write error: %v", err)
			broken = true
			continue
		}
		d.rw.Flush()
	}
}

// shutdown tears the session's debugger down when the client goes away
// without a proper disconnect.
func (d *DebugSession) shutdown() {
	d.sendMu.Lock()
	d.closed = true
	d.sendMu.Unlock()
	if d.debugger != nil {
		_ = d.debugger.Terminate(context.Background())
	}
}

func newResponse(requestSeq int, command string) *dap.Response {
	return &dap.Response{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  0,
			Type: "response",
		},
		Command:    command,
		RequestSeq: requestSeq,
		Success:    true,
	}
}

func newErrorResponse(requestSeq int, command string, message string) *dap.ErrorResponse {
	er := &dap.ErrorResponse{}
	er.Response = *newResponse(requestSeq, command)
	er.Success = false
	er.Body.Error = &dap.ErrorMessage{}
	er.Body.Error.Format = message
	er.Body.Error.Id = 12345
	return er
}

func fmtUnsupported(command string) string {
	return fmt.Sprintf("%s is not yet supported", command)
}
