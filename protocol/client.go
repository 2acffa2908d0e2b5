package protocol

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	e "github.com/fansqz/node-debugger/error"
	"github.com/fansqz/node-debugger/utils"
	"github.com/fansqz/node-debugger/utils/gosync"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultCommandTimeout bounds every runtime round trip unless the
	// caller asks for something else.
	DefaultCommandTimeout = 10 * time.Second

	readBufferSize = 4096
)

// Client connection states.
const (
	Idle        = "idle"
	Dispatching = "dispatching"
	Connected   = "connected"
	Closed      = "closed"
	Errored     = "errored"
)

// pending request states. TimedOut and Completed are terminal, which is what
// makes the late-response race safe: a response matched against a TimedOut
// entry is dropped instead of reactivating a dead waiter.
const (
	statePending = iota
	stateCompleted
	stateTimedOut
)

type EventHandler func(*Event)

type commandResult struct {
	response *Response
	err      error
}

type pendingRequest struct {
	command string
	state   int
	ch      chan commandResult
	timer   *time.Timer
}

// Client 运行时协议客户端
// It owns the one duplex connection to the runtime: assigns sequence numbers,
// correlates responses to requests by request_seq, applies per-command
// deadlines and trips a session-wide unresponsive latch when one fires.
type Client struct {
	status *utils.StatusManager
	host   EmbeddingHost

	mu           sync.Mutex
	seq          int
	pending      map[int]*pendingRequest
	unresponsive bool

	writeMu sync.Mutex
	conn    io.ReadWriteCloser
	codec   *Codec

	subMu sync.RWMutex
	subs  map[string][]EventHandler

	// onEnd fires once when the transport errors or closes; the owning
	// session must treat it as fatal.
	onEnd     func(error)
	onEndOnce sync.Once

	// onDiagnostic reports responsiveness transitions for trace output.
	onDiagnostic func(string)

	trace bool
}

func NewClient() *Client {
	c := &Client{
		status:  utils.NewStatusManager(),
		pending: map[int]*pendingRequest{},
		codec:   NewCodec(),
		subs:    map[string][]EventHandler{},
	}
	c.status.Set(Idle)
	return c
}

// SetTrace enables verbose frame logging.
func (c *Client) SetTrace(enabled bool) {
	c.trace = enabled
}

// OnEvent subscribes to out-of-band events by name ("break", "exception").
func (c *Client) OnEvent(event string, handler EventHandler) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subs[event] = append(c.subs[event], handler)
}

// OnEnd registers the fatal transport-failure callback.
func (c *Client) OnEnd(handler func(error)) {
	c.onEnd = handler
}

// OnDiagnostic registers the responsiveness diagnostic callback.
func (c *Client) OnDiagnostic(handler func(string)) {
	c.onDiagnostic = handler
}

// Host returns the embedding information seen in the connect handshake.
func (c *Client) Host() EmbeddingHost {
	return c.host
}

func (c *Client) State() string {
	return c.status.Get()
}

// StartDispatch takes ownership of conn and starts consuming framed messages
// from it. It returns immediately; decoded messages are dispatched from a
// single goroutine, so correlation state never sees concurrent mutation from
// the read side.
func (c *Client) StartDispatch(ctx context.Context, conn io.ReadWriteCloser) {
	c.conn = conn
	c.status.Set(Dispatching)
	gosync.Go(ctx, c.dispatchLoop)
}

func (c *Client) dispatchLoop(ctx context.Context) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			for _, frame := range c.codec.Append(buf[:n]) {
				c.dispatchFrame(frame)
			}
		}
		if err != nil {
			if err == io.EOF {
				c.status.Set(Closed)
			} else {
				c.status.Set(Errored)
			}
			c.failAllPending(e.ErrTransportClosed)
			c.fireEnd(err)
			return
		}
	}
}

func (c *Client) dispatchFrame(frame []byte) {
	// an empty body is the connect handshake; headers carry the host info
	if len(frame) == 0 {
		c.host = c.codec.Host()
		c.status.Set(Connected)
		logrus.Infof("[Client] connected, embedding host %s %s", c.host.Name, c.host.Version)
		return
	}
	if c.trace {
		logrus.Debugf("[Client] <- %s", string(frame))
	}
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		logrus.Warnf("[Client] dropping undecodable frame: %v", err)
		return
	}
	switch env.Type {
	case TypeResponse:
		response := &Response{}
		if err := json.Unmarshal(frame, response); err != nil {
			logrus.Warnf("[Client] dropping bad response frame: %v", err)
			return
		}
		c.dispatchResponse(response)
	case TypeEvent:
		event := &Event{}
		if err := json.Unmarshal(frame, event); err != nil {
			logrus.Warnf("[Client] dropping bad event frame: %v", err)
			return
		}
		c.publish(event)
	}
}

// dispatchResponse completes the pending entry matched by request_seq.
// Unmatched responses (already timed out) are dropped silently; a matched one
// additionally clears the unresponsive latch, since the runtime just proved
// it is still alive.
func (c *Client) dispatchResponse(response *Response) {
	c.mu.Lock()
	p, ok := c.pending[response.RequestSeq]
	if !ok || p.state != statePending {
		c.mu.Unlock()
		return
	}
	p.state = stateCompleted
	p.timer.Stop()
	delete(c.pending, response.RequestSeq)
	wasUnresponsive := c.unresponsive
	c.unresponsive = false
	c.mu.Unlock()

	if wasUnresponsive {
		logrus.Infof("[Client] runtime is responsive again")
		if c.onDiagnostic != nil {
			c.onDiagnostic("responsive")
		}
	}
	p.ch <- commandResult{response: response}
}

func (c *Client) publish(event *Event) {
	c.subMu.RLock()
	handlers := append([]EventHandler(nil), c.subs[event.Event]...)
	c.subMu.RUnlock()
	for _, handler := range handlers {
		handler(event)
	}
}

// Command issues a runtime command with the default deadline.
func (c *Client) Command(ctx context.Context, command string, args interface{}) (*Response, error) {
	return c.CommandWithTimeout(ctx, DefaultCommandTimeout, command, args)
}

// CommandWithTimeout allocates the next seq, writes the request frame and
// waits for the matching response. It fails fast with ErrClientUnresponsive
// while the latch is tripped, and with ErrCommandTimeout when the deadline
// elapses; the timeout also trips the latch for every later command.
func (c *Client) CommandWithTimeout(ctx context.Context, timeout time.Duration, command string, args interface{}) (*Response, error) {
	c.mu.Lock()
	if c.unresponsive {
		c.mu.Unlock()
		return nil, e.ErrClientUnresponsive
	}
	if c.status.Is(Closed, Errored) {
		c.mu.Unlock()
		return nil, e.ErrTransportClosed
	}
	c.seq++
	seq := c.seq
	p := &pendingRequest{
		command: command,
		state:   statePending,
		ch:      make(chan commandResult, 1),
	}
	p.timer = time.AfterFunc(timeout, func() { c.timeoutFired(seq) })
	c.pending[seq] = p
	c.mu.Unlock()

	if err := c.writeMessage(NewRequest(seq, command, args)); err != nil {
		c.abandon(seq)
		return nil, err
	}

	select {
	case result := <-p.ch:
		return result.response, result.err
	case <-ctx.Done():
		c.abandon(seq)
		return nil, ctx.Err()
	}
}

// timeoutFired removes the entry and trips the unresponsive latch. Removal
// and response matching are mutually exclusive under c.mu, so a response
// racing the timer either completes the entry first or is dropped.
func (c *Client) timeoutFired(seq int) {
	c.mu.Lock()
	p, ok := c.pending[seq]
	if !ok || p.state != statePending {
		c.mu.Unlock()
		return
	}
	p.state = stateTimedOut
	delete(c.pending, seq)
	c.unresponsive = true
	c.mu.Unlock()

	logrus.Warnf("[Client] command %q timed out, entering unresponsive mode", p.command)
	if c.onDiagnostic != nil {
		c.onDiagnostic("unresponsive")
	}
	p.ch <- commandResult{err: e.ErrCommandTimeout}
}

// abandon tears a pending entry down without an answer (write failure or
// caller cancellation).
func (c *Client) abandon(seq int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.pending[seq]; ok && p.state == statePending {
		p.state = stateCompleted
		p.timer.Stop()
		delete(c.pending, seq)
	}
}

func (c *Client) failAllPending(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = map[int]*pendingRequest{}
	c.mu.Unlock()
	for _, p := range pending {
		if p.state == statePending {
			p.state = stateCompleted
			p.timer.Stop()
			p.ch <- commandResult{err: err}
		}
	}
}

func (c *Client) fireEnd(err error) {
	c.onEndOnce.Do(func() {
		if c.onEnd != nil {
			c.onEnd(err)
		}
	})
}

func (c *Client) writeMessage(v interface{}) error {
	data, err := EncodeMessage(v)
	if err != nil {
		return err
	}
	if c.trace {
		logrus.Debugf("[Client] -> %s", string(data))
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err = c.conn.Write(data); err != nil {
		return err
	}
	return nil
}

// Close shuts the connection down; pending commands fail with a transport
// error through the dispatch loop.
func (c *Client) Close() error {
	c.status.Set(Closed)
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
