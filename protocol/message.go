// Package protocol implements the V8 legacy debugger wire protocol spoken by
// node when started with --debug-brk: HTTP-header style framing around JSON
// requests, responses and events, plus the correlating client on top of it.
package protocol

import "encoding/json"

const (
	TypeRequest  = "request"
	TypeResponse = "response"
	TypeEvent    = "event"
)

// envelope is the minimal shape needed to tell message kinds apart.
type envelope struct {
	Seq  int    `json:"seq"`
	Type string `json:"type"`
}

// Request 请求消息
type Request struct {
	Seq       int         `json:"seq"`
	Type      string      `json:"type"`
	Command   string      `json:"command"`
	Arguments interface{} `json:"arguments,omitempty"`
}

// Response carries the result for exactly one request, matched by RequestSeq.
// Refs is a side channel of value handles the runtime resolved along the way;
// the reference cache is fed from it before the body is interpreted.
type Response struct {
	Seq        int             `json:"seq"`
	Type       string          `json:"type"`
	RequestSeq int             `json:"request_seq"`
	Command    string          `json:"command"`
	Success    bool            `json:"success"`
	Running    bool            `json:"running"`
	Message    string          `json:"message,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
	Refs       []V8Object      `json:"refs,omitempty"`
}

// Event 运行时主动推送的消息，例如break、exception、afterCompile
type Event struct {
	Seq   int             `json:"seq"`
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Body  json.RawMessage `json:"body,omitempty"`
	Refs  []V8Object      `json:"refs,omitempty"`
}

func NewRequest(seq int, command string, args interface{}) *Request {
	return &Request{
		Seq:       seq,
		Type:      TypeRequest,
		Command:   command,
		Arguments: args,
	}
}

// BodyAs unmarshals the response body into out. A nil body is left as the
// zero value, matching runtime commands that legitimately answer bodyless.
func (r *Response) BodyAs(out interface{}) error {
	if len(r.Body) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, out)
}

func (e *Event) BodyAs(out interface{}) error {
	if len(e.Body) == 0 {
		return nil
	}
	return json.Unmarshal(e.Body, out)
}
