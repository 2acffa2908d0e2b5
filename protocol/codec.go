package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

var headerTerminator = []byte("\r\n\r\n")

// UnknownEmbeddingHost is the sentinel left in place when the runtime never
// announced itself or its announcement could not be parsed.
const UnknownEmbeddingHost = "unknown"

// EmbeddingHost describes the runtime embedding V8, taken from the
// Embedding-Host and V8-Version headers of the connect handshake.
type EmbeddingHost struct {
	Name      string
	Version   string
	V8Version string
}

func newEmbeddingHost() EmbeddingHost {
	return EmbeddingHost{Name: UnknownEmbeddingHost}
}

// Codec 帧编解码器
// It owns an append-only buffer: callers push raw chunks in whatever sizes
// the transport delivers them and get back every complete message body the
// buffer now holds, with any unterminated tail kept for the next chunk.
// Content-Length is counted in bytes, not characters.
type Codec struct {
	buf           []byte
	inBody        bool
	contentLength int
	host          EmbeddingHost
}

func NewCodec() *Codec {
	return &Codec{host: newEmbeddingHost()}
}

// Host returns whatever embedding information has been seen so far.
func (c *Codec) Host() EmbeddingHost {
	return c.host
}

// Append feeds one chunk and drains all complete message bodies from the
// buffer. A Content-Length: 0 frame yields an empty body, not an error; the
// node handshake arrives exactly that way.
func (c *Codec) Append(data []byte) [][]byte {
	c.buf = append(c.buf, data...)
	var frames [][]byte
	for {
		if !c.inBody {
			idx := bytes.Index(c.buf, headerTerminator)
			if idx < 0 {
				return frames
			}
			c.parseHeaders(c.buf[:idx])
			c.buf = c.buf[idx+len(headerTerminator):]
			c.inBody = true
		}
		if len(c.buf) < c.contentLength {
			return frames
		}
		body := make([]byte, c.contentLength)
		copy(body, c.buf[:c.contentLength])
		c.buf = c.buf[c.contentLength:]
		c.inBody = false
		c.contentLength = 0
		frames = append(frames, body)
	}
}

// parseHeaders reads the header block. Anything malformed is skipped; only
// Content-Length matters for framing, the rest is opportunistic.
func (c *Codec) parseHeaders(block []byte) {
	c.contentLength = 0
	for _, line := range strings.Split(string(block), "\r\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "content-length":
			if n, err := strconv.Atoi(value); err == nil && n >= 0 {
				c.contentLength = n
			}
		case "embedding-host":
			c.parseEmbeddingHost(value)
		case "v8-version":
			c.host.V8Version = value
		}
	}
}

// parseEmbeddingHost parses values like "node v6.3.0". Unparseable values
// leave the host at the unknown sentinel rather than failing the frame.
func (c *Codec) parseEmbeddingHost(value string) {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return
	}
	c.host.Name = fields[0]
	if len(fields) > 1 {
		c.host.Version = strings.TrimPrefix(fields[1], "v")
	}
}

// EncodeMessage frames v for the wire.
func EncodeMessage(v interface{}) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(body))
	return append([]byte(header), body...), nil
}
