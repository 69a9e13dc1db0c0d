package wire

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// maxFrameBytes bounds a single message frame. Stdout chunks are capped well
// below this by the spawner, so the limit only trips on corrupt streams.
const maxFrameBytes = 8 * 1024 * 1024

// Encoder writes envelopes as newline-delimited JSON frames. It is safe for
// concurrent use; the worker harness emits from test code and hook goroutines.
type Encoder struct {
	mu sync.Mutex
	w  io.Writer
}

// NewEncoder returns an Encoder framing onto w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Emit validates and writes one envelope.
func (e *Encoder) Emit(env Envelope) error {
	if err := env.Validate(); err != nil {
		return fmt.Errorf("refusing to emit invalid message: %w", err)
	}
	buf, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	buf = append(buf, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.w.Write(buf); err != nil {
		return fmt.Errorf("failed to write message frame: %w", err)
	}
	return nil
}

// Decoder reads newline-delimited JSON frames from a worker pipe.
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder returns a Decoder reading frames from r.
func NewDecoder(r io.Reader) *Decoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), maxFrameBytes)
	return &Decoder{scanner: s}
}

// Next returns the next envelope. It returns io.EOF once the stream ends
// cleanly, and a decode error for malformed or invalid frames.
func (d *Decoder) Next() (Envelope, error) {
	for d.scanner.Scan() {
		line := d.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(line, &env); err != nil {
			return Envelope{}, fmt.Errorf("malformed message frame: %w", err)
		}
		if err := env.Validate(); err != nil {
			return Envelope{}, err
		}
		return env, nil
	}
	if err := d.scanner.Err(); err != nil {
		return Envelope{}, err
	}
	return Envelope{}, io.EOF
}
