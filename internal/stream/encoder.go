package stream

import (
	"io"
	"net/http"
	"sync"
)

// Encoder writes chunks to an underlying writer, flushing after each frame
// when the writer supports it.
type Encoder struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	frames  int
}

// NewEncoder creates an Encoder. If w is an http.Flusher every frame is
// flushed as soon as it is written.
func NewEncoder(w io.Writer) *Encoder {
	e := &Encoder{w: w}
	if f, ok := w.(http.Flusher); ok {
		e.flusher = f
	}
	return e
}

// PrepareResponse sets the headers for a streamed relay response. Call it
// before the first Encode.
func PrepareResponse(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	h.Set("Access-Control-Allow-Origin", "*")
}

// Encode writes c as a single frame.
func (e *Encoder) Encode(c Chunk) error {
	frame, err := MarshalFrame(c)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.w.Write(frame); err != nil {
		return err
	}
	e.frames++
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

// Frames reports how many frames were written.
func (e *Encoder) Frames() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frames
}
