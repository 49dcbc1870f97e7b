package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Handler receives decoded chunks in arrival order.
type Handler func(Chunk)

// Decoder consumes the byte stream incrementally. Feed it network fragments
// through Write in any split; chunks are dispatched as soon as their frame
// is complete.
type Decoder struct {
	handle  Handler
	logger  zerolog.Logger
	buf     []byte
	err     error
	skipped int
}

// NewDecoder creates a Decoder dispatching to handle.
func NewDecoder(handle Handler, logger zerolog.Logger) *Decoder {
	return &Decoder{handle: handle, logger: logger}
}

// Write implements io.Writer. It returns ErrMalformedFrame (wrapped) once a
// frame breaks the line format; every later call returns the same error.
func (d *Decoder) Write(p []byte) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	d.buf = append(d.buf, p...)
	for {
		frame, rest, ok := nextFrame(d.buf)
		if !ok {
			d.buf = rest
			break
		}
		d.buf = rest
		if err := d.frame(string(frame)); err != nil {
			d.err = err
			return len(p), err
		}
	}
	return len(p), nil
}

// Close processes a trailing frame that was not terminated by a blank line.
func (d *Decoder) Close() error {
	if d.err != nil {
		return d.err
	}
	rest := d.buf
	d.buf = nil
	if len(bytes.TrimSpace(rest)) == 0 {
		return nil
	}
	if err := d.frame(string(rest)); err != nil {
		d.err = err
		return err
	}
	return nil
}

// Skipped reports how many project records were dropped as invalid.
func (d *Decoder) Skipped() int { return d.skipped }

// nextFrame splits off the first complete frame. Leading blank lines are
// discarded. ok is false when no terminating blank line was found yet.
func nextFrame(buf []byte) (frame, rest []byte, ok bool) {
	start := 0
	for {
		j := bytes.IndexByte(buf[start:], '\n')
		if j < 0 {
			return nil, buf, false
		}
		line := buf[start : start+j]
		next := start + j + 1
		if len(bytes.TrimRight(line, "\r")) == 0 {
			if start == 0 {
				buf = buf[next:]
				continue
			}
			return buf[:start], buf[next:], true
		}
		start = next
	}
}

func (d *Decoder) frame(raw string) error {
	var data []string
	for _, line := range strings.Split(strings.TrimRight(raw, "\r\n"), "\n") {
		line = strings.TrimSuffix(line, "\r")
		switch {
		case line == "", strings.HasPrefix(line, ":"):
			continue
		case strings.HasPrefix(line, "data:"):
			v := strings.TrimPrefix(line, "data:")
			data = append(data, strings.TrimPrefix(v, " "))
		case strings.HasPrefix(line, "event:"), strings.HasPrefix(line, "id:"), strings.HasPrefix(line, "retry:"):
			continue
		default:
			return fmt.Errorf("%w: unexpected line %q", ErrMalformedFrame, clip(line))
		}
	}
	if len(data) == 0 {
		return nil
	}

	payload := strings.Join(data, "\n")
	tag, body, ok := strings.Cut(payload, ":")
	if !ok {
		d.logger.Debug().Str("payload", clip(payload)).Msg("untagged frame ignored")
		return nil
	}

	switch tag {
	case TagProject:
		d.projects(body)
	case TagMessage:
		d.handle(MessageChunk(body))
	case TagError:
		d.handle(ErrorChunk(decodeError(body)))
	default:
		d.logger.Debug().Str("tag", clip(tag)).Msg("unknown tag ignored")
	}
	return nil
}

// projects decodes one or more project payloads. Producers may concatenate
// several PROJECT_STREAM payloads in one frame; a marker only separates
// records between complete JSON values, never inside one.
func (d *Decoder) projects(body string) {
	rest := strings.TrimSpace(body)
	for rest != "" {
		var raw json.RawMessage
		jd := json.NewDecoder(strings.NewReader(rest))
		if err := jd.Decode(&raw); err != nil {
			// The broken value may itself contain a marker.
			d.skip(fmt.Errorf("%w: %v", ErrInvalidRecord, err), rest)
			rest = afterMarker(rest)
			continue
		}

		if p, err := decodeProject(string(raw)); err != nil {
			d.skip(err, string(raw))
		} else {
			d.handle(ProjectChunk(p))
		}

		rest = strings.TrimSpace(rest[jd.InputOffset():])
		if next, ok := strings.CutPrefix(rest, TagProject+":"); ok {
			rest = strings.TrimSpace(next)
		} else if rest != "" {
			d.skip(fmt.Errorf("%w: trailing data after record", ErrInvalidRecord), rest)
			rest = afterMarker(rest)
		}
	}
}

// afterMarker returns what follows the next PROJECT_STREAM marker in s, or
// "" when there is none.
func afterMarker(s string) string {
	marker := TagProject + ":"
	i := strings.Index(s, marker)
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(s[i+len(marker):])
}

func (d *Decoder) skip(err error, payload string) {
	d.skipped++
	d.logger.Warn().Err(err).Str("payload", clip(payload)).Msg("dropping malformed project record")
}

func clip(s string) string {
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}
