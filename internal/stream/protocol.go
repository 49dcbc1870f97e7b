// Package stream implements the tagged-line protocol used to relay query
// results from the server to the browser.
//
// Every chunk is one frame:
//
//	data: <TAG>:<PAYLOAD>\n\n
//
// Payload lines after the first are carried on their own "data: " lines and
// joined with "\n" on decode, so text containing blank lines never ends a
// frame early. Line breaks in payloads are normalized to "\n": "\r\n" and a
// lone "\r" both decode as "\n".
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/seanblong/folio/pkg/models"
)

// Wire tags.
const (
	TagProject = "PROJECT_STREAM"
	TagMessage = "MESSAGE_STREAM"
	TagError   = "ERROR_STREAM"
)

// ChunkType discriminates Chunk.
type ChunkType string

const (
	ChunkProject ChunkType = "project"
	ChunkMessage ChunkType = "message"
	ChunkError   ChunkType = "error"
)

// Chunk is one unit of the stream. Exactly one of Project or Text is
// meaningful, selected by Type; for ChunkError, Text holds the message.
type Chunk struct {
	Type    ChunkType
	Project *models.ProjectRecord
	Text    string
}

// ProjectChunk wraps one ranked project record.
func ProjectChunk(p models.ProjectRecord) Chunk { return Chunk{Type: ChunkProject, Project: &p} }

// MessageChunk carries a piece of answer text.
func MessageChunk(text string) Chunk { return Chunk{Type: ChunkMessage, Text: text} }

// ErrorChunk reports a failure that ends the answer.
func ErrorChunk(message string) Chunk { return Chunk{Type: ChunkError, Text: message} }

var (
	// ErrMalformedFrame is returned when a frame does not follow the
	// line format. The rest of the stream cannot be trusted after it.
	ErrMalformedFrame = errors.New("malformed stream frame")
	// ErrInvalidRecord marks a single payload that failed to decode.
	ErrInvalidRecord = errors.New("invalid stream record")
)

type envelope struct {
	Type string       `json:"type"`
	Data envelopeData `json:"data"`
}

type envelopeData struct {
	Project *models.ProjectRecord `json:"project,omitempty"`
	Message string                `json:"message,omitempty"`
}

var validate = validator.New()

var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// MarshalFrame renders c as a complete frame including the terminating
// blank line.
func MarshalFrame(c Chunk) ([]byte, error) {
	var tag, payload string
	switch c.Type {
	case ChunkProject:
		if c.Project == nil {
			return nil, errors.New("project chunk without project")
		}
		b, err := json.Marshal(envelope{Type: string(ChunkProject), Data: envelopeData{Project: c.Project}})
		if err != nil {
			return nil, fmt.Errorf("encode project: %w", err)
		}
		tag, payload = TagProject, string(b)
	case ChunkMessage:
		tag, payload = TagMessage, c.Text
	case ChunkError:
		b, err := json.Marshal(envelope{Type: string(ChunkError), Data: envelopeData{Message: c.Text}})
		if err != nil {
			return nil, fmt.Errorf("encode error: %w", err)
		}
		tag, payload = TagError, string(b)
	default:
		return nil, fmt.Errorf("unknown chunk type %q", c.Type)
	}

	payload = lineBreaks.Replace(payload)
	lines := strings.Split(tag+":"+payload, "\n")
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString("data: ")
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	sb.WriteByte('\n')
	return []byte(sb.String()), nil
}

// decodeProject parses one PROJECT_STREAM payload.
func decodeProject(payload string) (models.ProjectRecord, error) {
	var env envelope
	if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &env); err != nil {
		return models.ProjectRecord{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if env.Type != string(ChunkProject) || env.Data.Project == nil {
		return models.ProjectRecord{}, fmt.Errorf("%w: not a project envelope", ErrInvalidRecord)
	}
	if err := validate.Struct(env.Data.Project); err != nil {
		return models.ProjectRecord{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return *env.Data.Project, nil
}

// decodeError parses an ERROR_STREAM payload. Raw text is accepted as the
// message itself.
func decodeError(payload string) string {
	var env envelope
	if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &env); err == nil && env.Data.Message != "" {
		return env.Data.Message
	}
	if s := strings.TrimSpace(payload); s != "" {
		return s
	}
	return "stream reported an error"
}
