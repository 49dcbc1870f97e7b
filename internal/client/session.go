package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"github.com/seanblong/folio/internal/stream"
)

// Session owns the state of one UI session. Submitting a new query abandons
// the previous one: its context is cancelled and anything it still decodes
// is discarded.
type Session struct {
	endpoint string
	http     *http.Client
	logger   zerolog.Logger
	onChange func(State)

	// deliver orders onChange calls; mu guards the fields below it.
	deliver sync.Mutex

	mu     sync.Mutex
	state  State
	gen    uint64
	cancel context.CancelFunc
}

// Option configures a Session.
type Option func(*Session)

// WithHTTPClient sets the client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) { s.http = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithOnChange registers fn to receive every state change of the current
// submission. Calls never overlap and arrive in order. fn may read State
// but must not Submit or Reset.
func WithOnChange(fn func(State)) Option {
	return func(s *Session) { s.onChange = fn }
}

// NewSession creates a Session posting queries to endpoint, the full URL of
// the relay route.
func NewSession(endpoint string, opts ...Option) *Session {
	s := &Session{
		endpoint: endpoint,
		http:     http.DefaultClient,
		logger:   zerolog.Nop(),
		state:    Initial(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// State returns a snapshot of the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.Projects = slices.Clone(st.Projects)
	return st
}

// Reset abandons any in-flight submission and returns to idle.
func (s *Session) Reset() {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
	s.dispatch(gen, Reset{})
}

// Submit resets the state, posts query and applies the stream as it
// arrives. It returns once the stream is drained or has failed. A read or
// HTTP failure is reflected in the state and also returned. When a newer
// submission supersedes this one, Submit returns context.Canceled and
// leaves the state to the newer submission.
func (s *Session) Submit(ctx context.Context, query string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.gen++
	gen := s.gen
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()

	s.dispatch(gen, StartStream{Query: query})

	err := s.run(ctx, gen, query)
	if s.current() != gen {
		return context.Canceled
	}
	if err != nil {
		s.logger.Error().Err(err).Str("query", query).Msg("query stream failed")
		s.dispatch(gen, SetError{Message: err.Error()})
	}
	s.dispatch(gen, EndStream{})
	return err
}

func (s *Session) run(ctx context.Context, gen uint64, query string) error {
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if m := bytes.TrimSpace(msg); len(m) > 0 {
			return fmt.Errorf("search failed: %s: %s", resp.Status, m)
		}
		return fmt.Errorf("search failed: %s", resp.Status)
	}

	dec := stream.NewDecoder(func(c stream.Chunk) {
		switch c.Type {
		case stream.ChunkProject:
			s.dispatch(gen, AddProject{Project: *c.Project})
		case stream.ChunkMessage:
			s.dispatch(gen, AppendText{Text: c.Text})
		case stream.ChunkError:
			s.dispatch(gen, SetError{Message: c.Text})
		}
	}, s.logger)

	if _, err := io.Copy(dec, resp.Body); err != nil {
		if errors.Is(err, stream.ErrMalformedFrame) {
			return err
		}
		return fmt.Errorf("read stream: %w", err)
	}
	if err := dec.Close(); err != nil {
		return err
	}
	if n := dec.Skipped(); n > 0 {
		s.logger.Warn().Int("skipped", n).Msg("malformed project records dropped")
	}
	return nil
}

func (s *Session) current() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// dispatch applies a if gen is still the current submission. Deliveries
// to onChange are serialized in the order the actions were applied, and a
// snapshot superseded before it reaches onChange is dropped.
func (s *Session) dispatch(gen uint64, a Action) {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.state = Reduce(s.state, a)
	st := s.state
	st.Projects = slices.Clone(st.Projects)
	fn := s.onChange
	s.mu.Unlock()

	if fn == nil || s.current() != gen {
		return
	}
	fn(st)
}
