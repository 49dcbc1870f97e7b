// Package client consumes the relay stream and exposes it as observable
// state: the accumulated answer text and the ordered project list.
package client

import (
	"slices"

	"github.com/seanblong/folio/pkg/models"
)

// Phase is the lifecycle position of one submission.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseLoading   Phase = "loading"
	PhaseStreaming Phase = "streaming"
	PhaseDone      Phase = "done"
	PhaseError     Phase = "error"
)

// State is the client view of the current query.
type State struct {
	Phase          Phase
	IsLoading      bool
	IsTyping       bool
	IsError        bool
	ErrorMessage   string
	AIResponseText string
	Projects       []models.ProjectRecord
	CurrentQuery   string
}

// Initial returns the idle state.
func Initial() State {
	return State{Phase: PhaseIdle, Projects: []models.ProjectRecord{}}
}

// Action is a state transition. The concrete types below are the only
// implementations.
type Action interface{ action() }

type (
	StartStream struct{ Query string }
	AddProject  struct{ Project models.ProjectRecord }
	AppendText  struct{ Text string }
	EndStream   struct{}
	SetError    struct{ Message string }
	Reset       struct{}
)

func (StartStream) action() {}
func (AddProject) action()  {}
func (AppendText) action()  {}
func (EndStream) action()   {}
func (SetError) action()    {}
func (Reset) action()       {}

// Reduce applies a to s. s is not modified; the Projects slice of the result
// never aliases the input.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case StartStream:
		return State{
			Phase:        PhaseLoading,
			IsLoading:    true,
			Projects:     []models.ProjectRecord{},
			CurrentQuery: a.Query,
		}
	case AddProject:
		s.Projects = append(slices.Clone(s.Projects), a.Project)
		s.Phase = streaming(s.Phase)
	case AppendText:
		s.Projects = slices.Clone(s.Projects)
		s.AIResponseText += a.Text
		s.Phase = streaming(s.Phase)
		s.IsTyping = s.Phase == PhaseStreaming
	case EndStream:
		s.Projects = slices.Clone(s.Projects)
		s.IsLoading = false
		s.IsTyping = false
		if s.Phase != PhaseError {
			s.Phase = PhaseDone
		}
	case SetError:
		s.Projects = slices.Clone(s.Projects)
		s.Phase = PhaseError
		s.IsLoading = false
		s.IsTyping = false
		s.IsError = true
		s.ErrorMessage = a.Message
	case Reset:
		return Initial()
	}
	return s
}

func streaming(p Phase) Phase {
	if p == PhaseLoading {
		return PhaseStreaming
	}
	return p
}
