// Package session runs one voice command from trigger to spoken answer.
//
// A Runner executes the steps strictly in order: check the speaker is
// connected, announce listening, record, transcribe, generate and speak the
// reply. Each failure maps to an Outcome and a distinct spoken apology, and
// every temporary file a session creates is removed when it ends.
package session

import (
	"errors"
	"slices"
	"time"
)

// ErrBusy is returned by TryRun while another session is active.
var ErrBusy = errors.New("session: another session is active")

// Outcome is how a session ended.
type Outcome string

const (
	OutcomeSuccess          Outcome = "success"
	OutcomeNoDevice         Outcome = "no_device"
	OutcomeRecordFailed     Outcome = "record_failed"
	OutcomeTranscribeFailed Outcome = "transcribe_failed"
	OutcomeGenerateFailed   Outcome = "generate_failed"
	OutcomeError            Outcome = "error"
)

// Spoken messages.
const (
	MsgNoDevice      = "Enceinte non connectée"
	MsgListening     = "J'écoute"
	MsgRecordFailed  = "Erreur d'enregistrement"
	MsgProcessing    = "Je traite votre demande"
	MsgNotUnderstood = "Je n'ai pas compris"
	MsgConnection    = "Erreur de connexion"
	MsgError         = "Une erreur est survenue"
)

// Request starts a session.
type Request struct {
	// Source names what started the session ("gpio", "api", "cli").
	Source string `json:"source"`
}

// Session is the record of one command.
type Session struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	AudioPath  string    `json:"audio_path,omitempty"`
	Transcript string    `json:"transcript,omitempty"`
	Response   string    `json:"response,omitempty"`
	Outcome    Outcome   `json:"outcome,omitempty"`
	Error      string    `json:"error,omitempty"`
	Artifacts  []string  `json:"artifacts,omitempty"`
}

// Duration returns how long the session ran, zero while it is active.
func (s Session) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Done reports whether the session has finished.
func (s Session) Done() bool {
	return s.Outcome != ""
}

func (s *Session) snapshot() Session {
	c := *s
	c.Artifacts = slices.Clone(s.Artifacts)
	return c
}

func (s *Session) fail(o Outcome, err error) {
	s.Outcome = o
	if err != nil {
		s.Error = err.Error()
	}
}

// Observer is notified when sessions start and finish. Calls are made
// synchronously from the runner and must not block.
type Observer interface {
	OnStart(s Session)
	OnFinish(s Session)
}
