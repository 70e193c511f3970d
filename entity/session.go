package entity

import "time"

// WorkflowID identifies the dialogue a session is walking through.
type WorkflowID string

// StepID is the discrete named state of a phone's ongoing dialogue.
type StepID string

// Session is the durable per-phone dialogue state. At most one session
// exists per phone at any time; the phone number is the primary key.
type Session struct {
	Phone      string            `json:"phone" bson:"phone"`
	Workflow   WorkflowID        `json:"workflow" bson:"workflow"`
	Step       StepID            `json:"step" bson:"step"`
	Data       map[string]string `json:"data" bson:"data"`
	LastActive time.Time         `json:"last_active" bson:"last_active"`
	Warned     bool              `json:"warned" bson:"warned"`
	// PollHandle references an in-flight gateway transaction. Set only
	// while the session sits in a payment-pending step.
	PollHandle string `json:"poll_handle,omitempty" bson:"poll_handle,omitempty"`
}

// NewSession creates a session positioned at the given workflow's step.
func NewSession(phone string, workflow WorkflowID, step StepID) *Session {
	return &Session{
		Phone:      phone,
		Workflow:   workflow,
		Step:       step,
		Data:       make(map[string]string),
		LastActive: time.Now(),
	}
}

// Get retrieves a data field, empty string when absent.
func (s *Session) Get(key string) string {
	return s.Data[key]
}

// Set stores a data field.
func (s *Session) Set(key, value string) {
	if s.Data == nil {
		s.Data = make(map[string]string)
	}
	s.Data[key] = value
}

// Merge merges additional data into the session.
func (s *Session) Merge(data map[string]string) {
	if s.Data == nil {
		s.Data = make(map[string]string)
	}
	for k, v := range data {
		s.Data[k] = v
	}
}

// IdleFor reports how long the session has been inactive.
func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastActive)
}
