package dialogue

import (
	"context"
	"time"

	"PledgePay/bot/whatsapp"
	"PledgePay/entity"
)

// Input is what a step receives from the payer: free text plus the button
// ID when the message came from an interactive reply.
type Input struct {
	Text     string
	ButtonID string
}

// StepResult represents the outcome of handling an event in a step.
type StepResult struct {
	NextStep entity.StepID
	Update   map[string]string
	Complete bool
	Error    error
}

// Step defines the interface for a single workflow step.
type Step interface {
	// ID returns the unique identifier for this step.
	ID() entity.StepID

	// Enter is called when the session transitions into this step.
	Enter(ctx context.Context, m Messenger, session *entity.Session) StepResult

	// HandleInput processes payer input while the session sits in this step.
	HandleInput(ctx context.Context, m Messenger, session *entity.Session, input Input) StepResult
}

// Workflow defines the interface for a complete workflow.
type Workflow interface {
	// ID returns the unique identifier for this workflow.
	ID() entity.WorkflowID

	// InitialStep returns the first step of the workflow.
	InitialStep() entity.StepID

	// GetStep returns a step by its ID.
	GetStep(id entity.StepID) (Step, bool)
}

// Messenger sends outbound messages to a phone.
type Messenger interface {
	SendMessage(recipientPhone, text string) error
	SendButtons(recipientPhone, text string, buttons []whatsapp.Button) error
	SendList(recipientPhone, text, buttonLabel string, options []whatsapp.Button) error
}

// SessionStore persists per-phone dialogue state. SaveSession creates or
// replaces; UpdateSession writes only if the session still exists, so a
// turn racing the payment coordinator's claim cannot resurrect a session
// the coordinator already deleted.
type SessionStore interface {
	SaveSession(ctx context.Context, session *entity.Session) error
	UpdateSession(ctx context.Context, session *entity.Session) error
	LoadSession(ctx context.Context, phone string) (*entity.Session, error)
	DeleteSession(ctx context.Context, phone string) (bool, error)
	MarkSessionWarned(ctx context.Context, phone string) error
	AllSessions(ctx context.Context) ([]entity.Session, error)
}

// DedupFilter remembers processed message IDs across redeliveries.
type DedupFilter interface {
	SeenMessage(ctx context.Context, messageID string) (bool, error)
	MarkMessageSeen(ctx context.Context, messageID string) error
}

// CustomTypeStore manages admin-curated donation purposes.
type CustomTypeStore interface {
	ActiveCustomTypes(ctx context.Context) ([]entity.CustomType, error)
	AppendCustomType(ctx context.Context, entry entity.CustomType) error
	ApproveCustomTypes(ctx context.Context, addedBy, approvedBy string, expires *time.Time) (int, error)
}

// VolunteerStore persists completed registrations.
type VolunteerStore interface {
	SaveVolunteer(ctx context.Context, v entity.Volunteer) error
}

// PaymentService drives gateway transactions for the payment steps.
type PaymentService interface {
	Initiate(ctx context.Context, p *entity.PendingPayment) (string, error)
	Reconcile(ctx context.Context, p *entity.PendingPayment, pollURL string)
	CheckOnce(ctx context.Context, p *entity.PendingPayment, pollURL string) (entity.PaymentStatus, error)
}
