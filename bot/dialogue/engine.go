package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"PledgePay/entity"
	"PledgePay/internal/lib/sl"
)

const (
	// WorkflowStart is the entry menu every new conversation lands on.
	WorkflowStart entity.WorkflowID = "start"
	// WorkflowDonation walks a payer through a donation and payment.
	WorkflowDonation entity.WorkflowID = "donation"
	// WorkflowRegistration collects a volunteer registration.
	WorkflowRegistration entity.WorkflowID = "registration"
)

// KeyNextWorkflow chains workflows: a completing step sets it and the
// engine starts the named workflow with a fresh session.
const KeyNextWorkflow = "next_workflow"

// Engine is the session-driven dialogue orchestrator. All handling for one
// phone is serialized through a keyed mutex; distinct phones proceed
// concurrently.
type Engine struct {
	workflows map[entity.WorkflowID]Workflow
	sessions  SessionStore
	dedup     DedupFilter
	messenger Messenger
	admin     *AdminHandler
	log       *slog.Logger

	isAdmin func(phone string) bool
	isBot   func(phone string) bool
	timeout time.Duration

	mu    sync.Mutex
	locks map[string]*phoneLock
}

// phoneLock serializes turns for one phone. The reference count lets the
// engine drop the entry once no turn holds or waits on it, so the lock map
// does not grow with every phone ever seen.
type phoneLock struct {
	mu   sync.Mutex
	refs int
}

func NewEngine(sessions SessionStore, dedup DedupFilter, messenger Messenger,
	admin *AdminHandler, isAdmin, isBot func(string) bool,
	timeout time.Duration, log *slog.Logger) *Engine {

	return &Engine{
		workflows: make(map[entity.WorkflowID]Workflow),
		sessions:  sessions,
		dedup:     dedup,
		messenger: messenger,
		admin:     admin,
		log:       log.With(sl.Module("dialogue")),
		isAdmin:   isAdmin,
		isBot:     isBot,
		timeout:   timeout,
		locks:     make(map[string]*phoneLock),
	}
}

// RegisterWorkflow adds a workflow to the engine.
func (e *Engine) RegisterWorkflow(w Workflow) {
	e.workflows[w.ID()] = w
	e.log.Info("registered workflow", slog.String("workflow_id", string(w.ID())))
}

func (e *Engine) lockPhone(phone string) *phoneLock {
	e.mu.Lock()
	lock, ok := e.locks[phone]
	if !ok {
		lock = &phoneLock{}
		e.locks[phone] = lock
	}
	lock.refs++
	e.mu.Unlock()

	lock.mu.Lock()
	return lock
}

func (e *Engine) unlockPhone(phone string, lock *phoneLock) {
	lock.mu.Unlock()

	e.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(e.locks, phone)
	}
	e.mu.Unlock()
}

// HandleInbound processes one webhook-delivered message end to end:
// duplicate filter, echo filter, admin commands, then step dispatch.
func (e *Engine) HandleInbound(ctx context.Context, msg entity.Inbound) {
	log := e.log.With(slog.String("phone", msg.From))

	if msg.MessageID != "" {
		seen, err := e.dedup.SeenMessage(ctx, msg.MessageID)
		if err != nil {
			log.Error("dedup lookup failed", sl.Err(err))
			return
		}
		if seen {
			log.Debug("dropping redelivered message", slog.String("message_id", msg.MessageID))
			return
		}
		if err := e.dedup.MarkMessageSeen(ctx, msg.MessageID); err != nil {
			log.Error("failed to mark message seen", sl.Err(err))
			return
		}
	}

	// The bot's own outbound traffic echoes back through the webhook.
	if msg.IsEcho || e.isBot(msg.From) {
		return
	}

	text := strings.TrimSpace(msg.Text)

	if e.isAdmin(msg.From) && strings.HasPrefix(text, "/") {
		e.admin.Handle(ctx, msg.From, text)
		return
	}

	lock := e.lockPhone(msg.From)
	defer e.unlockPhone(msg.From, lock)

	if err := e.dispatch(ctx, msg, text); err != nil {
		log.Error("failed to handle message", sl.Err(err))
	}
}

func (e *Engine) dispatch(ctx context.Context, msg entity.Inbound, text string) error {
	session, err := e.sessions.LoadSession(ctx, msg.From)
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}

	if session == nil {
		return e.StartWorkflow(ctx, msg.From, msg.Name, WorkflowStart)
	}

	// A message landing on a session past its idle timeout cancels the
	// session instead of being processed; the payer starts over fresh.
	if session.IdleFor(time.Now()) > e.timeout {
		if _, err := e.sessions.DeleteSession(ctx, msg.From); err != nil {
			return fmt.Errorf("deleting expired session: %w", err)
		}
		return e.messenger.SendMessage(msg.From,
			"Your previous session expired. Send hi to start again.")
	}

	if strings.EqualFold(text, "cancel") {
		if _, err := e.sessions.DeleteSession(ctx, msg.From); err != nil {
			return fmt.Errorf("cancelling session: %w", err)
		}
		return e.messenger.SendMessage(msg.From,
			"Your session has been cancelled. Send hi whenever you want to start again.")
	}

	w, ok := e.workflows[session.Workflow]
	if !ok {
		return e.recover(ctx, msg, session.Workflow, session.Step)
	}
	step, ok := w.GetStep(session.Step)
	if !ok {
		return e.recover(ctx, msg, session.Workflow, session.Step)
	}

	input := Input{Text: text, ButtonID: msg.ButtonID}
	result := step.HandleInput(ctx, e.messenger, session, input)
	return e.processResult(ctx, msg.Name, session, w, result)
}

// recover drops a session stuck in a state this build no longer knows and
// restarts the donation flow from the top.
func (e *Engine) recover(ctx context.Context, msg entity.Inbound, workflow entity.WorkflowID, step entity.StepID) error {
	e.log.Warn("recovering from unknown session state",
		slog.String("phone", msg.From),
		slog.String("workflow", string(workflow)),
		slog.String("step", string(step)),
	)

	if _, err := e.sessions.DeleteSession(ctx, msg.From); err != nil {
		return fmt.Errorf("deleting unknown-state session: %w", err)
	}

	_ = e.messenger.SendMessage(msg.From,
		"Sorry, something went wrong on our side. Let's start over.")
	return e.StartWorkflow(ctx, msg.From, msg.Name, WorkflowDonation)
}

// StartWorkflow begins a new workflow with a fresh session for the phone.
func (e *Engine) StartWorkflow(ctx context.Context, phone, name string, workflowID entity.WorkflowID) error {
	w, ok := e.workflows[workflowID]
	if !ok {
		return fmt.Errorf("workflow not found: %s", workflowID)
	}

	session := entity.NewSession(phone, workflowID, w.InitialStep())
	if name != "" {
		session.Set("profile_name", name)
	}

	if err := e.sessions.SaveSession(ctx, session); err != nil {
		return fmt.Errorf("saving initial session: %w", err)
	}

	step, ok := w.GetStep(w.InitialStep())
	if !ok {
		return fmt.Errorf("initial step not found: %s", w.InitialStep())
	}

	e.log.Info("starting workflow",
		slog.String("phone", phone),
		slog.String("workflow_id", string(workflowID)),
	)

	result := step.Enter(ctx, e.messenger, session)
	return e.processResult(ctx, name, session, w, result)
}

// processResult applies a step's outcome: state merges, completion and
// workflow chaining, and bounded auto-transitions through Enter hooks.
func (e *Engine) processResult(ctx context.Context, name string, session *entity.Session, w Workflow, result StepResult) error {
	const maxTransitions = 20

	for i := 0; ; i++ {
		if result.Error != nil {
			e.log.Error("step error",
				slog.String("phone", session.Phone),
				slog.String("step_id", string(session.Step)),
				sl.Err(result.Error),
			)
			return result.Error
		}

		if result.Update != nil {
			session.Merge(result.Update)
		}

		if result.Complete {
			e.log.Info("workflow completed",
				slog.String("phone", session.Phone),
				slog.String("workflow_id", string(session.Workflow)),
			)

			if _, err := e.sessions.DeleteSession(ctx, session.Phone); err != nil {
				return err
			}
			if next := session.Get(KeyNextWorkflow); next != "" {
				return e.StartWorkflow(ctx, session.Phone, name, entity.WorkflowID(next))
			}
			return nil
		}

		if result.NextStep == "" || result.NextStep == session.Step || i >= maxTransitions {
			break
		}

		session.Step = result.NextStep
		if err := e.sessions.UpdateSession(ctx, session); err != nil {
			return fmt.Errorf("saving session after transition: %w", err)
		}

		step, ok := w.GetStep(result.NextStep)
		if !ok {
			return fmt.Errorf("next step not found: %s", result.NextStep)
		}

		e.log.Debug("transitioning",
			slog.String("phone", session.Phone),
			slog.String("step_id", string(result.NextStep)),
		)

		result = step.Enter(ctx, e.messenger, session)
	}

	// Update, not save: the payment coordinator may have claimed this
	// session while the turn ran, and its delete must stick.
	return e.sessions.UpdateSession(ctx, session)
}
