package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"PledgePay/entity"
	"PledgePay/internal/lib/sl"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultPollAttempts = 30
)

// Initiator starts gateway transactions and polls their status.
type Initiator interface {
	InitiateMobile(ctx context.Context, p *entity.PendingPayment) (string, error)
	Poll(ctx context.Context, pollURL string) (entity.PaymentStatus, error)
}

// SessionClaimer deletes a session, reporting whether this caller removed
// it. The delete doubles as the commit claim: whoever observes true owns
// the right to write the ledger entry.
type SessionClaimer interface {
	DeleteSession(ctx context.Context, phone string) (bool, error)
}

// Ledger is the append-only record of confirmed payments.
type Ledger interface {
	AppendPayment(ctx context.Context, record entity.PaymentRecord) error
}

// Messenger sends outbound text to a phone.
type Messenger interface {
	SendMessage(recipientPhone, text string) error
}

// Broadcaster pushes confirmed payments to live subscribers.
type Broadcaster interface {
	BroadcastPayment(record entity.PaymentRecord)
}

// Coordinator drives a payment from initiation through asynchronous
// reconciliation. Exactly one ledger entry is written per confirmed
// payment regardless of how many pollers race to resolve it.
type Coordinator struct {
	log          *slog.Logger
	gateway      Initiator
	sessions     SessionClaimer
	ledger       Ledger
	messenger    Messenger
	broadcaster  Broadcaster
	financePhone string

	PollInterval time.Duration
	PollAttempts int
}

func NewCoordinator(gateway Initiator, sessions SessionClaimer, ledger Ledger,
	messenger Messenger, broadcaster Broadcaster, financePhone string,
	log *slog.Logger) *Coordinator {

	return &Coordinator{
		log:          log.With(sl.Module("payment")),
		gateway:      gateway,
		sessions:     sessions,
		ledger:       ledger,
		messenger:    messenger,
		broadcaster:  broadcaster,
		financePhone: financePhone,
		PollInterval: defaultPollInterval,
		PollAttempts: defaultPollAttempts,
	}
}

// Initiate starts a gateway transaction and returns its poll handle.
// ErrUnsupportedMethod passes through for methods the gateway cannot
// automate; the dialogue handles those manually.
func (c *Coordinator) Initiate(ctx context.Context, p *entity.PendingPayment) (string, error) {
	pollURL, err := c.gateway.InitiateMobile(ctx, p)
	if err != nil {
		if !errors.Is(err, ErrUnsupportedMethod) {
			c.log.Error("payment initiation failed",
				slog.String("phone", p.PayerPhone), sl.Err(err))
		}
		return "", err
	}
	return pollURL, nil
}

// Reconcile polls the transaction until it reaches a terminal status or the
// attempt budget runs out. Intended to run in its own goroutine.
func (c *Coordinator) Reconcile(ctx context.Context, p *entity.PendingPayment, pollURL string) {
	log := c.log.With(
		slog.String("phone", p.PayerPhone),
		slog.String("reference", p.Reference),
	)

	for attempt := 0; attempt < c.PollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.PollInterval):
		}

		status, err := c.gateway.Poll(ctx, pollURL)
		if err != nil {
			log.Warn("poll failed", sl.Err(err))
			continue
		}
		if status.Terminal() {
			c.resolve(ctx, p, status)
			return
		}
	}

	// Budget exhausted with the gateway still pending. The session stays so
	// the payer can keep nudging with "check"; the reaper collects it if
	// they walk away.
	log.Warn("payment unconfirmed after poll budget")
	c.send(p.PayerPhone, "We could not confirm your payment yet. "+
		"Reply check to ask again, or cancel to stop.")
}

// CheckOnce performs a single manual poll, used when the payer nudges the
// bot while waiting. Returns the observed status.
func (c *Coordinator) CheckOnce(ctx context.Context, p *entity.PendingPayment, pollURL string) (entity.PaymentStatus, error) {
	status, err := c.gateway.Poll(ctx, pollURL)
	if err != nil {
		return entity.PaymentPending, err
	}
	if status.Terminal() {
		c.resolve(ctx, p, status)
	}
	return status, nil
}

// resolve settles a terminal payment. The session delete is the claim:
// only the caller that removed the session commits side effects, so a
// racing reconcile loop and manual check cannot double-write the ledger.
func (c *Coordinator) resolve(ctx context.Context, p *entity.PendingPayment, status entity.PaymentStatus) {
	claimed, err := c.sessions.DeleteSession(ctx, p.PayerPhone)
	if err != nil {
		c.log.Error("failed to claim session",
			slog.String("phone", p.PayerPhone), sl.Err(err))
		return
	}
	if !claimed {
		return
	}

	switch status {
	case entity.PaymentPaid:
		record := p.Record(time.Now())
		if err := c.ledger.AppendPayment(ctx, record); err != nil {
			c.log.Error("failed to append payment record",
				slog.String("reference", p.Reference), sl.Err(err))
		}
		if c.broadcaster != nil {
			c.broadcaster.BroadcastPayment(record)
		}

		c.log.Info("payment confirmed",
			slog.String("reference", p.Reference),
			slog.Float64("amount", p.Amount),
			slog.String("currency", p.Currency),
		)

		c.send(p.PayerPhone, fmt.Sprintf(
			"Thank you %s! Your %s %.2f payment for %s has been received. God bless you.",
			p.Name, p.Currency, p.Amount, p.Purpose))
		if c.financePhone != "" {
			c.send(c.financePhone, fmt.Sprintf(
				"Payment received: %s %.2f from %s (%s) for %s.",
				p.Currency, p.Amount, p.Name, p.Congregation, p.Purpose))
		}

	case entity.PaymentCancelled:
		c.send(p.PayerPhone, "Your payment was cancelled. Send hi to start again.")

	case entity.PaymentFailed:
		c.send(p.PayerPhone, "Your payment failed. No money was taken. Send hi to try again.")
	}
}

func (c *Coordinator) send(phone, text string) {
	if err := c.messenger.SendMessage(phone, text); err != nil {
		c.log.Error("failed to send message", slog.String("phone", phone), sl.Err(err))
	}
}
