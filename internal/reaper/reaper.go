// Package reaper runs the background housekeeping jobs: warning and
// expiring idle dialogue sessions, evicting old dedup entries, and pruning
// expired custom donation types.
package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"PledgePay/entity"
	"PledgePay/internal/lib/sl"
)

// SessionStore is the slice of the session store the reaper needs.
type SessionStore interface {
	AllSessions(ctx context.Context) ([]entity.Session, error)
	LoadSession(ctx context.Context, phone string) (*entity.Session, error)
	DeleteSession(ctx context.Context, phone string) (bool, error)
	MarkSessionWarned(ctx context.Context, phone string) error
}

// Housekeeping stores swept on the hourly schedule.
type Housekeeping interface {
	EvictSeenMessages(ctx context.Context, window time.Duration) error
	PruneExpiredCustomTypes(ctx context.Context) error
}

// Messenger notifies phones about their session's fate.
type Messenger interface {
	SendMessage(recipientPhone, text string) error
}

// Reaper owns the cron schedule: an idle sweep every minute and
// housekeeping every hour.
type Reaper struct {
	log          *slog.Logger
	cron         *cron.Cron
	sessions     SessionStore
	housekeeping Housekeeping
	messenger    Messenger

	warnAfter   time.Duration
	expireAfter time.Duration
	dedupWindow time.Duration
}

func New(sessions SessionStore, housekeeping Housekeeping, messenger Messenger,
	warnAfter, expireAfter, dedupWindow time.Duration, log *slog.Logger) *Reaper {

	return &Reaper{
		log:          log.With(sl.Module("reaper")),
		cron:         cron.New(),
		sessions:     sessions,
		housekeeping: housekeeping,
		messenger:    messenger,
		warnAfter:    warnAfter,
		expireAfter:  expireAfter,
		dedupWindow:  dedupWindow,
	}
}

// Start schedules the jobs and starts the cron loop.
func (r *Reaper) Start() error {
	if _, err := r.cron.AddFunc("* * * * *", func() {
		r.SweepIdle(context.Background())
	}); err != nil {
		return err
	}
	if _, err := r.cron.AddFunc("@hourly", func() {
		r.Housekeep(context.Background())
	}); err != nil {
		return err
	}

	r.cron.Start()
	r.log.Info("reaper started",
		slog.Duration("warn_after", r.warnAfter),
		slog.Duration("expire_after", r.expireAfter),
	)
	return nil
}

// Stop halts the schedule and waits for running jobs.
func (r *Reaper) Stop() {
	<-r.cron.Stop().Done()
}

// SweepIdle warns sessions past the warn threshold once, and expires
// sessions past the timeout.
func (r *Reaper) SweepIdle(ctx context.Context) {
	sessions, err := r.sessions.AllSessions(ctx)
	if err != nil {
		r.log.Error("failed to snapshot sessions", sl.Err(err))
		return
	}

	now := time.Now()
	for _, session := range sessions {
		idle := session.IdleFor(now)

		switch {
		case idle > r.expireAfter:
			r.expire(ctx, session.Phone)

		case idle > r.warnAfter && !session.Warned:
			if err := r.sessions.MarkSessionWarned(ctx, session.Phone); err != nil {
				r.log.Error("failed to mark session warned",
					slog.String("phone", session.Phone), sl.Err(err))
				continue
			}
			r.send(session.Phone,
				"Are you still there? Your session will expire shortly if we don't hear from you.")
		}
	}
}

// expire deletes an idle session. The session is re-read right before the
// delete: the snapshot may be stale, and a message that arrived since the
// sweep started must win over the reaper.
func (r *Reaper) expire(ctx context.Context, phone string) {
	current, err := r.sessions.LoadSession(ctx, phone)
	if err != nil {
		r.log.Error("failed to re-read session", slog.String("phone", phone), sl.Err(err))
		return
	}
	if current == nil || current.IdleFor(time.Now()) <= r.expireAfter {
		return
	}

	deleted, err := r.sessions.DeleteSession(ctx, phone)
	if err != nil {
		r.log.Error("failed to expire session", slog.String("phone", phone), sl.Err(err))
		return
	}
	if !deleted {
		return
	}

	r.log.Info("expired idle session", slog.String("phone", phone))
	r.send(phone, "Your session expired due to inactivity. Send hi to start again.")
}

// Housekeep evicts old dedup entries and prunes expired custom types.
func (r *Reaper) Housekeep(ctx context.Context) {
	if err := r.housekeeping.EvictSeenMessages(ctx, r.dedupWindow); err != nil {
		r.log.Error("failed to evict seen messages", sl.Err(err))
	}
	if err := r.housekeeping.PruneExpiredCustomTypes(ctx); err != nil {
		r.log.Error("failed to prune custom types", sl.Err(err))
	}
}

func (r *Reaper) send(phone, text string) {
	if err := r.messenger.SendMessage(phone, text); err != nil {
		r.log.Error("failed to send message", slog.String("phone", phone), sl.Err(err))
	}
}
