package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"PledgePay/entity"
	"PledgePay/internal/lib/sl"
)

const adminHelp = `Admin commands:
/admin - this help
/report pdf - payment summary report
/report excel - payment summary report
/approve <phone> <duration> - approve custom types from a phone (e.g. 1year, 2years, forever)
/session - list active sessions
/session <phone> - show one session`

// ReportService renders payment summaries for the admin channel.
type ReportService interface {
	Summary(ctx context.Context, format string) (string, error)
}

// AdminHandler executes slash commands from configured admin phones. Every
// command is idempotent; side effects reach only the admin's own channel,
// except /approve which writes the custom-type store.
type AdminHandler struct {
	log       *slog.Logger
	messenger Messenger
	customs   CustomTypeStore
	sessions  SessionStore
	reports   ReportService
}

func NewAdminHandler(messenger Messenger, customs CustomTypeStore,
	sessions SessionStore, reports ReportService, log *slog.Logger) *AdminHandler {

	return &AdminHandler{
		log:       log.With(sl.Module("admin")),
		messenger: messenger,
		customs:   customs,
		sessions:  sessions,
		reports:   reports,
	}
}

// Handle dispatches one slash command from an admin.
func (h *AdminHandler) Handle(ctx context.Context, from, text string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return
	}

	h.log.Info("admin command",
		slog.String("phone", from),
		slog.String("command", fields[0]),
	)

	var reply string
	switch fields[0] {
	case "/admin":
		reply = adminHelp
	case "/report":
		reply = h.report(ctx, fields[1:])
	case "/approve":
		reply = h.approve(ctx, from, fields[1:])
	case "/session":
		reply = h.session(ctx, fields[1:])
	default:
		reply = "Unknown command. Send /admin for the list."
	}

	if err := h.messenger.SendMessage(from, reply); err != nil {
		h.log.Error("failed to send admin reply", sl.Err(err))
	}
}

func (h *AdminHandler) report(ctx context.Context, args []string) string {
	format := "pdf"
	if len(args) > 0 {
		format = strings.ToLower(args[0])
	}
	if format != "pdf" && format != "excel" {
		return "Usage: /report pdf | /report excel"
	}

	summary, err := h.reports.Summary(ctx, format)
	if err != nil {
		h.log.Error("report generation failed", sl.Err(err))
		return "Could not generate the report: " + err.Error()
	}
	return summary
}

func (h *AdminHandler) approve(ctx context.Context, from string, args []string) string {
	if len(args) != 2 {
		return "Usage: /approve <phone> <duration> (e.g. /approve 0771234567 1year)"
	}

	phone, err := NormalizePayNumber(args[0])
	if err != nil {
		return "That phone number is not valid: " + args[0]
	}

	expires, err := parseDuration(args[1])
	if err != nil {
		return err.Error()
	}

	approved, err := h.customs.ApproveCustomTypes(ctx, phone, from, expires)
	if err != nil {
		h.log.Error("approval failed", sl.Err(err))
		return "Approval failed: " + err.Error()
	}
	if approved == 0 {
		return "No pending custom types from " + phone + "."
	}

	until := "forever"
	if expires != nil {
		until = "until " + expires.Format("2 Jan 2006")
	}
	return fmt.Sprintf("Approved %d custom type(s) from %s, valid %s.", approved, phone, until)
}

func (h *AdminHandler) session(ctx context.Context, args []string) string {
	if len(args) == 0 {
		sessions, err := h.sessions.AllSessions(ctx)
		if err != nil {
			return "Could not list sessions: " + err.Error()
		}
		if len(sessions) == 0 {
			return "No active sessions."
		}

		var b strings.Builder
		fmt.Fprintf(&b, "%d active session(s):", len(sessions))
		for _, s := range sessions {
			fmt.Fprintf(&b, "\n%s - %s/%s, idle %s",
				s.Phone, s.Workflow, s.Step, s.IdleFor(time.Now()).Round(time.Second))
		}
		return b.String()
	}

	phone, err := NormalizePayNumber(args[0])
	if err != nil {
		phone = args[0]
	}
	session, err := h.sessions.LoadSession(ctx, phone)
	if err != nil {
		return "Could not load session: " + err.Error()
	}
	if session == nil {
		return "No active session for " + phone + "."
	}
	return describeSession(session)
}

func describeSession(s *entity.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session %s\nWorkflow: %s\nStep: %s\nLast active: %s\nWarned: %t",
		s.Phone, s.Workflow, s.Step,
		s.LastActive.Format(time.RFC3339), s.Warned)
	for k, v := range s.Data {
		fmt.Fprintf(&b, "\n%s = %s", k, v)
	}
	return b.String()
}

// parseDuration understands the approval durations admins type: "forever",
// or a year count like "1year" / "2years".
func parseDuration(raw string) (*time.Time, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "forever" {
		return nil, nil
	}

	digits := strings.TrimSuffix(strings.TrimSuffix(raw, "years"), "year")
	if digits == raw {
		return nil, fmt.Errorf("duration must be forever or a year count like 1year")
	}
	years, err := strconv.Atoi(digits)
	if err != nil || years < 1 {
		return nil, fmt.Errorf("duration must be forever or a year count like 1year")
	}

	expires := time.Now().AddDate(years, 0, 0)
	return &expires, nil
}
