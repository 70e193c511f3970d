package dialogue

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"PledgePay/bot/whatsapp"
	"PledgePay/entity"
)

// mockMessenger records outbound traffic per phone. onSend, when set, runs
// after each send and lets a test interleave concurrent work mid-turn.
type mockMessenger struct {
	mu     sync.Mutex
	sent   map[string][]string
	onSend func(phone, text string)
}

func newMockMessenger() *mockMessenger {
	return &mockMessenger{sent: make(map[string][]string)}
}

func (m *mockMessenger) SendMessage(phone, text string) error {
	m.mu.Lock()
	m.sent[phone] = append(m.sent[phone], text)
	hook := m.onSend
	m.mu.Unlock()
	if hook != nil {
		hook(phone, text)
	}
	return nil
}

func (m *mockMessenger) SendButtons(phone, text string, _ []whatsapp.Button) error {
	return m.SendMessage(phone, text)
}

func (m *mockMessenger) SendList(phone, text, _ string, _ []whatsapp.Button) error {
	return m.SendMessage(phone, text)
}

func (m *mockMessenger) lastTo(phone string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.sent[phone]
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

func (m *mockMessenger) countTo(phone string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent[phone])
}

// mockStore is an in-test session store and dedup filter with direct
// access to stored state.
type mockStore struct {
	mu       sync.Mutex
	sessions map[string]*entity.Session
	seen     map[string]bool
	customs  []entity.CustomType
	deletes  int
}

func newMockStore() *mockStore {
	return &mockStore{
		sessions: make(map[string]*entity.Session),
		seen:     make(map[string]bool),
	}
}

func (s *mockStore) SaveSession(_ context.Context, session *entity.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session.LastActive = time.Now()
	cp := *session
	s.sessions[session.Phone] = &cp
	return nil
}

func (s *mockStore) UpdateSession(_ context.Context, session *entity.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.Phone]; !ok {
		return nil
	}
	session.LastActive = time.Now()
	cp := *session
	s.sessions[session.Phone] = &cp
	return nil
}

func (s *mockStore) LoadSession(_ context.Context, phone string) (*entity.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[phone]
	if !ok {
		return nil, nil
	}
	cp := *session
	return &cp, nil
}

func (s *mockStore) DeleteSession(_ context.Context, phone string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.sessions[phone]
	delete(s.sessions, phone)
	if existed {
		s.deletes++
	}
	return existed, nil
}

func (s *mockStore) MarkSessionWarned(_ context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[phone]; ok {
		session.Warned = true
	}
	return nil
}

func (s *mockStore) AllSessions(_ context.Context) ([]entity.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, *session)
	}
	return out, nil
}

func (s *mockStore) SeenMessage(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[id], nil
}

func (s *mockStore) MarkMessageSeen(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[id] = true
	return nil
}

func (s *mockStore) ActiveCustomTypes(_ context.Context) ([]entity.CustomType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var active []entity.CustomType
	for _, t := range s.customs {
		if t.Active(now) {
			active = append(active, t)
		}
	}
	return active, nil
}

func (s *mockStore) AppendCustomType(_ context.Context, entry entity.CustomType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customs = append(s.customs, entry)
	return nil
}

func (s *mockStore) ApproveCustomTypes(_ context.Context, addedBy, approvedBy string, expires *time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.customs {
		if s.customs[i].AddedBy == addedBy && s.customs[i].ApprovedOn.IsZero() {
			s.customs[i].ApprovedBy = approvedBy
			s.customs[i].ApprovedOn = time.Now()
			s.customs[i].Expires = expires
			n++
		}
	}
	return n, nil
}

func (s *mockStore) SaveVolunteer(_ context.Context, _ entity.Volunteer) error { return nil }

func (s *mockStore) session(phone string) *entity.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[phone]
}

// mockPayments stubs the gateway interaction.
type mockPayments struct {
	mu         sync.Mutex
	initiated  []*entity.PendingPayment
	initErr    error
	checkState entity.PaymentStatus
	store      *mockStore
}

func (p *mockPayments) Initiate(_ context.Context, pending *entity.PendingPayment) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initErr != nil {
		return "", p.initErr
	}
	p.initiated = append(p.initiated, pending)
	return "https://paynow.test/poll/" + pending.Reference, nil
}

func (p *mockPayments) Reconcile(_ context.Context, _ *entity.PendingPayment, _ string) {}

func (p *mockPayments) CheckOnce(ctx context.Context, pending *entity.PendingPayment, _ string) (entity.PaymentStatus, error) {
	p.mu.Lock()
	status := p.checkState
	p.mu.Unlock()
	if status.Terminal() && p.store != nil {
		// the coordinator claims the session on terminal status
		p.store.DeleteSession(ctx, pending.PayerPhone)
	}
	return status, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(store *mockStore, messenger *mockMessenger, payments *mockPayments) *Engine {
	log := testLogger()
	engine := NewEngine(store, store, messenger, nil,
		func(string) bool { return false },
		func(string) bool { return false },
		15*time.Minute, log)
	engine.RegisterWorkflow(NewStartWorkflow())
	engine.RegisterWorkflow(NewDonationWorkflow(store, payments, ""))
	engine.RegisterWorkflow(NewRegistrationWorkflow(store))
	return engine
}

var msgSeq int

func send(engine *Engine, phone, text string) {
	msgSeq++
	engine.HandleInbound(context.Background(), entity.Inbound{
		MessageID: fmt.Sprintf("wamid.%d", msgSeq),
		From:      phone,
		Text:      text,
	})
}

const testPhone = "263771234567"

// driveToConfirmation walks a fresh phone up to the confirmation summary.
func driveToConfirmation(engine *Engine, phone string) {
	send(engine, phone, "hi")
	send(engine, phone, "2")
	send(engine, phone, "John Doe")
	send(engine, phone, "Harare Central Congregation")
	send(engine, phone, "1")
	send(engine, phone, "40")
	send(engine, phone, "1")
	send(engine, phone, "none")
}

func TestEngineStartsMenuForNewPhone(t *testing.T) {
	store := newMockStore()
	messenger := newMockMessenger()
	engine := newTestEngine(store, messenger, &mockPayments{})

	send(engine, testPhone, "hello")

	session := store.session(testPhone)
	if session == nil {
		t.Fatal("expected a session to be created")
	}
	if session.Workflow != WorkflowStart || session.Step != StepStartMenu {
		t.Errorf("session at %s/%s, want %s/%s",
			session.Workflow, session.Step, WorkflowStart, StepStartMenu)
	}
	if !strings.Contains(messenger.lastTo(testPhone), "Welcome") {
		t.Errorf("expected welcome message, got %q", messenger.lastTo(testPhone))
	}
}

func TestEngineDropsRedeliveredMessage(t *testing.T) {
	store := newMockStore()
	messenger := newMockMessenger()
	engine := newTestEngine(store, messenger, &mockPayments{})

	msg := entity.Inbound{MessageID: "wamid.dup", From: testPhone, Text: "hi"}
	engine.HandleInbound(context.Background(), msg)
	before := messenger.countTo(testPhone)
	engine.HandleInbound(context.Background(), msg)

	if got := messenger.countTo(testPhone); got != before {
		t.Errorf("redelivery triggered %d extra message(s)", got-before)
	}
}

func TestEngineIgnoresEchoes(t *testing.T) {
	store := newMockStore()
	messenger := newMockMessenger()
	engine := newTestEngine(store, messenger, &mockPayments{})

	engine.HandleInbound(context.Background(), entity.Inbound{
		MessageID: "wamid.echo", From: testPhone, Text: "hi", IsEcho: true,
	})

	if store.session(testPhone) != nil {
		t.Error("echo message must not create a session")
	}
	if messenger.countTo(testPhone) != 0 {
		t.Error("echo message must not be answered")
	}
}

func TestEngineDonationHappyPath(t *testing.T) {
	store := newMockStore()
	messenger := newMockMessenger()
	payments := &mockPayments{store: store}
	engine := newTestEngine(store, messenger, payments)

	driveToConfirmation(engine, testPhone)

	session := store.session(testPhone)
	if session == nil {
		t.Fatal("session lost before confirmation")
	}
	if session.Step != StepConfirm {
		t.Fatalf("session at step %s, want %s", session.Step, StepConfirm)
	}
	if got := session.Get(KeyAmount); got != "40.00" {
		t.Errorf("amount = %q, want 40.00", got)
	}
	if got := session.Get(KeyCurrency); got != "USD" {
		t.Errorf("currency = %q, want USD", got)
	}
	if got := session.Get(KeyRegion); got != "Harare Central" {
		t.Errorf("region = %q, want Harare Central", got)
	}
	if got := session.Get(KeyNote); got != "None" {
		t.Errorf("note = %q, want None", got)
	}

	send(engine, testPhone, "confirm")
	send(engine, testPhone, "1") // EcoCash
	send(engine, testPhone, "0772000000")

	session = store.session(testPhone)
	if session == nil {
		t.Fatal("session lost after payment initiation")
	}
	if session.Step != StepPending {
		t.Fatalf("session at step %s, want %s", session.Step, StepPending)
	}
	if session.PollHandle == "" {
		t.Error("poll handle not recorded on session")
	}

	if len(payments.initiated) != 1 {
		t.Fatalf("gateway initiated %d times, want 1", len(payments.initiated))
	}
	pending := payments.initiated[0]
	if pending.BillNumber != "263772000000" {
		t.Errorf("bill number = %q, want 263772000000", pending.BillNumber)
	}
	if pending.Amount != 40 || pending.Currency != "USD" {
		t.Errorf("pending = %.2f %s, want 40.00 USD", pending.Amount, pending.Currency)
	}
	if pending.Reference == "" {
		t.Error("pending payment has no reference")
	}
}

func TestEngineSingleSessionPerPhone(t *testing.T) {
	store := newMockStore()
	messenger := newMockMessenger()
	engine := newTestEngine(store, messenger, &mockPayments{})

	driveToConfirmation(engine, testPhone)

	sessions, _ := store.AllSessions(context.Background())
	if len(sessions) != 1 {
		t.Fatalf("%d sessions for one phone, want 1", len(sessions))
	}
}

func TestEngineCancelKeyword(t *testing.T) {
	store := newMockStore()
	messenger := newMockMessenger()
	engine := newTestEngine(store, messenger, &mockPayments{})

	send(engine, testPhone, "hi")
	send(engine, testPhone, "CANCEL")

	if store.session(testPhone) != nil {
		t.Error("cancel must delete the session")
	}
	if !strings.Contains(messenger.lastTo(testPhone), "cancelled") {
		t.Errorf("expected cancellation confirmation, got %q", messenger.lastTo(testPhone))
	}
}

func TestEngineExpiresStaleSession(t *testing.T) {
	store := newMockStore()
	messenger := newMockMessenger()
	engine := newTestEngine(store, messenger, &mockPayments{})

	send(engine, testPhone, "hi")
	store.mu.Lock()
	store.sessions[testPhone].LastActive = time.Now().Add(-16 * time.Minute)
	store.mu.Unlock()

	send(engine, testPhone, "2")

	if store.session(testPhone) != nil {
		t.Error("message after timeout must cancel the session, not advance it")
	}
	if !strings.Contains(messenger.lastTo(testPhone), "expired") {
		t.Errorf("expected expiry notice, got %q", messenger.lastTo(testPhone))
	}
}

func TestEngineKeepsLiveSession(t *testing.T) {
	store := newMockStore()
	messenger := newMockMessenger()
	engine := newTestEngine(store, messenger, &mockPayments{})

	send(engine, testPhone, "hi")
	store.mu.Lock()
	store.sessions[testPhone].LastActive = time.Now().Add(-14 * time.Minute)
	store.mu.Unlock()

	send(engine, testPhone, "2")

	session := store.session(testPhone)
	if session == nil {
		t.Fatal("session under the timeout must survive")
	}
	if session.Workflow != WorkflowDonation {
		t.Errorf("session workflow = %s, want %s", session.Workflow, WorkflowDonation)
	}
}

func TestEngineRecoversFromUnknownStep(t *testing.T) {
	store := newMockStore()
	messenger := newMockMessenger()
	engine := newTestEngine(store, messenger, &mockPayments{})

	store.SaveSession(context.Background(),
		entity.NewSession(testPhone, WorkflowDonation, "no_such_step"))

	send(engine, testPhone, "anything")

	session := store.session(testPhone)
	if session == nil {
		t.Fatal("recovery must restart a session")
	}
	if session.Workflow != WorkflowDonation || session.Step != StepName {
		t.Errorf("recovered to %s/%s, want %s/%s",
			session.Workflow, session.Step, WorkflowDonation, StepName)
	}
}

func TestEngineCheckResolvesTerminalPayment(t *testing.T) {
	store := newMockStore()
	messenger := newMockMessenger()
	payments := &mockPayments{store: store}
	engine := newTestEngine(store, messenger, payments)

	driveToConfirmation(engine, testPhone)
	send(engine, testPhone, "confirm")
	send(engine, testPhone, "1")
	send(engine, testPhone, "0772000000")

	payments.mu.Lock()
	payments.checkState = entity.PaymentPaid
	payments.mu.Unlock()

	send(engine, testPhone, "check")

	if store.session(testPhone) != nil {
		t.Error("terminal status on check must end the session")
	}
}

func TestEngineRegistrationFlow(t *testing.T) {
	store := newMockStore()
	messenger := newMockMessenger()
	engine := newTestEngine(store, messenger, &mockPayments{})

	send(engine, testPhone, "hi")
	send(engine, testPhone, "1")
	send(engine, testPhone, "Jane")
	send(engine, testPhone, "Moyo")
	send(engine, testPhone, "jane@example.com")
	send(engine, testPhone, "ushering")
	send(engine, testPhone, "Avenues")
	send(engine, testPhone, "confirm")

	if store.session(testPhone) != nil {
		t.Error("completed registration must delete the session")
	}
	if !strings.Contains(messenger.lastTo(testPhone), "registered") {
		t.Errorf("expected registration confirmation, got %q", messenger.lastTo(testPhone))
	}
}

func TestEngineRejectsBadEmail(t *testing.T) {
	store := newMockStore()
	messenger := newMockMessenger()
	engine := newTestEngine(store, messenger, &mockPayments{})

	send(engine, testPhone, "hi")
	send(engine, testPhone, "1")
	send(engine, testPhone, "Jane")
	send(engine, testPhone, "Moyo")
	send(engine, testPhone, "not-an-email")

	session := store.session(testPhone)
	if session == nil || session.Step != StepRegEmail {
		t.Fatal("invalid email must keep the session at the email step")
	}

	send(engine, testPhone, "skip")
	session = store.session(testPhone)
	if session == nil || session.Step != StepRegSkill {
		t.Fatal("skip must advance past the email step")
	}
}

func TestEngineEditFlow(t *testing.T) {
	store := newMockStore()
	messenger := newMockMessenger()
	engine := newTestEngine(store, messenger, &mockPayments{})

	driveToConfirmation(engine, testPhone)
	send(engine, testPhone, "edit")
	send(engine, testPhone, "4") // amount
	send(engine, testPhone, "75")

	session := store.session(testPhone)
	if session == nil {
		t.Fatal("session lost during edit")
	}
	if session.Step != StepConfirm {
		t.Fatalf("after edit session at %s, want %s", session.Step, StepConfirm)
	}
	if got := session.Get(KeyAmount); got != "75.00" {
		t.Errorf("edited amount = %q, want 75.00", got)
	}
}

func TestEngineTurnDoesNotResurrectClaimedSession(t *testing.T) {
	store := newMockStore()
	messenger := newMockMessenger()
	payments := &mockPayments{store: store}
	engine := newTestEngine(store, messenger, payments)

	driveToConfirmation(engine, testPhone)
	send(engine, testPhone, "confirm")
	send(engine, testPhone, "1")
	send(engine, testPhone, "0772000000")

	// The coordinator's claim lands while the turn is mid-flight: the
	// waiting step's reply goes out, then the session disappears before
	// the turn writes it back.
	messenger.mu.Lock()
	messenger.onSend = func(phone, text string) {
		if strings.Contains(text, "Still waiting") {
			store.DeleteSession(context.Background(), phone)
		}
	}
	messenger.mu.Unlock()

	send(engine, testPhone, "hello?")

	if store.session(testPhone) != nil {
		t.Fatal("turn write-back recreated a session the coordinator had deleted")
	}

	messenger.mu.Lock()
	messenger.onSend = nil
	messenger.mu.Unlock()

	send(engine, testPhone, "hi")
	session := store.session(testPhone)
	if session == nil {
		t.Fatal("next message must start a fresh session")
	}
	if session.Workflow != WorkflowStart || session.Step != StepStartMenu {
		t.Errorf("fresh session at %s/%s, want %s/%s",
			session.Workflow, session.Step, WorkflowStart, StepStartMenu)
	}
	if session.PollHandle != "" {
		t.Error("fresh session must not carry the old poll handle")
	}
	if len(payments.initiated) != 1 {
		t.Errorf("gateway initiated %d times, want 1", len(payments.initiated))
	}
}

func TestEngineReleasesPhoneLocks(t *testing.T) {
	store := newMockStore()
	messenger := newMockMessenger()
	engine := newTestEngine(store, messenger, &mockPayments{})

	for i := 0; i < 5; i++ {
		send(engine, fmt.Sprintf("26377100000%d", i), "hi")
	}

	engine.mu.Lock()
	held := len(engine.locks)
	engine.mu.Unlock()
	if held != 0 {
		t.Errorf("%d phone lock(s) retained after all turns finished, want 0", held)
	}
}

func TestEngineMenuAllowsPipeInCustomType(t *testing.T) {
	store := newMockStore()
	messenger := newMockMessenger()
	engine := newTestEngine(store, messenger, &mockPayments{})

	store.AppendCustomType(context.Background(), entity.CustomType{
		Description: "Youth | Camp",
		AddedBy:     "263770000999",
		ApprovedOn:  time.Now(),
	})

	send(engine, testPhone, "hi")
	send(engine, testPhone, "2")
	send(engine, testPhone, "John Doe")
	send(engine, testPhone, "Harare Central Congregation")

	prompt := messenger.lastTo(testPhone)
	if !strings.Contains(prompt, "Youth | Camp") {
		t.Fatalf("menu prompt %q missing the custom type", prompt)
	}

	// base types, then the custom type, then Other
	send(engine, testPhone, fmt.Sprintf("%d", len(BaseDonationTypes)+1))

	session := store.session(testPhone)
	if session == nil {
		t.Fatal("session lost after picking a custom type")
	}
	if session.Step != StepAmount {
		t.Fatalf("session at %s, want %s", session.Step, StepAmount)
	}
	if got := session.Get(KeyType); got != "Youth | Camp" {
		t.Errorf("donation type = %q, want %q", got, "Youth | Camp")
	}
}
