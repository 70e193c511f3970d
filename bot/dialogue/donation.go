package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"PledgePay/bot/payment"
	"PledgePay/entity"
)

// Donation step IDs.
const (
	StepName          entity.StepID = "name"
	StepRegion        entity.StepID = "region"
	StepDonationType  entity.StepID = "donation_type"
	StepCustomRequest entity.StepID = "custom_type_request"
	StepAmount        entity.StepID = "amount"
	StepCurrency      entity.StepID = "currency"
	StepNote          entity.StepID = "note"
	StepConfirm       entity.StepID = "awaiting_confirmation"
	StepEditing       entity.StepID = "editing_fields"
	StepMethodMenu    entity.StepID = "awaiting_user_method"
	StepPayNumber     entity.StepID = "payment_method"
	StepPending       entity.StepID = "payment_number"
)

// Session data keys for the donation flow.
const (
	KeyName      = "name"
	KeyRegion    = "region"
	KeyType      = "donation_type"
	KeyAmount    = "amount"
	KeyCurrency  = "currency"
	KeyNote      = "note"
	KeyMethod    = "method"
	KeyPayNumber = "pay_number"
	KeyReference = "reference"
	KeyPollURL   = "poll_url"
	KeyTypeMenu  = "type_menu"
	KeyEditQueue = "edit_queue"
)

var paymentMethods = []string{
	payment.MethodEcoCash,
	payment.MethodOneMoney,
	payment.MethodTeleCash,
	payment.MethodUSDTransfer,
}

// DonationWorkflow walks a payer from name to a reconciled payment.
type DonationWorkflow struct {
	steps map[entity.StepID]Step
}

func NewDonationWorkflow(customs CustomTypeStore, payments PaymentService, adminPhone string) *DonationWorkflow {
	w := &DonationWorkflow{steps: make(map[entity.StepID]Step)}

	w.steps[StepName] = &nameStep{}
	w.steps[StepRegion] = &regionStep{}
	w.steps[StepDonationType] = &donationTypeStep{customs: customs}
	w.steps[StepCustomRequest] = &customRequestStep{customs: customs, adminPhone: adminPhone}
	w.steps[StepAmount] = &amountStep{}
	w.steps[StepCurrency] = &currencyStep{}
	w.steps[StepNote] = &noteStep{}
	w.steps[StepConfirm] = &confirmStep{}
	w.steps[StepEditing] = &editingStep{}
	w.steps[StepMethodMenu] = &methodMenuStep{}
	w.steps[StepPayNumber] = &payNumberStep{payments: payments}
	w.steps[StepPending] = &pendingStep{payments: payments}

	return w
}

func (w *DonationWorkflow) ID() entity.WorkflowID      { return WorkflowDonation }
func (w *DonationWorkflow) InitialStep() entity.StepID { return StepName }

func (w *DonationWorkflow) GetStep(id entity.StepID) (Step, bool) {
	step, ok := w.steps[id]
	return step, ok
}

// nameStep collects the giver's name.
type nameStep struct{}

func (s *nameStep) ID() entity.StepID { return StepName }

func (s *nameStep) Enter(ctx context.Context, m Messenger, session *entity.Session) StepResult {
	if err := m.SendMessage(session.Phone,
		"Let's set up your donation. What is your full name?\n(Reply cancel at any point to stop.)"); err != nil {
		return StepResult{Error: err}
	}
	return StepResult{}
}

func (s *nameStep) HandleInput(ctx context.Context, m Messenger, session *entity.Session, input Input) StepResult {
	name := strings.TrimSpace(input.Text)
	if name == "" {
		_ = m.SendMessage(session.Phone, "Please enter your full name.")
		return StepResult{}
	}
	return StepResult{
		NextStep: StepRegion,
		Update:   map[string]string{KeyName: titleCase(name)},
	}
}

// regionStep collects and canonicalizes the congregation.
type regionStep struct{}

func (s *regionStep) ID() entity.StepID { return StepRegion }

func (s *regionStep) Enter(ctx context.Context, m Messenger, session *entity.Session) StepResult {
	if err := m.SendMessage(session.Phone,
		"Which congregation are you from?"); err != nil {
		return StepResult{Error: err}
	}
	return StepResult{}
}

func (s *regionStep) HandleInput(ctx context.Context, m Messenger, session *entity.Session, input Input) StepResult {
	region := NormalizeRegion(input.Text)
	if region == "" {
		_ = m.SendMessage(session.Phone, "Please enter your congregation's name.")
		return StepResult{}
	}
	return StepResult{
		NextStep: StepDonationType,
		Update:   map[string]string{KeyRegion: region},
	}
}

// donationTypeStep presents the purpose menu. The rendered menu is pinned
// into session data so a later reply is validated against what the payer
// actually saw, not against a menu that may have changed since.
type donationTypeStep struct {
	customs CustomTypeStore
}

func (s *donationTypeStep) ID() entity.StepID { return StepDonationType }

func (s *donationTypeStep) Enter(ctx context.Context, m Messenger, session *entity.Session) StepResult {
	customs, err := s.customs.ActiveCustomTypes(ctx)
	if err != nil {
		return StepResult{Error: fmt.Errorf("loading custom types: %w", err)}
	}

	// Newline-joined: titleCase collapses all whitespace in option text,
	// so no menu entry can ever contain the delimiter.
	menu := DonationMenu(customs)
	session.Set(KeyTypeMenu, strings.Join(menu, "\n"))

	if err := m.SendMessage(session.Phone,
		RenderMenu("What would you like to give toward? Reply with a number:", menu)); err != nil {
		return StepResult{Error: err}
	}
	return StepResult{}
}

func (s *donationTypeStep) HandleInput(ctx context.Context, m Messenger, session *entity.Session, input Input) StepResult {
	menu := strings.Split(session.Get(KeyTypeMenu), "\n")

	choice, ok := PickOption(input.Text, menu)
	if !ok {
		_ = m.SendMessage(session.Phone,
			fmt.Sprintf("Please reply with a number between 1 and %d.", len(menu)))
		return StepResult{}
	}

	if choice == OtherOption {
		return StepResult{NextStep: StepCustomRequest}
	}
	return StepResult{
		NextStep: StepAmount,
		Update:   map[string]string{KeyType: choice},
	}
}

// customRequestStep records a purpose the menu doesn't carry yet. The type
// goes on the menu for everyone only once an admin approves it, but this
// payer's own donation proceeds with it immediately.
type customRequestStep struct {
	customs    CustomTypeStore
	adminPhone string
}

func (s *customRequestStep) ID() entity.StepID { return StepCustomRequest }

func (s *customRequestStep) Enter(ctx context.Context, m Messenger, session *entity.Session) StepResult {
	if err := m.SendMessage(session.Phone,
		"What would you like to give toward? Describe it in a few words."); err != nil {
		return StepResult{Error: err}
	}
	return StepResult{}
}

func (s *customRequestStep) HandleInput(ctx context.Context, m Messenger, session *entity.Session, input Input) StepResult {
	description := titleCase(strings.TrimSpace(input.Text))
	if description == "" {
		_ = m.SendMessage(session.Phone, "Please describe the purpose in a few words.")
		return StepResult{}
	}

	err := s.customs.AppendCustomType(ctx, entity.CustomType{
		Description: description,
		AddedBy:     session.Phone,
	})
	if err != nil {
		return StepResult{Error: fmt.Errorf("recording custom type request: %w", err)}
	}

	if s.adminPhone != "" {
		_ = m.SendMessage(s.adminPhone, fmt.Sprintf(
			"New donation type requested: %q by %s.\nApprove with /approve %s <duration>.",
			description, session.Phone, session.Phone))
	}

	return StepResult{
		NextStep: StepAmount,
		Update:   map[string]string{KeyType: description},
	}
}

// amountStep validates the donation amount.
type amountStep struct{}

func (s *amountStep) ID() entity.StepID { return StepAmount }

func (s *amountStep) Enter(ctx context.Context, m Messenger, session *entity.Session) StepResult {
	if err := m.SendMessage(session.Phone,
		fmt.Sprintf("How much would you like to give? (up to %.0f)", MaxAmount)); err != nil {
		return StepResult{Error: err}
	}
	return StepResult{}
}

func (s *amountStep) HandleInput(ctx context.Context, m Messenger, session *entity.Session, input Input) StepResult {
	amount, err := ParseAmount(input.Text)
	if err != nil {
		_ = m.SendMessage(session.Phone, amountError(err))
		return StepResult{}
	}
	return StepResult{
		NextStep: StepCurrency,
		Update:   map[string]string{KeyAmount: fmt.Sprintf("%.2f", amount)},
	}
}

func amountError(err error) string {
	switch {
	case errors.Is(err, ErrCommaDecimal):
		return "Please use a dot for decimals, not a comma. For example 40.50 instead of 40,50."
	case errors.Is(err, ErrAmountRange):
		return fmt.Sprintf("The amount must be more than 0 and at most %.0f. Please try again.", MaxAmount)
	default:
		return "That doesn't look like an amount. Please enter a number like 40 or 40.50."
	}
}

// currencyStep picks the currency, which selects the gateway integration.
type currencyStep struct{}

func (s *currencyStep) ID() entity.StepID { return StepCurrency }

func (s *currencyStep) Enter(ctx context.Context, m Messenger, session *entity.Session) StepResult {
	if err := m.SendMessage(session.Phone,
		"Which currency?\n1. USD\n2. ZWG"); err != nil {
		return StepResult{Error: err}
	}
	return StepResult{}
}

func (s *currencyStep) HandleInput(ctx context.Context, m Messenger, session *entity.Session, input Input) StepResult {
	currency, ok := PickOption(input.Text, []string{"USD", "ZWG"})
	if !ok {
		_ = m.SendMessage(session.Phone, "Please reply 1 for USD or 2 for ZWG.")
		return StepResult{}
	}
	return StepResult{
		NextStep: StepNote,
		Update:   map[string]string{KeyCurrency: currency},
	}
}

// noteStep takes an optional note.
type noteStep struct{}

func (s *noteStep) ID() entity.StepID { return StepNote }

func (s *noteStep) Enter(ctx context.Context, m Messenger, session *entity.Session) StepResult {
	if err := m.SendMessage(session.Phone,
		"Any note to go with your donation? Reply none to skip."); err != nil {
		return StepResult{Error: err}
	}
	return StepResult{}
}

func (s *noteStep) HandleInput(ctx context.Context, m Messenger, session *entity.Session, input Input) StepResult {
	note := strings.TrimSpace(input.Text)
	if strings.EqualFold(note, "none") {
		note = "None"
	}
	return StepResult{
		NextStep: StepConfirm,
		Update:   map[string]string{KeyNote: note},
	}
}

// confirmStep shows the summary and forks to payment or editing.
type confirmStep struct{}

func (s *confirmStep) ID() entity.StepID { return StepConfirm }

func (s *confirmStep) Enter(ctx context.Context, m Messenger, session *entity.Session) StepResult {
	summary := fmt.Sprintf(
		"Please confirm your donation:\nName: %s\nCongregation: %s\nPurpose: %s\nAmount: %s %s\nNote: %s\n\nReply confirm to proceed or edit to change something.",
		session.Get(KeyName), session.Get(KeyRegion), session.Get(KeyType),
		session.Get(KeyCurrency), session.Get(KeyAmount), session.Get(KeyNote))

	if err := m.SendMessage(session.Phone, summary); err != nil {
		return StepResult{Error: err}
	}
	return StepResult{}
}

func (s *confirmStep) HandleInput(ctx context.Context, m Messenger, session *entity.Session, input Input) StepResult {
	switch strings.ToLower(strings.TrimSpace(input.Text)) {
	case "confirm", "yes":
		return StepResult{NextStep: StepMethodMenu}
	case "edit":
		session.Set(KeyEditQueue, "")
		return StepResult{NextStep: StepEditing}
	}

	_ = m.SendMessage(session.Phone, "Please reply confirm to proceed or edit to change something.")
	return StepResult{}
}

// Editable field order as presented on the edit menu.
var editFields = []string{KeyName, KeyRegion, KeyType, KeyAmount, KeyNote}

var editLabels = map[string]string{
	KeyName:   "Name",
	KeyRegion: "Congregation",
	KeyType:   "Donation type",
	KeyAmount: "Amount",
	KeyNote:   "Note",
}

var editPrompts = map[string]string{
	KeyName:   "What is your full name?",
	KeyRegion: "Which congregation are you from?",
	KeyType:   "What would you like to give toward?",
	KeyAmount: fmt.Sprintf("How much would you like to give? (up to %.0f)", MaxAmount),
	KeyNote:   "Any note to go with your donation? Reply none to skip.",
}

// editingStep re-collects the fields the payer asked to change, one at a
// time, then returns to the confirmation summary. The outstanding fields
// live in the edit queue; an empty queue means the payer is still choosing
// what to edit.
type editingStep struct{}

func (s *editingStep) ID() entity.StepID { return StepEditing }

func (s *editingStep) Enter(ctx context.Context, m Messenger, session *entity.Session) StepResult {
	labels := make([]string, len(editFields))
	for i, f := range editFields {
		labels[i] = editLabels[f]
	}
	if err := m.SendMessage(session.Phone,
		RenderMenu("Which details would you like to change? You can pick several, e.g. 1,4:", labels)); err != nil {
		return StepResult{Error: err}
	}
	return StepResult{}
}

func (s *editingStep) HandleInput(ctx context.Context, m Messenger, session *entity.Session, input Input) StepResult {
	queue := splitQueue(session.Get(KeyEditQueue))

	if len(queue) == 0 {
		queue = parseEditSelection(input.Text)
		if len(queue) == 0 {
			_ = m.SendMessage(session.Phone,
				fmt.Sprintf("Please reply with numbers between 1 and %d, e.g. 1,4.", len(editFields)))
			return StepResult{}
		}
		session.Set(KeyEditQueue, strings.Join(queue, ","))
		_ = m.SendMessage(session.Phone, editPrompts[queue[0]])
		return StepResult{}
	}

	field := queue[0]
	value, errText := validateEditValue(field, input.Text)
	if errText != "" {
		_ = m.SendMessage(session.Phone, errText)
		return StepResult{}
	}
	session.Set(field, value)

	queue = queue[1:]
	session.Set(KeyEditQueue, strings.Join(queue, ","))
	if len(queue) == 0 {
		return StepResult{NextStep: StepConfirm}
	}

	_ = m.SendMessage(session.Phone, editPrompts[queue[0]])
	return StepResult{}
}

func splitQueue(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

// parseEditSelection turns "1,4" into the ordered field keys it names.
func parseEditSelection(text string) []string {
	var queue []string
	for _, part := range strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ' '
	}) {
		if field, ok := PickOption(part, editFields); ok && !contains(queue, field) {
			queue = append(queue, field)
		}
	}
	return queue
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func validateEditValue(field, text string) (string, string) {
	text = strings.TrimSpace(text)
	switch field {
	case KeyAmount:
		amount, err := ParseAmount(text)
		if err != nil {
			return "", amountError(err)
		}
		return fmt.Sprintf("%.2f", amount), ""
	case KeyRegion:
		region := NormalizeRegion(text)
		if region == "" {
			return "", "Please enter your congregation's name."
		}
		return region, ""
	case KeyName:
		if text == "" {
			return "", "Please enter your full name."
		}
		return titleCase(text), ""
	case KeyType:
		if text == "" {
			return "", "Please describe what you would like to give toward."
		}
		return titleCase(text), ""
	case KeyNote:
		if strings.EqualFold(text, "none") {
			return "None", ""
		}
		return text, ""
	}
	return text, ""
}

// methodMenuStep picks the payment channel.
type methodMenuStep struct{}

func (s *methodMenuStep) ID() entity.StepID { return StepMethodMenu }

func (s *methodMenuStep) Enter(ctx context.Context, m Messenger, session *entity.Session) StepResult {
	if err := m.SendMessage(session.Phone,
		RenderMenu("How would you like to pay? Reply with a number:", paymentMethods)); err != nil {
		return StepResult{Error: err}
	}
	return StepResult{}
}

func (s *methodMenuStep) HandleInput(ctx context.Context, m Messenger, session *entity.Session, input Input) StepResult {
	method, ok := PickOption(input.Text, paymentMethods)
	if !ok {
		_ = m.SendMessage(session.Phone,
			fmt.Sprintf("Please reply with a number between 1 and %d.", len(paymentMethods)))
		return StepResult{}
	}
	return StepResult{
		NextStep: StepPayNumber,
		Update:   map[string]string{KeyMethod: method},
	}
}

// payNumberStep collects the billing number and kicks off the gateway
// transaction. Manual bank transfers short-circuit here with instructions
// instead of a gateway call.
type payNumberStep struct {
	payments PaymentService
}

func (s *payNumberStep) ID() entity.StepID { return StepPayNumber }

func (s *payNumberStep) Enter(ctx context.Context, m Messenger, session *entity.Session) StepResult {
	if session.Get(KeyMethod) == payment.MethodUSDTransfer {
		err := m.SendMessage(session.Phone, fmt.Sprintf(
			"To complete your %s %s donation, transfer to the church account and quote your name as reference. "+
				"The finance office will confirm receipt. Thank you!",
			session.Get(KeyCurrency), session.Get(KeyAmount)))
		if err != nil {
			return StepResult{Error: err}
		}
		return StepResult{Complete: true}
	}

	if err := m.SendMessage(session.Phone,
		"Which mobile number should we bill? Reply self to use this WhatsApp number, or enter one like 0771234567."); err != nil {
		return StepResult{Error: err}
	}
	return StepResult{}
}

func (s *payNumberStep) HandleInput(ctx context.Context, m Messenger, session *entity.Session, input Input) StepResult {
	raw := strings.TrimSpace(input.Text)
	if strings.EqualFold(raw, "self") {
		raw = session.Phone
	}

	payNumber, err := NormalizePayNumber(raw)
	if err != nil {
		_ = m.SendMessage(session.Phone,
			"That doesn't look like a valid number. Enter it like 0771234567 or 263771234567.")
		return StepResult{}
	}

	session.Set(KeyPayNumber, payNumber)
	session.Set(KeyReference, uuid.NewString())

	pending := PendingFromSession(session)
	pollURL, err := s.payments.Initiate(ctx, pending)
	if err != nil {
		_ = m.SendMessage(session.Phone,
			"Sorry, we could not start your payment. Please try another number, or reply cancel to stop.")
		return StepResult{}
	}

	session.PollHandle = pollURL
	session.Set(KeyPollURL, pollURL)

	go s.payments.Reconcile(context.WithoutCancel(ctx), pending, pollURL)

	return StepResult{NextStep: StepPending}
}

// pendingStep waits out reconciliation; the payer can nudge with "check".
type pendingStep struct {
	payments PaymentService
}

func (s *pendingStep) ID() entity.StepID { return StepPending }

func (s *pendingStep) Enter(ctx context.Context, m Messenger, session *entity.Session) StepResult {
	if err := m.SendMessage(session.Phone,
		"Payment started! Check your phone and approve the transaction. Reply check to ask for the status."); err != nil {
		return StepResult{Error: err}
	}
	return StepResult{}
}

func (s *pendingStep) HandleInput(ctx context.Context, m Messenger, session *entity.Session, input Input) StepResult {
	if !strings.EqualFold(strings.TrimSpace(input.Text), "check") {
		_ = m.SendMessage(session.Phone,
			"Still waiting for your approval. Reply check for the status or cancel to stop.")
		return StepResult{}
	}

	pending := PendingFromSession(session)
	status, err := s.payments.CheckOnce(ctx, pending, session.PollHandle)
	if err != nil {
		_ = m.SendMessage(session.Phone,
			"We could not reach the payment gateway just now. Please try again in a moment.")
		return StepResult{}
	}

	if status.Terminal() {
		// The coordinator already claimed the session and messaged the
		// payer; nothing left for the dialogue to do.
		return StepResult{Complete: true}
	}

	_ = m.SendMessage(session.Phone,
		"Your payment is still pending. Approve the prompt on your phone, then reply check again.")
	return StepResult{}
}

// PendingFromSession rebuilds the in-flight payment from session data.
func PendingFromSession(session *entity.Session) *entity.PendingPayment {
	var amount float64
	fmt.Sscanf(session.Get(KeyAmount), "%f", &amount)

	return &entity.PendingPayment{
		Name:         session.Get(KeyName),
		Amount:       amount,
		Currency:     session.Get(KeyCurrency),
		Method:       session.Get(KeyMethod),
		PayerPhone:   session.Phone,
		BillNumber:   session.Get(KeyPayNumber),
		Purpose:      session.Get(KeyType),
		Congregation: session.Get(KeyRegion),
		Note:         session.Get(KeyNote),
		Reference:    session.Get(KeyReference),
	}
}
