package dialogue

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"PledgePay/entity"
)

// Registration step IDs.
const (
	StepRegName    entity.StepID = "reg_name"
	StepRegSurname entity.StepID = "reg_surname"
	StepRegEmail   entity.StepID = "reg_email"
	StepRegSkill   entity.StepID = "reg_skill"
	StepRegArea    entity.StepID = "reg_area"
	StepRegConfirm entity.StepID = "reg_confirm"
)

// Registration data keys.
const (
	KeyRegName    = "reg_name"
	KeyRegSurname = "reg_surname"
	KeyRegEmail   = "reg_email"
	KeyRegSkill   = "reg_skill"
	KeyRegArea    = "reg_area"
)

// RegistrationWorkflow collects a volunteer registration.
type RegistrationWorkflow struct {
	steps map[entity.StepID]Step
}

func NewRegistrationWorkflow(volunteers VolunteerStore) *RegistrationWorkflow {
	validate := validator.New()

	w := &RegistrationWorkflow{steps: make(map[entity.StepID]Step)}
	w.steps[StepRegName] = &regNameStep{}
	w.steps[StepRegSurname] = &regSurnameStep{}
	w.steps[StepRegEmail] = &regEmailStep{validate: validate}
	w.steps[StepRegSkill] = &regSkillStep{}
	w.steps[StepRegArea] = &regAreaStep{}
	w.steps[StepRegConfirm] = &regConfirmStep{volunteers: volunteers}
	return w
}

func (w *RegistrationWorkflow) ID() entity.WorkflowID      { return WorkflowRegistration }
func (w *RegistrationWorkflow) InitialStep() entity.StepID { return StepRegName }

func (w *RegistrationWorkflow) GetStep(id entity.StepID) (Step, bool) {
	step, ok := w.steps[id]
	return step, ok
}

type regNameStep struct{}

func (s *regNameStep) ID() entity.StepID { return StepRegName }

func (s *regNameStep) Enter(ctx context.Context, m Messenger, session *entity.Session) StepResult {
	if err := m.SendMessage(session.Phone,
		"Great, let's get you registered as a volunteer. What is your first name?\n(Reply cancel at any point to stop.)"); err != nil {
		return StepResult{Error: err}
	}
	return StepResult{}
}

func (s *regNameStep) HandleInput(ctx context.Context, m Messenger, session *entity.Session, input Input) StepResult {
	name := strings.TrimSpace(input.Text)
	if name == "" {
		_ = m.SendMessage(session.Phone, "Please enter your first name.")
		return StepResult{}
	}
	return StepResult{
		NextStep: StepRegSurname,
		Update:   map[string]string{KeyRegName: titleCase(name)},
	}
}

type regSurnameStep struct{}

func (s *regSurnameStep) ID() entity.StepID { return StepRegSurname }

func (s *regSurnameStep) Enter(ctx context.Context, m Messenger, session *entity.Session) StepResult {
	if err := m.SendMessage(session.Phone, "And your surname?"); err != nil {
		return StepResult{Error: err}
	}
	return StepResult{}
}

func (s *regSurnameStep) HandleInput(ctx context.Context, m Messenger, session *entity.Session, input Input) StepResult {
	surname := strings.TrimSpace(input.Text)
	if surname == "" {
		_ = m.SendMessage(session.Phone, "Please enter your surname.")
		return StepResult{}
	}
	return StepResult{
		NextStep: StepRegEmail,
		Update:   map[string]string{KeyRegSurname: titleCase(surname)},
	}
}

type regEmailStep struct {
	validate *validator.Validate
}

func (s *regEmailStep) ID() entity.StepID { return StepRegEmail }

func (s *regEmailStep) Enter(ctx context.Context, m Messenger, session *entity.Session) StepResult {
	if err := m.SendMessage(session.Phone,
		"What is your email address? Reply skip if you don't have one."); err != nil {
		return StepResult{Error: err}
	}
	return StepResult{}
}

func (s *regEmailStep) HandleInput(ctx context.Context, m Messenger, session *entity.Session, input Input) StepResult {
	email := strings.TrimSpace(input.Text)
	if strings.EqualFold(email, "skip") {
		return StepResult{NextStep: StepRegSkill, Update: map[string]string{KeyRegEmail: ""}}
	}

	if err := s.validate.Var(email, "required,email"); err != nil {
		_ = m.SendMessage(session.Phone,
			"That doesn't look like an email address. Try again, or reply skip.")
		return StepResult{}
	}
	return StepResult{
		NextStep: StepRegSkill,
		Update:   map[string]string{KeyRegEmail: strings.ToLower(email)},
	}
}

type regSkillStep struct{}

func (s *regSkillStep) ID() entity.StepID { return StepRegSkill }

func (s *regSkillStep) Enter(ctx context.Context, m Messenger, session *entity.Session) StepResult {
	if err := m.SendMessage(session.Phone,
		"What skill would you like to volunteer? For example ushering, music, media, catering."); err != nil {
		return StepResult{Error: err}
	}
	return StepResult{}
}

func (s *regSkillStep) HandleInput(ctx context.Context, m Messenger, session *entity.Session, input Input) StepResult {
	skill := strings.TrimSpace(input.Text)
	if skill == "" {
		_ = m.SendMessage(session.Phone, "Please tell us the skill you'd like to volunteer.")
		return StepResult{}
	}
	return StepResult{
		NextStep: StepRegArea,
		Update:   map[string]string{KeyRegSkill: titleCase(skill)},
	}
}

type regAreaStep struct{}

func (s *regAreaStep) ID() entity.StepID { return StepRegArea }

func (s *regAreaStep) Enter(ctx context.Context, m Messenger, session *entity.Session) StepResult {
	if err := m.SendMessage(session.Phone, "Which area or congregation are you based in?"); err != nil {
		return StepResult{Error: err}
	}
	return StepResult{}
}

func (s *regAreaStep) HandleInput(ctx context.Context, m Messenger, session *entity.Session, input Input) StepResult {
	area := NormalizeRegion(input.Text)
	if area == "" {
		_ = m.SendMessage(session.Phone, "Please tell us your area or congregation.")
		return StepResult{}
	}
	return StepResult{
		NextStep: StepRegConfirm,
		Update:   map[string]string{KeyRegArea: area},
	}
}

type regConfirmStep struct {
	volunteers VolunteerStore
}

func (s *regConfirmStep) ID() entity.StepID { return StepRegConfirm }

func (s *regConfirmStep) Enter(ctx context.Context, m Messenger, session *entity.Session) StepResult {
	email := session.Get(KeyRegEmail)
	if email == "" {
		email = "(none)"
	}
	summary := fmt.Sprintf(
		"Please confirm your registration:\nName: %s %s\nEmail: %s\nSkill: %s\nArea: %s\n\nReply confirm to finish or cancel to stop.",
		session.Get(KeyRegName), session.Get(KeyRegSurname), email,
		session.Get(KeyRegSkill), session.Get(KeyRegArea))

	if err := m.SendMessage(session.Phone, summary); err != nil {
		return StepResult{Error: err}
	}
	return StepResult{}
}

func (s *regConfirmStep) HandleInput(ctx context.Context, m Messenger, session *entity.Session, input Input) StepResult {
	if !strings.EqualFold(strings.TrimSpace(input.Text), "confirm") {
		_ = m.SendMessage(session.Phone, "Reply confirm to finish or cancel to stop.")
		return StepResult{}
	}

	err := s.volunteers.SaveVolunteer(ctx, entity.Volunteer{
		Phone:   session.Phone,
		Name:    session.Get(KeyRegName),
		Surname: session.Get(KeyRegSurname),
		Email:   session.Get(KeyRegEmail),
		Skill:   session.Get(KeyRegSkill),
		Area:    session.Get(KeyRegArea),
	})
	if err != nil {
		return StepResult{Error: fmt.Errorf("saving volunteer: %w", err)}
	}

	_ = m.SendMessage(session.Phone,
		"Thank you! You are registered. We will be in touch about volunteering opportunities.")
	return StepResult{Complete: true}
}
