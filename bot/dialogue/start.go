package dialogue

import (
	"context"
	"strings"

	"PledgePay/bot/whatsapp"
	"PledgePay/entity"
)

const StepStartMenu entity.StepID = "menu"

// StartWorkflowDef is the entry menu: register as a volunteer or make a
// payment. It chains into the chosen workflow.
type StartWorkflowDef struct {
	steps map[entity.StepID]Step
}

func NewStartWorkflow() *StartWorkflowDef {
	w := &StartWorkflowDef{steps: make(map[entity.StepID]Step)}
	w.steps[StepStartMenu] = &startMenuStep{}
	return w
}

func (w *StartWorkflowDef) ID() entity.WorkflowID      { return WorkflowStart }
func (w *StartWorkflowDef) InitialStep() entity.StepID { return StepStartMenu }

func (w *StartWorkflowDef) GetStep(id entity.StepID) (Step, bool) {
	step, ok := w.steps[id]
	return step, ok
}

type startMenuStep struct{}

func (s *startMenuStep) ID() entity.StepID { return StepStartMenu }

func (s *startMenuStep) Enter(ctx context.Context, m Messenger, session *entity.Session) StepResult {
	greeting := "Welcome to PledgePay!"
	if name := session.Get("profile_name"); name != "" {
		greeting = "Welcome to PledgePay, " + name + "!"
	}

	err := m.SendButtons(session.Phone,
		greeting+"\nWhat would you like to do?",
		[]whatsapp.Button{
			{ID: "register", Title: "Register"},
			{ID: "donate", Title: "Make a payment"},
		})
	if err != nil {
		return StepResult{Error: err}
	}
	return StepResult{}
}

func (s *startMenuStep) HandleInput(ctx context.Context, m Messenger, session *entity.Session, input Input) StepResult {
	choice := input.ButtonID
	if choice == "" {
		switch strings.TrimSpace(input.Text) {
		case "1":
			choice = "register"
		case "2":
			choice = "donate"
		}
	}

	switch choice {
	case "register":
		return StepResult{
			Complete: true,
			Update:   map[string]string{KeyNextWorkflow: string(WorkflowRegistration)},
		}
	case "donate":
		return StepResult{
			Complete: true,
			Update:   map[string]string{KeyNextWorkflow: string(WorkflowDonation)},
		}
	}

	_ = m.SendMessage(session.Phone,
		"Please reply 1 to register or 2 to make a payment.")
	return StepResult{}
}
