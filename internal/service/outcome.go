package service

import (
	"strings"

	"smsbridge/internal/models"
)

// OutcomeKind enumerates every way an outbound send command can finish.
// Exactly one outcome is produced per invocation.
type OutcomeKind int

const (
	OutcomeCreatedAndSent OutcomeKind = iota
	OutcomeSentToExisting
	OutcomeNoMessage
	OutcomeDisabledRoomCreation
	OutcomeTooManyRooms
	OutcomeError
)

// Outcome is the tagged result of one send command. It is rendered to a
// user-facing template string only at the reply boundary.
type Outcome struct {
	Kind OutcomeKind
	Err  error
}

// Render picks the template for the outcome and fills its placeholders.
func (o Outcome) Render(templates models.Templates, receiverNumbers []string) string {
	substitutions := map[string]string{
		"receiverNumbers": strings.Join(receiverNumbers, ", "),
	}
	if o.Err != nil {
		substitutions["error"] = o.Err.Error()
	}

	var template string
	switch o.Kind {
	case OutcomeCreatedAndSent:
		template = templates.SendCreatedRoomAndSent
	case OutcomeSentToExisting:
		template = templates.SendSent
	case OutcomeNoMessage:
		template = templates.SendNoMessage
	case OutcomeDisabledRoomCreation:
		template = templates.SendDisabledRoomCreation
	case OutcomeTooManyRooms:
		template = templates.SendTooManyRooms
	case OutcomeError:
		template = templates.SendError
	}

	return models.Render(template, substitutions)
}
