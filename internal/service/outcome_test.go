package service

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutcomeRender(t *testing.T) {
	templates := testTemplates()
	receivers := []string{"+491701234567", "+491708888888"}

	tests := []struct {
		name    string
		outcome Outcome
		want    string
	}{
		{
			name:    "created and sent",
			outcome: Outcome{Kind: OutcomeCreatedAndSent},
			want:    "created room with +491701234567, +491708888888 and sent the message",
		},
		{
			name:    "sent to existing",
			outcome: Outcome{Kind: OutcomeSentToExisting},
			want:    "sent the message to +491701234567, +491708888888",
		},
		{
			name:    "no message",
			outcome: Outcome{Kind: OutcomeNoMessage},
			want:    "nothing to send",
		},
		{
			name:    "disabled room creation",
			outcome: Outcome{Kind: OutcomeDisabledRoomCreation},
			want:    "room creation is disabled for +491701234567, +491708888888",
		},
		{
			name:    "too many rooms",
			outcome: Outcome{Kind: OutcomeTooManyRooms},
			want:    "too many rooms with +491701234567, +491708888888",
		},
		{
			name:    "error",
			outcome: Outcome{Kind: OutcomeError, Err: fmt.Errorf("boom")},
			want:    "error while sending: boom",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.outcome.Render(templates, receivers))
		})
	}
}

func TestOutcomeRender_SingleReceiver(t *testing.T) {
	out := Outcome{Kind: OutcomeSentToExisting}
	assert.Equal(t, "sent the message to +491701234567", out.Render(testTemplates(), []string{"+491701234567"}))
}
