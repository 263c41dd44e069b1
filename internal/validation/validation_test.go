package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePhoneNumber(t *testing.T) {
	tests := []struct {
		name    string
		phone   string
		wantErr bool
	}{
		{"valid international", "+491701234567", false},
		{"valid without plus", "491701234567", false},
		{"minimum length", "1234567", false},
		{"too short", "123456", true},
		{"too long", "+123456789012345678901", true},
		{"empty", "", true},
		{"letters", "+49170abcdef", true},
		{"spaces", "+49 170 1234567", true},
		{"plus in the middle", "49+1701234567", true},
		{"hyphenated", "+49-170-1234567", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePhoneNumber(tc.phone)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestVirtualUserID(t *testing.T) {
	id, err := VirtualUserID("+491701234567", "example.org")
	require.NoError(t, err)
	assert.Equal(t, "@sms_491701234567:example.org", id)

	// The plus is the only permitted non-digit and never reaches the ID.
	id, err = VirtualUserID("491701234567", "example.org")
	require.NoError(t, err)
	assert.Equal(t, "@sms_491701234567:example.org", id)

	_, err = VirtualUserID("invalid", "example.org")
	assert.Error(t, err)
}

func TestBotUserID(t *testing.T) {
	assert.Equal(t, "@smsbot:example.org", BotUserID("smsbot", "example.org"))
}

func TestIsVirtualUserID(t *testing.T) {
	assert.True(t, IsVirtualUserID("@sms_491701234567:example.org"))
	assert.False(t, IsVirtualUserID("@alice:example.org"))
	assert.False(t, IsVirtualUserID("@smsbot:example.org"))
}

func TestValidateFilePath(t *testing.T) {
	assert.NoError(t, ValidateFilePath("/var/lib/smsbridge/bridge.db"))
	assert.NoError(t, ValidateFilePath("bridge.db"))

	assert.Error(t, ValidateFilePath(""))
	assert.Error(t, ValidateFilePath("../../etc/passwd"))
	assert.Error(t, ValidateFilePath("data/"+strings.Repeat("../", 3)+"secret"))
	assert.Error(t, ValidateFilePath("bad\x00path"))
}
