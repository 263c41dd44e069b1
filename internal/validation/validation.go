package validation

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"smsbridge/internal/constants"
	"smsbridge/internal/errors"
)

// ValidatePhoneNumber validates phone number format and length. The accepted
// grammar is an optional leading + followed by digits only; anything else
// (spaces, extensions, letters) is rejected.
func ValidatePhoneNumber(phone string) error {
	if phone == "" {
		return errors.New(errors.ErrCodeInvalidInput, "phone number cannot be empty")
	}

	cleaned := strings.TrimPrefix(phone, "+")

	if len(cleaned) < constants.MinPhoneNumberLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("phone number must be at least %d digits", constants.MinPhoneNumberLength))
	}

	if len(cleaned) > constants.MaxPhoneNumberLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("phone number too long (max %d digits)", constants.MaxPhoneNumberLength))
	}

	for _, char := range cleaned {
		if !unicode.IsDigit(char) {
			return errors.New(errors.ErrCodeInvalidInput, "phone number must contain only digits")
		}
	}

	return nil
}

// VirtualUserID derives the bridge-owned Matrix identity representing one
// phone number, e.g. "+49123456789" on "example.org" becomes
// "@sms_49123456789:example.org".
func VirtualUserID(phone, serverName string) (string, error) {
	if err := ValidatePhoneNumber(phone); err != nil {
		return "", err
	}
	return fmt.Sprintf("@sms_%s:%s", strings.TrimPrefix(phone, "+"), serverName), nil
}

// BotUserID returns the bridge's own service identity.
func BotUserID(username, serverName string) string {
	return fmt.Sprintf("@%s:%s", username, serverName)
}

// IsVirtualUserID reports whether the identity is one the bridge provisions
// for a phone number.
func IsVirtualUserID(userID string) bool {
	return strings.HasPrefix(userID, "@sms_")
}

// ValidateFilePath rejects paths with traversal sequences or null bytes.
// Used for the database and config paths taken from flags and environment.
func ValidateFilePath(path string) error {
	if path == "" {
		return errors.New(errors.ErrCodeInvalidInput, "path cannot be empty")
	}
	if strings.ContainsRune(path, '\x00') {
		return errors.New(errors.ErrCodeInvalidInput, "path contains null byte")
	}
	cleaned := filepath.Clean(path)
	if strings.Contains(cleaned, "..") {
		return errors.New(errors.ErrCodeInvalidInput, "path contains directory traversal")
	}
	return nil
}
