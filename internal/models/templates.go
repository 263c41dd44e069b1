package models

import (
	"fmt"
	"strings"
)

// Templates is the bank of user-facing reply strings, keyed by outcome.
// Placeholders of the form {name} are filled by literal substitution.
// An empty template means "produce no reply" for the inbound paths.
type Templates struct {
	SendCreatedRoomAndSent   string `json:"sendCreatedRoomAndSent"`
	SendSent                 string `json:"sendSent"`
	SendNoMessage            string `json:"sendNoMessage"`
	SendDisabledRoomCreation string `json:"sendDisabledRoomCreation"`
	SendTooManyRooms         string `json:"sendTooManyRooms"`
	SendError                string `json:"sendError"`
	SendNoticeDelayed        string `json:"sendNoticeDelayed"`
	SendNewRoomMessage       string `json:"sendNewRoomMessage"`

	UnknownToken                   string `json:"unknownToken"`
	MissingTokenWithDefaultRoom    string `json:"missingTokenWithDefaultRoom"`
	MissingTokenWithoutDefaultRoom string `json:"missingTokenWithoutDefaultRoom"`
}

// Render substitutes {key} placeholders with their values. Unknown
// placeholders are left untouched.
func Render(template string, substitutions map[string]string) string {
	result := template
	for key, value := range substitutions {
		result = strings.ReplaceAll(result, fmt.Sprintf("{%s}", key), value)
	}
	return result
}
