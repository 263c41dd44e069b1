package matrix

// Room visibility presets accepted by the create-room endpoint.
const (
	PresetTrustedPrivateChat = "trusted_private_chat"
	PresetPrivateChat        = "private_chat"
	PresetPublicChat         = "public_chat"
)

// Message event types.
const (
	MsgTypeText   = "m.text"
	MsgTypeNotice = "m.notice"
)

// SendMessageRequest describes one room message send. AsUserID, when set,
// masquerades the send as that application-service user; empty sends as the
// bridge bot itself.
type SendMessageRequest struct {
	RoomID   string
	Body     string
	IsNotice bool
	AsUserID string
}

// CreateRoomRequest describes a room creation. All invitees are invited
// up-front; Preset controls join and history visibility rules.
type CreateRoomRequest struct {
	Name   string
	Invite []string
	Preset string
}

type messageEventContent struct {
	MsgType string `json:"msgtype"`
	Body    string `json:"body"`
}

type sendEventResponse struct {
	EventID string `json:"event_id"`
}

type createRoomPayload struct {
	Name   string   `json:"name,omitempty"`
	Invite []string `json:"invite,omitempty"`
	Preset string   `json:"preset,omitempty"`
}

type createRoomResponse struct {
	RoomID string `json:"room_id"`
}

type invitePayload struct {
	UserID string `json:"user_id"`
}
