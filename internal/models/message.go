package models

import "time"

// PendingMessage is an outbound Matrix message that may not be deliverable
// yet because its required members have not all joined the target room.
// A zero ID means the message has not been persisted.
type PendingMessage struct {
	ID        int64     `json:"id"`
	RoomID    string    `json:"roomId"`
	Body      string    `json:"body"`
	IsNotice  bool      `json:"isNotice"`
	AsUserID  string    `json:"asUserId,omitempty"`
	SendAfter time.Time `json:"sendAfter"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsNew reports whether the message has been assigned a durable identifier.
func (m *PendingMessage) IsNew() bool {
	return m.ID == 0
}

// WithSendAfter returns a copy with the earliest-send time replaced. The
// persisted record is only ever refreshed through re-save, never edited in
// place.
func (m *PendingMessage) WithSendAfter(t time.Time) *PendingMessage {
	copied := *m
	copied.SendAfter = t
	return &copied
}
