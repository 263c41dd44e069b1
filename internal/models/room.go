package models

// RoomCreationMode controls whether the provisioning policy may create a new
// room when routing an outbound message.
type RoomCreationMode string

const (
	// RoomCreationAuto creates a room only when no existing room fits.
	RoomCreationAuto RoomCreationMode = "AUTO"
	// RoomCreationAlways creates a fresh room regardless of existing ones.
	RoomCreationAlways RoomCreationMode = "ALWAYS"
	// RoomCreationNo never creates; routing fails when no room fits.
	RoomCreationNo RoomCreationMode = "NO"
)

// RoomMember is one participant of a candidate room. Managed members are
// identities provisioned and tracked by the bridge, as opposed to users who
// joined on their own.
type RoomMember struct {
	UserID    string `json:"userId"`
	IsManaged bool   `json:"isManaged"`
}

// CandidateRoom is a room already containing (a subset of) the desired
// participants, as reported by the room directory. It is a read-only
// projection of the bookkeeping state.
type CandidateRoom struct {
	RoomID  string       `json:"roomId"`
	Members []RoomMember `json:"members"`
}

// ManagedCount returns the number of members provisioned by the bridge.
func (r *CandidateRoom) ManagedCount() int {
	count := 0
	for _, m := range r.Members {
		if m.IsManaged {
			count++
		}
	}
	return count
}

// HasMember reports whether the given user is currently in the room.
func (r *CandidateRoom) HasMember(userID string) bool {
	for _, m := range r.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}
