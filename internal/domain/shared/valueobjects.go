package shared

import (
	"strconv"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// IDENTIFIERS
// ═══════════════════════════════════════════════════════════════════════════

// GroupID identifies a chat group. Transports use their own chat ids rendered as strings.
type GroupID string

// IsValid checks if the group ID is non-empty.
func (g GroupID) IsValid() bool {
	return strings.TrimSpace(string(g)) != ""
}

// String returns the string representation.
func (g GroupID) String() string {
	return string(g)
}

// NewGroupID creates a validated GroupID.
func NewGroupID(id string) (GroupID, error) {
	g := GroupID(strings.TrimSpace(id))
	if !g.IsValid() {
		return "", ErrInvalidGroup
	}
	return g, nil
}

// GroupIDFromInt64 converts a numeric chat id.
func GroupIDFromInt64(id int64) GroupID {
	return GroupID(strconv.FormatInt(id, 10))
}

// UserID identifies a member inside a group.
type UserID string

// IsValid checks if the user ID is non-empty.
func (u UserID) IsValid() bool {
	return strings.TrimSpace(string(u)) != ""
}

// String returns the string representation.
func (u UserID) String() string {
	return string(u)
}

// UserIDFromInt64 converts a numeric user id.
func UserIDFromInt64(id int64) UserID {
	return UserID(strconv.FormatInt(id, 10))
}
