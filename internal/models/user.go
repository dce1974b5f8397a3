package models

import "time"

// Role is the staff role attached to a linked user record.
type Role string

const (
	RoleStaff      Role = "staff"
	RoleMaintainer Role = "maintainer"
	RoleAdmin      Role = "admin"
)

// WhatsAppUser is the identity record keyed by phone number. Upserted on
// every inbound message; LinkedUserID is set by an out-of-band verification
// flow and is a lookup-only reference to a staff record.
type WhatsAppUser struct {
	PhoneNumber      string    `json:"phone_number"`
	DisplayName      string    `json:"display_name"`
	IsVerified       bool      `json:"is_verified"`
	LinkedUserID     string    `json:"linked_user_id,omitempty"`
	Role             Role      `json:"role,omitempty"`
	MessagesInWindow int       `json:"messages_in_window"`
	WindowStartTime  time.Time `json:"window_start_time"`
	IsBlocked        bool      `json:"is_blocked"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// HasRole reports whether the user's role is in the allowed set. An empty
// allowed set means any verified user qualifies.
func (u *WhatsAppUser) HasRole(allowed []Role) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, r := range allowed {
		if u.Role == r {
			return true
		}
	}
	return false
}
