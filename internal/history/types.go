package history

import "time"

// Roles a persisted message may carry.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleError     = "error"
)

// Message is one persisted row of a session transcript.
type Message struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session summarizes one conversation for listings.
type Session struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	LastActivity time.Time `json:"last_activity"`
}

// ValidRole reports whether role may be persisted.
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAssistant, RoleError:
		return true
	}
	return false
}
