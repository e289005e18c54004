package protocol

// Limits and formats shared between client and server.
const (
	// MaxMessageLen is the maximum length of a chat message after trimming,
	// counted in runes. Longer input is truncated, not rejected.
	MaxMessageLen = 1000

	// TimeLayout renders the human-readable time-of-day stamp on broadcast
	// messages; SentAt carries the epoch milliseconds for ordering.
	TimeLayout = "03:04 PM"

	// SessionCookieName is the cookie carrying the login-session token.
	SessionCookieName = "chat_session"

	// TokenQueryParam lets non-browser clients pass the session token on the
	// websocket dial URL instead of a cookie.
	TokenQueryParam = "token"
)

// Canonical acknowledgment strings.
const (
	ErrAuthenticationRequired = "Authentication required"
	ErrServerAuthFault        = "Server error during authentication"
	ErrMessageEmpty           = "Message cannot be empty"
	ErrSendFailed             = "Failed to send message"

	MsgMessageSent = "Message sent"
)
