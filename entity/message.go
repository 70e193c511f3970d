package entity

// Inbound is a normalized incoming webhook event. ButtonID is set when the
// user tapped an interactive button instead of typing text.
type Inbound struct {
	MessageID string
	From      string
	Name      string
	Text      string
	ButtonID  string
	IsEcho    bool
}
