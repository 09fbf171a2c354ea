package protocol

// Message types exchanged between the router and a tab's UI surface.
const (
	TypeMeta   = "meta"
	TypeUser   = "user"
	TypeStatus = "status"
)

// Meta actions.
const (
	ActionLogin     = "login"
	ActionSetActive = "set-active"
	ActionToggle    = "toggle"
)

// Statuses.
const (
	StatusThinking     = "thinking"
	StatusDone         = "done"
	StatusAuthorized   = "authorized"
	StatusUnauthorized = "unauthorized"
)

// Message is the single record shape carried over a tab connection, in both
// directions. Backend answer deltas decode into the same shape: they carry
// message.id and message.content.parts, which is all the merge logic needs.
type Message struct {
	Type     string `json:"type,omitempty"`
	Action   string `json:"action,omitempty"`
	Status   string `json:"status,omitempty"`
	Active   *bool  `json:"active,omitempty"`
	URL      string `json:"url,omitempty"`
	Question string `json:"question,omitempty"`
	Error    string `json:"error,omitempty"`
	Message  *Body  `json:"message,omitempty"`
}

// Body is the answer payload of a message.
type Body struct {
	ID      string  `json:"id,omitempty"`
	Content Content `json:"content"`
}

// Content holds the ordered text fragments of an answer.
type Content struct {
	ContentType string   `json:"content_type,omitempty"`
	Parts       []string `json:"parts,omitempty"`
}

// IsThinking reports whether the message is a provisional placeholder.
func (m *Message) IsThinking() bool {
	return m != nil && m.Status == StatusThinking
}

// ID returns the stable answer identity, or "" when the message has none.
func (m *Message) ID() string {
	if m == nil || m.Message == nil {
		return ""
	}
	return m.Message.ID
}

// UserEcho builds the echoed copy of a user's question.
func UserEcho(id, question string) *Message {
	return &Message{
		Type: TypeUser,
		Message: &Body{
			ID:      id,
			Content: Content{Parts: []string{question}},
		},
	}
}

// Thinking builds the placeholder shown while awaiting the first answer
// fragment. It carries the request message id so streamed fragments bearing
// the same id merge over it.
func Thinking(id string) *Message {
	return &Message{
		Type:   TypeStatus,
		Status: StatusThinking,
		Message: &Body{
			ID:      id,
			Content: Content{Parts: []string{"..."}},
		},
	}
}

// Done builds the terminal status event of an answer stream.
func Done() *Message {
	return &Message{Type: TypeStatus, Status: StatusDone}
}

// AuthStatus builds an authorized/unauthorized broadcast message.
func AuthStatus(status string) *Message {
	return &Message{Type: TypeMeta, Status: status}
}

// SetActive builds the UI-visibility state message.
func SetActive(active bool) *Message {
	return &Message{Type: TypeMeta, Action: ActionSetActive, Active: &active}
}

// Toggle builds the UI-visibility toggle command.
func Toggle() *Message {
	return &Message{Type: TypeMeta, Action: ActionToggle}
}

// Login builds the reply pointing the UI at the backend's login page.
func Login(url string) *Message {
	return &Message{Type: TypeMeta, Action: ActionLogin, URL: url}
}

// ErrorMessage builds an in-band error event.
func ErrorMessage(msg string) *Message {
	return &Message{Error: msg}
}
