// Package message defines the conversational data model shared by the
// session store, payload builder, transports, and chat client.
package message

// Role identifies the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in a conversation. Content may be empty. Messages are
// immutable once appended to a Conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is an ordered sequence of Messages held in RAM by the chat
// client. At most one trailing user message may be unpaired (mid-turn);
// assistant messages never appear without a preceding user message in the
// same session, outside the system preamble.
type Conversation []Message

// Preamble returns the first system message, if any.
func (c Conversation) Preamble() (Message, bool) {
	for _, m := range c {
		if m.Role == RoleSystem {
			return m, true
		}
	}
	return Message{}, false
}

// Pairs groups the conversation into consecutive (user, assistant) turns,
// dropping the system preamble and any unpaired trailing user message.
func (c Conversation) Pairs() [][2]Message {
	var pairs [][2]Message
	var pendingUser *Message
	for i := range c {
		m := c[i]
		switch m.Role {
		case RoleUser:
			u := m
			pendingUser = &u
		case RoleAssistant:
			if pendingUser != nil {
				pairs = append(pairs, [2]Message{*pendingUser, m})
				pendingUser = nil
			}
		}
	}
	return pairs
}
