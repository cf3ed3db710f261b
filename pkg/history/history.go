// Package history owns the ordered message sequence of a single chat session
// and produces bounded views of it for submission.
package history

import "github.com/papercomputeco/picochat/pkg/llm"

// DefaultSystemPrompt seeds a conversation when no prompt is configured.
const DefaultSystemPrompt = "You are ChatGPT, a helpful assistant."

// Conversation is an append-only sequence of messages. Index 0 always holds
// the single system message. A Conversation is owned by one session and is
// not safe for concurrent use.
type Conversation struct {
	messages []llm.Message
}

// New creates a Conversation holding only the system message.
func New(systemPrompt string) *Conversation {
	return &Conversation{
		messages: []llm.Message{llm.NewMessage(llm.RoleSystem, systemPrompt)},
	}
}

// AppendUser appends a user message. Callers are expected to skip blank input.
func (c *Conversation) AppendUser(text string) {
	c.messages = append(c.messages, llm.NewMessage(llm.RoleUser, text))
}

// AppendAssistant appends an assistant reply.
func (c *Conversation) AppendAssistant(text string) {
	c.messages = append(c.messages, llm.NewMessage(llm.RoleAssistant, text))
}

// Len returns the number of messages, including the system message.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// System returns the leading system message.
func (c *Conversation) System() llm.Message {
	return c.messages[0]
}

// Pairs returns the number of complete user/assistant exchanges worth of
// messages held after the system message.
func (c *Conversation) Pairs() int {
	return (len(c.messages) - 1) / 2
}

// Messages returns a copy of the full conversation.
func (c *Conversation) Messages() []llm.Message {
	out := make([]llm.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// WindowedView returns the messages to submit for a request. When the
// conversation holds more than 2*pairLimit+1 messages, the view is the system
// message followed by the most recent 2*pairLimit messages; otherwise it is
// the whole conversation. The returned slice never aliases the stored history.
func (c *Conversation) WindowedView(pairLimit int) []llm.Message {
	if pairLimit < 0 {
		pairLimit = 0
	}

	keep := 2 * pairLimit
	if len(c.messages) <= keep+1 {
		return c.Messages()
	}

	view := make([]llm.Message, 0, keep+1)
	view = append(view, c.messages[0])
	view = append(view, c.messages[len(c.messages)-keep:]...)
	return view
}
