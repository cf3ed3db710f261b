package llm

// ConversationTurn represents a complete request-response pair for storage in the DAG.
type ConversationTurn struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"` // The view that was submitted
	Reply    Message   `json:"reply"`
}
