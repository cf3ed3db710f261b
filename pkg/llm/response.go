package llm

// ChatResponse represents a chat completion response (OpenAI-compatible).
// Only the fields the client relies on are modelled; everything else in the
// body is ignored.
type ChatResponse struct {
	ID      string   `json:"id,omitempty"`
	Model   string   `json:"model,omitempty"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Choice is a single generated alternative. Message is a pointer so that an
// absent "message" object can be told apart from an empty one.
type Choice struct {
	Index        int            `json:"index"`
	Message      *ChoiceMessage `json:"message"`
	FinishReason string         `json:"finish_reason,omitempty"`
}

// ChoiceMessage is the message object inside a choice. Content is a pointer
// for the same reason as Choice.Message.
type ChoiceMessage struct {
	Role    Role    `json:"role,omitempty"`
	Content *string `json:"content"`
}

// Usage reports token accounting for a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
