package llm

// ChatRequest represents a chat completion request (OpenAI-compatible).
type ChatRequest struct {
	Model    string    `json:"model"`    // Model name (e.g., "gpt-4o-mini")
	Messages []Message `json:"messages"` // Conversation history, oldest first

	// Generation parameters
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	MaxTokens   int     `json:"max_tokens"`
}
