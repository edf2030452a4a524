package model

import "time"

// CompletionRequest is a single chat completion call to a language model.
type CompletionRequest struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	TopP         float64 // Zero leaves the provider default.
	MaxTokens    int
}

// Usage counts the tokens consumed by a completion.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// TotalTokens returns input plus output tokens.
func (u Usage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

// Add accumulates other into u.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Completion is the text and accounting returned by a language model.
type Completion struct {
	Text    string
	Usage   Usage
	Latency time.Duration
}
