package model

import "time"

// EvalQuestion is one prompt in an evaluation question set.
type EvalQuestion struct {
	ID             string   `yaml:"id" json:"id"`
	Category       string   `yaml:"category" json:"category"`
	Question       string   `yaml:"question" json:"question"`
	Context        string   `yaml:"context,omitempty" json:"context,omitempty"`
	ExpectedTopics []string `yaml:"expected_topics,omitempty" json:"expected_topics,omitempty"`

	// SystemPrompt replaces every model's own system message when set.
	SystemPrompt string `yaml:"system_prompt,omitempty" json:"system_prompt,omitempty"`
}

// EvalResponse is one model's answer to an evaluation question.
type EvalResponse struct {
	Response   string        `json:"response,omitempty"`
	Latency    time.Duration `json:"-"`
	LatencySec float64       `json:"response_time,omitempty"`
	Usage      Usage         `json:"usage"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
}

// EvalResult groups every model's response to a question.
type EvalResult struct {
	Question  EvalQuestion            `json:"question"`
	Responses map[string]EvalResponse `json:"responses"`
}

// ModelStats aggregates one model's responses across a question set.
type ModelStats struct {
	Successful       int     `json:"successful"`
	AvgLatencySec    float64 `json:"average_response_time"`
	AvgTotalTokens   float64 `json:"average_tokens_used"`
	TotalInputTokens int64   `json:"total_input_tokens"`
	TotalOutTokens   int64   `json:"total_output_tokens"`
}

// EvalSummary is the outcome of an evaluation run.
type EvalSummary struct {
	StartedAt      time.Time             `json:"evaluation_timestamp"`
	TotalQuestions int                   `json:"total_questions"`
	Models         map[string]ModelStats `json:"models"`
	Results        []EvalResult          `json:"questions"`
}
