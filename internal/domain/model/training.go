package model

// QAPair is one question/answer pair produced by the generator model.
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ChatMessage is a single turn in a chat-format training example.
type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

// ExampleMetadata records where a training example came from.
type ExampleMetadata struct {
	Source      string    `json:"source"`
	FilePath    string    `json:"file_path,omitempty"`
	IssueNumber int       `json:"issue_number,omitempty"`
	IssueTitle  string    `json:"issue_title,omitempty"`
	IssueKind   IssueKind `json:"issue_type,omitempty"`
	Score       float64   `json:"priority_score"`
}

// TrainingExample is one line of a JSONL fine-tuning dataset.
type TrainingExample struct {
	Messages []ChatMessage    `json:"messages"`
	Metadata *ExampleMetadata `json:"metadata,omitempty"`
}
