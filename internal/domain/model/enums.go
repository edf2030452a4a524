package model

// IssueState represents whether a tracker issue is open or closed.
type IssueState string

const (
	IssueStateOpen   IssueState = "open"
	IssueStateClosed IssueState = "closed"
)

// IssueKind classifies an issue from its labels.
type IssueKind string

const (
	IssueKindBug      IssueKind = "bug"
	IssueKindQuestion IssueKind = "question"
	IssueKindFeature  IssueKind = "feature"
	IssueKindOther    IssueKind = "other"
)

// RunKind distinguishes the dataset a generation run produces.
type RunKind string

const (
	RunKindCode   RunKind = "code"
	RunKindIssues RunKind = "issues"
)

// ChatRole is the role of a message in a chat-format training example.
type ChatRole string

const (
	RoleSystem    ChatRole = "system"
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)
