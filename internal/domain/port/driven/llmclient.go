package driven

import (
	"context"

	"github.com/ericfisherdev/qamint/internal/domain/model"
)

// LLMClient defines the driven port for chat completion providers.
type LLMClient interface {
	Complete(ctx context.Context, req model.CompletionRequest) (*model.Completion, error)
}
