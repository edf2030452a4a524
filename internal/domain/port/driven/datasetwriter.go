package driven

import "github.com/ericfisherdev/qamint/internal/domain/model"

// DatasetWriter persists generated training data and its metadata.
type DatasetWriter interface {
	WriteExamples(path string, examples []model.TrainingExample) error
	WriteJSON(path string, v any) error
}
