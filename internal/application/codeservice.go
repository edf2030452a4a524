package application

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/ericfisherdev/qamint/internal/domain/model"
	"github.com/ericfisherdev/qamint/internal/domain/port/driven"
	"github.com/ericfisherdev/qamint/internal/domain/quota"
)

// Default budgets for code dataset generation.
const (
	DefaultMaxFiles   = 50
	DefaultMaxQA      = 500
	DefaultMaxPerFile = 20
)

// ErrNoSourceFiles indicates the repository scan found nothing to process.
var ErrNoSourceFiles = errors.New("no source files found")

// CodeRequest configures one code dataset generation run.
type CodeRequest struct {
	Root   string
	Output string

	// MaxFiles keeps only the highest scored files. Zero keeps every file.
	MaxFiles int

	// MaxQA is the total pair budget shared by the selected files.
	MaxQA int

	// MaxPerFile caps each file's share. Zero leaves files uncapped.
	MaxPerFile int
}

// ProcessedFile reports the outcome for one file with a non-zero allocation.
type ProcessedFile struct {
	Path          string  `json:"path"`
	Package       string  `json:"package"`
	Score         float64 `json:"priority_score"`
	FunctionCount int     `json:"function_count"`
	Allocated     int     `json:"qa_pairs_allocated"`
	Generated     int     `json:"qa_pairs_generated"`
	Error         string  `json:"error,omitempty"`
}

// CodeReport summarises a code dataset generation run.
type CodeReport struct {
	RunID          int64           `json:"run_id"`
	FilesScanned   int             `json:"files_scanned"`
	FilesSelected  int             `json:"files_selected"`
	FilesProcessed int             `json:"files_processed"`
	FilesFailed    int             `json:"errors"`
	Allocation     quota.Summary   `json:"allocation"`
	Generated      int             `json:"qa_pairs_generated"`
	Duplicates     int             `json:"duplicates_skipped"`
	Usage          model.Usage     `json:"usage"`
	EstimatedCost  float64         `json:"estimated_cost"`
	Interrupted    bool            `json:"interrupted"`
	Output         string          `json:"-"`
	MetadataPath   string          `json:"-"`
	Files          []ProcessedFile `json:"-"`
}

type codeGenerationInfo struct {
	Timestamp  time.Time `json:"timestamp"`
	RepoPath   string    `json:"repo_path"`
	Model      string    `json:"model"`
	Domain     string    `json:"domain"`
	MaxFiles   int       `json:"max_files"`
	MaxQA      int       `json:"max_qa_entries"`
	MaxPerFile int       `json:"max_qa_per_file"`
}

type codeMetadata struct {
	GenerationInfo codeGenerationInfo `json:"generation_info"`
	Stats          *CodeReport        `json:"stats"`
	Allocation     map[string]int     `json:"qa_allocation"`
	ProcessedFiles []ProcessedFile    `json:"files_processed"`
}

// CodeService turns the source files of a repository checkout into a
// chat-format fine-tuning dataset.
type CodeService struct {
	scanner   driven.SourceScanner
	llm       driven.LLMClient
	runs      driven.RunStore
	questions driven.QuestionStore
	writer    driven.DatasetWriter
	pacer     *Pacer
	prompts   Prompts
	scorer    FileScorer
	model     string
}

// NewCodeService creates a new CodeService with all required dependencies.
// A nil pacer uses the default request rate.
func NewCodeService(
	scanner driven.SourceScanner,
	llm driven.LLMClient,
	runs driven.RunStore,
	questions driven.QuestionStore,
	writer driven.DatasetWriter,
	pacer *Pacer,
	prompts Prompts,
	scorer FileScorer,
	model string,
) *CodeService {
	if pacer == nil {
		pacer = NewPacer(DefaultRequestsPerMinute)
	}
	return &CodeService{
		scanner:   scanner,
		llm:       llm,
		runs:      runs,
		questions: questions,
		writer:    writer,
		pacer:     pacer,
		prompts:   prompts,
		scorer:    scorer,
		model:     model,
	}
}

// Generate scans req.Root, distributes req.MaxQA pairs across the highest
// scored files and asks the model for each file's share. Per-file failures
// are logged and counted. When ctx is cancelled mid-run the pairs generated
// so far are still written and the report is returned with the context error.
func (s *CodeService) Generate(ctx context.Context, req CodeRequest) (*CodeReport, error) {
	if req.Root == "" {
		return nil, errors.New("repository root is required")
	}
	if req.Output == "" {
		return nil, errors.New("output path is required")
	}

	files, err := s.scanner.Scan(ctx, req.Root)
	if err != nil {
		return nil, fmt.Errorf("scan repository: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("scan %s: %w", req.Root, ErrNoSourceFiles)
	}

	selected := s.rankFiles(files, req.MaxFiles)

	capPolicy := quota.Uncapped()
	if req.MaxPerFile > 0 {
		capPolicy = quota.CappedAt(req.MaxPerFile)
	}

	items := make([]quota.Item[string], len(selected))
	for i, f := range selected {
		items[i] = quota.Item[string]{ID: f.Path, Score: f.Score}
	}
	alloc, err := quota.Allocate(items, quota.Options{Quota: req.MaxQA, Cap: capPolicy, MinimumOne: true})
	if err != nil {
		return nil, fmt.Errorf("allocate pairs: %w", err)
	}

	report := &CodeReport{
		FilesScanned:  len(files),
		FilesSelected: len(selected),
		Allocation:    alloc.Summary,
		Output:        req.Output,
		MetadataPath:  codeMetadataPath(req.Output),
	}

	run := model.Run{
		Kind:      model.RunKindCode,
		Source:    req.Root,
		Output:    req.Output,
		Quota:     req.MaxQA,
		Cap:       max(req.MaxPerFile, 0),
		Allocated: alloc.Summary.TotalAllocated,
		StartedAt: time.Now(),
	}
	run.ID, err = s.runs.Start(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	report.RunID = run.ID

	entries := make([]model.AllocationEntry, len(selected))
	for i, f := range selected {
		entries[i] = model.AllocationEntry{RunID: run.ID, ItemKey: f.Path, Score: f.Score, Allocated: alloc.Counts[f.Path]}
	}
	if err := s.runs.SaveAllocations(ctx, run.ID, entries); err != nil {
		return nil, fmt.Errorf("save allocations: %w", err)
	}

	slog.Info("pairs allocated",
		"run_id", run.ID,
		"files", len(selected),
		"quota", req.MaxQA,
		"cap", capPolicy.String(),
		"allocated", alloc.Summary.TotalAllocated,
		"at_zero", alloc.Summary.ItemsAtZero,
		"at_cap", alloc.Summary.ItemsAtCap,
	)

	dedup := newDedupFilter(s.questions, run.ID)
	examples, loopErr := s.generateAll(ctx, dedup, selected, alloc.Counts, run.ID, report)

	run.Generated = report.Generated
	run.Errors = report.FilesFailed
	run.Duplicates = report.Duplicates
	finishRun(ctx, s.runs, run)

	if err := s.writer.WriteExamples(req.Output, examples); err != nil {
		return report, fmt.Errorf("write dataset: %w", err)
	}
	dedup.commit(ctx)

	meta := codeMetadata{
		GenerationInfo: codeGenerationInfo{
			Timestamp:  run.StartedAt.UTC(),
			RepoPath:   req.Root,
			Model:      s.model,
			Domain:     s.prompts.domain(),
			MaxFiles:   req.MaxFiles,
			MaxQA:      req.MaxQA,
			MaxPerFile: req.MaxPerFile,
		},
		Stats:          report,
		Allocation:     alloc.Counts,
		ProcessedFiles: report.Files,
	}
	if err := s.writer.WriteJSON(report.MetadataPath, meta); err != nil {
		return report, fmt.Errorf("write metadata: %w", err)
	}

	slog.Info("code dataset written",
		"run_id", run.ID,
		"output", req.Output,
		"examples", len(examples),
		"errors", report.FilesFailed,
		"duplicates", report.Duplicates,
		"tokens", report.Usage.TotalTokens(),
	)

	return report, loopErr
}

// rankFiles scores files, orders them by score descending then path, and
// keeps the first maxFiles.
func (s *CodeService) rankFiles(files []model.SourceFile, maxFiles int) []model.SourceFile {
	ranked := slices.Clone(files)
	for i := range ranked {
		ranked[i].Score = s.scorer.Score(ranked[i])
	}
	slices.SortFunc(ranked, func(a, b model.SourceFile) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Path, b.Path)
	})
	if maxFiles > 0 && len(ranked) > maxFiles {
		ranked = ranked[:maxFiles]
	}
	return ranked
}

func (s *CodeService) generateAll(
	ctx context.Context,
	dedup *dedupFilter,
	files []model.SourceFile,
	counts map[string]int,
	runID int64,
	report *CodeReport,
) ([]model.TrainingExample, error) {
	system := s.prompts.ExpertSystem()
	examples := make([]model.TrainingExample, 0, len(files))

	for i, f := range files {
		count := counts[f.Path]
		if count == 0 {
			slog.Debug("skipping file with no allocation", "path", f.Path)
			continue
		}

		if err := s.pacer.Wait(ctx, count); err != nil {
			report.Interrupted = true
			return examples, interrupted(err)
		}

		slog.Info("processing file", "index", i+1, "of", len(files), "path", f.Path, "pairs", count)

		processed := ProcessedFile{
			Path:          f.Path,
			Package:       f.Package,
			Score:         f.Score,
			FunctionCount: f.FunctionCount,
			Allocated:     count,
		}

		pairs, err := s.generateFile(ctx, f, count, report)
		if err != nil {
			if ctx.Err() != nil {
				report.Interrupted = true
				return examples, interrupted(ctx.Err())
			}
			slog.Warn("file generation failed", "path", f.Path, "error", err)
			report.FilesFailed++
			processed.Error = err.Error()
			report.Files = append(report.Files, processed)
			continue
		}

		for _, pair := range pairs {
			if !dedup.keep(ctx, pair.Question) {
				report.Duplicates++
				continue
			}
			examples = append(examples, chatExample(system, pair, nil))
			processed.Generated++
		}

		report.FilesProcessed++
		report.Generated += processed.Generated
		report.Files = append(report.Files, processed)
		markGenerated(ctx, s.runs, runID, f.Path, processed.Generated)
	}

	return examples, nil
}

func (s *CodeService) generateFile(ctx context.Context, f model.SourceFile, count int, report *CodeReport) ([]model.QAPair, error) {
	source, err := s.scanner.ReadSource(f)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}

	completion, err := s.llm.Complete(ctx, model.CompletionRequest{
		Model:        s.model,
		SystemPrompt: s.prompts.CodeSystem(),
		UserPrompt:   s.prompts.Code(f, source, count),
		Temperature:  generationTemperature,
		MaxTokens:    codeMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}
	report.Usage.Add(completion.Usage)
	report.EstimatedCost = estimateCost(report.Usage)

	pairs, err := ParseQAPairs(completion.Text)
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return nil, ErrUnparseableResponse
	}
	if len(pairs) > count {
		slog.Debug("model returned extra pairs", "path", f.Path, "requested", count, "returned", len(pairs))
		pairs = pairs[:count]
	}
	return pairs, nil
}

// codeMetadataPath replaces the output extension with ".metadata.json".
func codeMetadataPath(output string) string {
	return strings.TrimSuffix(output, filepath.Ext(output)) + ".metadata.json"
}
