package application

import (
	"maps"
	"path"
	"strings"
	"time"

	"github.com/ericfisherdev/qamint/internal/domain/model"
)

// priorityDirs scores the first path segment that names a well-known
// directory. Client and API surfaces rank highest; tests and vendored code
// contribute nothing.
var priorityDirs = map[string]float64{
	"client":      20,
	"api":         18,
	"core":        16,
	"pkg":         14,
	"cmd":         12,
	"plugins":     10,
	"internal":    8,
	"contrib":     6,
	"defaults":    4,
	"integration": 2,
	"test":        0,
	"vendor":      0,
}

// fileBonuses rewards file names that usually hold a package's entry points.
var fileBonuses = map[string]float64{
	"client.go":    10,
	"container.go": 8,
	"image.go":     8,
	"task.go":      8,
	"service.go":   6,
	"server.go":    6,
	"api.go":       5,
	"main.go":      4,
}

// DefaultPriorityDirs returns a copy of the built-in priority directory table.
func DefaultPriorityDirs() map[string]float64 {
	return maps.Clone(priorityDirs)
}

// FileScorer scores source files against a priority directory table.
type FileScorer struct {
	dirs map[string]float64
}

// NewFileScorer creates a FileScorer. A nil or empty table uses the defaults.
func NewFileScorer(dirs map[string]float64) FileScorer {
	if len(dirs) == 0 {
		dirs = priorityDirs
	}
	return FileScorer{dirs: dirs}
}

// FileScore computes the priority of a scanned source file with the default
// directory table.
func FileScore(f model.SourceFile) float64 {
	return NewFileScorer(nil).Score(f)
}

// Score computes the priority of a scanned source file. The score is zero for
// files with no recognised directory, name or structure.
func (s FileScorer) Score(f model.SourceFile) float64 {
	dirs := s.dirs
	if dirs == nil {
		dirs = priorityDirs
	}

	var score float64

	for _, seg := range strings.Split(path.Dir(f.Path), "/") {
		if v, ok := dirs[seg]; ok {
			score += v
			break
		}
	}

	name := path.Base(f.Path)
	score += fileBonuses[name]

	switch {
	case strings.HasSuffix(name, "_client.go"):
		score += 5
	case strings.HasSuffix(name, "_api.go"):
		score += 4
	case strings.HasPrefix(name, "service"):
		score += 3
	case strings.HasSuffix(name, "_opts.go"):
		score += 2
	}

	switch {
	case f.FunctionCount > 20:
		score += 3
	case f.FunctionCount > 10:
		score += 2
	case f.FunctionCount > 5:
		score++
	}

	if f.HasInterfaces {
		score += 2
	}
	if f.HasStructs {
		score++
	}

	return score
}

// Issue scoring weights.
const (
	issueBaseScore       = 1.0
	closedBonus          = 2.0
	bugBonus             = 3.0
	questionBonus        = 2.5
	featureFactor        = 0.5
	maintainerBonus      = 2.0
	perCommentBonus      = 0.1
	recentActivityBonus  = 1.0
	recentActivityWindow = 365 * 24 * time.Hour
)

var (
	bugLabels      = []string{"bug", "kind/bug", "type/bug"}
	questionLabels = []string{"question", "kind/question", "type/question", "help wanted"}
	featureLabels  = []string{"feature", "enhancement", "kind/feature", "type/feature"}
)

// ClassifyIssue derives an issue kind from its labels, matched
// case-insensitively. Bug wins over question, question over feature.
func ClassifyIssue(labels []string) model.IssueKind {
	lower := make(map[string]bool, len(labels))
	for _, l := range labels {
		lower[strings.ToLower(strings.TrimSpace(l))] = true
	}

	hasAny := func(candidates []string) bool {
		for _, c := range candidates {
			if lower[c] {
				return true
			}
		}
		return false
	}

	switch {
	case hasAny(bugLabels):
		return model.IssueKindBug
	case hasAny(questionLabels):
		return model.IssueKindQuestion
	case hasAny(featureLabels):
		return model.IssueKindFeature
	default:
		return model.IssueKindOther
	}
}

// IssueScore computes the priority of a classified issue as of now. Feature
// requests are halved before the maintainer, comment and recency bonuses are
// added.
func IssueScore(issue model.Issue, now time.Time) float64 {
	score := issueBaseScore

	if issue.IsClosed() {
		score += closedBonus
	}

	switch issue.Kind {
	case model.IssueKindBug:
		score += bugBonus
	case model.IssueKindQuestion:
		score += questionBonus
	case model.IssueKindFeature:
		score *= featureFactor
	}

	if issue.HasMaintainerResponse {
		score += maintainerBonus
	}

	score += float64(issue.CommentsCount) * perCommentBonus

	if !issue.UpdatedAt.IsZero() && now.Sub(issue.UpdatedAt) < recentActivityWindow {
		score += recentActivityBonus
	}

	return score
}

// hasMaintainerResponse reports whether any comment was written by a known
// maintainer.
func hasMaintainerResponse(comments []model.IssueComment, maintainers map[string]bool) bool {
	for _, c := range comments {
		if maintainers[c.Author] {
			return true
		}
	}
	return false
}
