// Package repofs implements the SourceScanner port over a local repository
// checkout.
package repofs

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ericfisherdev/qamint/internal/domain/model"
	"github.com/ericfisherdev/qamint/internal/domain/port/driven"
)

// DefaultMaxSourceBytes bounds the source text embedded in a prompt.
const DefaultMaxSourceBytes = 8000

// TruncationMarker is appended to source text cut at the byte limit.
const TruncationMarker = "\n// ... (file truncated for analysis)"

// Compile-time interface satisfaction check.
var _ driven.SourceScanner = (*Scanner)(nil)

// Scanner walks a repository for Go source files, honouring nested
// .gitignore files.
type Scanner struct {
	maxSourceBytes int
}

// NewScanner creates a Scanner. A maxSourceBytes of zero or less uses
// DefaultMaxSourceBytes.
func NewScanner(maxSourceBytes int) *Scanner {
	if maxSourceBytes <= 0 {
		maxSourceBytes = DefaultMaxSourceBytes
	}
	return &Scanner{maxSourceBytes: maxSourceBytes}
}

// Scan returns every eligible .go file under root in lexical path order.
// Unreadable files are logged and skipped.
func (s *Scanner) Scan(ctx context.Context, root string) ([]model.SourceFile, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root %s: %w", root, err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scanning %s: not a directory", root)
	}

	ignores := newGitIgnoreCache(absRoot)
	files := []model.SourceFile{}
	skipped := 0

	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() {
			if path == absRoot {
				return nil
			}
			if ignoredDirs[d.Name()] || strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			ignores.load(path)
			if ignores.ignored(path) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || filepath.Ext(path) != ".go" {
			return nil
		}

		rel, _ := filepath.Rel(absRoot, path)
		rel = filepath.ToSlash(rel)
		if shouldSkip(rel) || ignores.ignored(path) {
			skipped++
			return nil
		}

		src, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("skipping unreadable file", "path", rel, "error", err)
			return nil
		}
		if !utf8.Valid(src) {
			slog.Debug("skipping non-utf8 file", "path", rel)
			return nil
		}

		facts := analyze(rel, src)
		files = append(files, model.SourceFile{
			Path:          rel,
			AbsPath:       path,
			Package:       facts.pkg,
			Size:          int64(len(src)),
			FunctionCount: facts.functions,
			HasStructs:    facts.hasStructs,
			HasInterfaces: facts.hasInterfaces,
			HasConsts:     facts.hasConsts,
			Complexity:    facts.complexity(len(src)),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	slog.Info("repository scanned", "root", absRoot, "files", len(files), "skipped", skipped)
	return files, nil
}

// ReadSource returns the file contents, cut at the configured byte limit on a
// rune boundary with TruncationMarker appended.
func (s *Scanner) ReadSource(file model.SourceFile) (string, error) {
	src, err := os.ReadFile(file.AbsPath)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", file.Path, err)
	}
	if len(src) <= s.maxSourceBytes {
		return string(src), nil
	}

	cut := s.maxSourceBytes
	for cut > 0 && !utf8.RuneStart(src[cut]) {
		cut--
	}
	return string(src[:cut]) + TruncationMarker, nil
}
