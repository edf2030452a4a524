package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/qamint/internal/adapter/driven/repofs"
	sqliteadapter "github.com/ericfisherdev/qamint/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/qamint/internal/application"
	"github.com/ericfisherdev/qamint/internal/domain/model"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "qamint",
		Short:         "Generate fine-tuning datasets from a repository's code and issues",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "optional dotenv file to load before reading the environment")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "qamint.db", "SQLite database path (overrides QAMINT_DB_PATH)")
	root.PersistentFlags().IntVar(&a.rpm, "requests-per-minute", 0, "model calls per minute (overrides QAMINT_REQUESTS_PER_MINUTE)")

	root.AddCommand(
		newCodeCmd(a),
		newIssuesCmd(a),
		newEvalCmd(a),
		newCompareCmd(a),
		newRunsCmd(a),
		newServeCmd(a),
	)
	return root
}

func newCodeCmd(a *app) *cobra.Command {
	var (
		req            application.CodeRequest
		pairsPerMinute int
		maxSourceBytes int
	)

	cmd := &cobra.Command{
		Use:   "code",
		Short: "Generate Q&A pairs from the Go source files of a repository checkout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.codeService(pairsPerMinute, maxSourceBytes)
			if err != nil {
				return err
			}
			report, err := svc.Generate(cmd.Context(), req)
			if report != nil {
				printCodeReport(cmd.OutOrStdout(), report)
			}
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.Root, "repo", ".", "repository checkout to scan")
	f.StringVar(&req.Output, "output", "code_training_data.jsonl", "JSONL dataset to write")
	f.IntVar(&req.MaxFiles, "max-files", application.DefaultMaxFiles, "highest scored files to consider (0 for all)")
	f.IntVar(&req.MaxQA, "max-qa-entries", application.DefaultMaxQA, "total Q&A pairs to generate")
	f.IntVar(&req.MaxPerFile, "max-qa-per-file", application.DefaultMaxPerFile, "Q&A pair cap per file (0 for uncapped)")
	f.IntVar(&pairsPerMinute, "pairs-per-minute", 0, "Q&A pairs requested per minute (0 for no limit)")
	f.IntVar(&maxSourceBytes, "max-source-bytes", repofs.DefaultMaxSourceBytes, "bytes of each file included in prompts")
	return cmd
}

func newIssuesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issues",
		Short: "Mine GitHub issues and generate Q&A pairs from their discussions",
	}
	cmd.AddCommand(newIssuesFetchCmd(a), newIssuesGenerateCmd(a))
	return cmd
}

func newIssuesFetchCmd(a *app) *cobra.Command {
	var (
		req   application.MineRequest
		since string
		days  int
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch, score and store a repository's issues",
		RunE: func(cmd *cobra.Command, _ []string) error {
			bound, err := sinceBound(since, days, time.Now())
			if err != nil {
				return err
			}
			req.Since = bound

			svc, err := a.issueService(false, 0)
			if err != nil {
				return err
			}
			summary, err := svc.Mine(cmd.Context(), req)
			if summary != nil {
				printMineSummary(cmd.OutOrStdout(), summary)
			}
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.Repo, "repo", "", "repository as owner/name")
	f.StringVar(&since, "since", "", "only issues updated on or after this date (YYYY-MM-DD)")
	f.IntVar(&days, "days", 730, "only issues updated in the last N days when --since is not set")
	f.IntVar(&req.MaxIssues, "max-issues", 0, "maximum issues to fetch (0 for all)")
	f.StringVar(&req.MetadataPath, "metadata", "", "optional JSON export of the scored issues")
	_ = cmd.MarkFlagRequired("repo")
	return cmd
}

func newIssuesGenerateCmd(a *app) *cobra.Command {
	var (
		req            application.IssueRequest
		pairsPerMinute int
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate Q&A pairs from stored issues",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.issueService(true, pairsPerMinute)
			if err != nil {
				return err
			}
			report, err := svc.Generate(cmd.Context(), req)
			if report != nil {
				printIssueReport(cmd.OutOrStdout(), report)
			}
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.Repo, "repo", "", "repository as owner/name")
	f.StringVar(&req.Output, "output", "issue_training_data.jsonl", "JSONL dataset to write")
	f.IntVar(&req.MaxIssues, "max-issues", 0, "highest scored issues to use (0 for all)")
	f.IntVar(&req.MaxQA, "max-qa-entries", application.DefaultIssueMaxQA, "total Q&A pairs to generate")
	f.IntVar(&pairsPerMinute, "pairs-per-minute", 0, "Q&A pairs requested per minute (0 for no limit)")
	_ = cmd.MarkFlagRequired("repo")
	return cmd
}

func newEvalCmd(a *app) *cobra.Command {
	var (
		req       application.EvalRequest
		fineTuned string
		baseline  string
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Ask a question set of a fine-tuned and a baseline model",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.evalService(fineTuned, baseline)
			if err != nil {
				return err
			}
			summary, err := svc.Run(cmd.Context(), req)
			if summary != nil {
				printEvalSummary(cmd.OutOrStdout(), summary)
			}
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.QuestionsPath, "questions", "questions.yaml", "YAML or JSON question set")
	f.StringVar(&req.Output, "output", "evaluation_results.json", "results JSON to write")
	f.IntVar(&req.Limit, "limit", 0, "maximum questions to ask (0 for all)")
	f.StringSliceVar(&req.Categories, "category", nil, "only ask questions in these categories")
	f.StringVar(&fineTuned, "model", "", "fine-tuned model or deployment")
	f.StringVar(&baseline, "baseline-model", "", "baseline model or deployment")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func newCompareCmd(a *app) *cobra.Command {
	var (
		fineTuned string
		baseline  string
		system    string
	)

	cmd := &cobra.Command{
		Use:   "compare QUESTION",
		Short: "Ask one question of the fine-tuned and baseline models side by side",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.evalService(fineTuned, baseline)
			if err != nil {
				return err
			}
			result, err := svc.Compare(cmd.Context(), model.EvalQuestion{ID: "adhoc", Question: args[0], SystemPrompt: system})
			if err != nil {
				return err
			}
			printComparison(cmd.OutOrStdout(), result)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&fineTuned, "model", "", "fine-tuned model or deployment")
	f.StringVar(&baseline, "baseline-model", "", "baseline model or deployment")
	f.StringVar(&system, "system", "", "system message for both models")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func newRunsCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs [RUN_ID]",
		Short: "List recent generation runs, or show one run's allocation ledger",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.database()
			if err != nil {
				return err
			}
			runs := sqliteadapter.NewRunRepo(db)
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid run id %q: %w", args[0], err)
				}
				return showRun(cmd.Context(), out, runs, id)
			}

			version, dirty, err := sqliteadapter.SchemaVersion(db.Writer)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "database %s (schema v%d, dirty=%t)\n\n", db.Path(), version, dirty)

			recent, err := runs.ListRecent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printRuns(out, recent)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "runs to list")
	return cmd
}

// sinceBound resolves the --since/--days pair into a lower bound.
func sinceBound(since string, days int, now time.Time) (time.Time, error) {
	if since != "" {
		t, err := time.Parse(time.DateOnly, since)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid --since %q: %w", since, err)
		}
		return t, nil
	}
	if days < 0 {
		return time.Time{}, errors.New("--days must not be negative")
	}
	if days == 0 {
		return time.Time{}, nil
	}
	return now.AddDate(0, 0, -days), nil
}

func showRun(ctx context.Context, out io.Writer, runs *sqliteadapter.RunRepo, id int64) error {
	run, err := runs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %d not found", id)
	}
	printRuns(out, []model.Run{*run})

	entries, err := runs.ListAllocations(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ITEM\tSCORE\tALLOCATED\tGENERATED")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%.2f\t%d\t%d\n", e.ItemKey, e.Score, e.Allocated, e.Generated)
	}
	return tw.Flush()
}

func printRuns(out io.Writer, runs []model.Run) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSOURCE\tQUOTA\tCAP\tALLOCATED\tGENERATED\tERRORS\tDUPLICATES\tSTARTED\tFINISHED")
	for _, r := range runs {
		capText := "-"
		if r.Cap > 0 {
			capText = strconv.Itoa(r.Cap)
		}
		finished := "running"
		if !r.FinishedAt.IsZero() {
			finished = r.FinishedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			r.ID, r.Kind, r.Source, r.Quota, capText, r.Allocated, r.Generated, r.Errors, r.Duplicates,
			r.StartedAt.Local().Format(time.DateTime), finished)
	}
	_ = tw.Flush()
}

func printCodeReport(out io.Writer, r *application.CodeReport) {
	fmt.Fprintf(out, "run %d: %d of %d files selected, %d processed, %d failed\n",
		r.RunID, r.FilesSelected, r.FilesScanned, r.FilesProcessed, r.FilesFailed)
	fmt.Fprintf(out, "allocated %d pairs (%d files at zero, %d at cap), generated %d, skipped %d duplicates\n",
		r.Allocation.TotalAllocated, r.Allocation.ItemsAtZero, r.Allocation.ItemsAtCap, r.Generated, r.Duplicates)
	fmt.Fprintf(out, "tokens %d, estimated cost $%.2f\n", r.Usage.TotalTokens(), r.EstimatedCost)
	fmt.Fprintf(out, "dataset %s\nmetadata %s\n", r.Output, r.MetadataPath)
	if r.Interrupted {
		fmt.Fprintln(out, "interrupted: partial results written")
	}
}

func printMineSummary(out io.Writer, s *application.MineSummary) {
	fmt.Fprintf(out, "%s: %d issues (%d open, %d closed), %d errors\n", s.Repo, s.Total, s.Open, s.Closed, s.Errors)

	kinds := make([]string, 0, len(s.ByKind))
	for kind, n := range s.ByKind {
		kinds = append(kinds, fmt.Sprintf("%s=%d", kind, n))
	}
	sort.Strings(kinds)
	fmt.Fprintf(out, "types: %s\n\n", strings.Join(kinds, " "))

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NUMBER\tSCORE\tTYPE\tSTATE\tTITLE")
	for _, issue := range s.Top {
		fmt.Fprintf(tw, "#%d\t%.1f\t%s\t%s\t%s\n", issue.Number, issue.Score, issue.Kind, issue.State, truncate(issue.Title, 60))
	}
	_ = tw.Flush()
}

func printIssueReport(out io.Writer, r *application.IssueReport) {
	fmt.Fprintf(out, "run %d: %d issues processed, %d succeeded, %d failed, %d retried\n",
		r.RunID, r.Processed, r.Successful, r.Failed, r.Retried)
	fmt.Fprintf(out, "allocated %d pairs, generated %d, skipped %d duplicates\n",
		r.Allocation.TotalAllocated, r.Pairs, r.Duplicates)
	fmt.Fprintf(out, "tokens %d, estimated cost $%.2f\n", r.TokensUsed, r.EstimatedCost)
	fmt.Fprintf(out, "dataset %s\nmetadata %s\n", r.Output, r.MetadataPath)
	if r.Interrupted {
		fmt.Fprintln(out, "interrupted: partial results written")
	}
}

func printEvalSummary(out io.Writer, s *model.EvalSummary) {
	names := make([]string, 0, len(s.Models))
	for name := range s.Models {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tSUCCESSFUL\tAVG LATENCY\tAVG TOKENS")
	for _, name := range names {
		st := s.Models[name]
		fmt.Fprintf(tw, "%s\t%d/%d\t%.2fs\t%.0f\n", name, st.Successful, len(s.Results), st.AvgLatencySec, st.AvgTotalTokens)
	}
	_ = tw.Flush()
}

func printComparison(out io.Writer, r model.EvalResult) {
	names := make([]string, 0, len(r.Responses))
	for name := range r.Responses {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		resp := r.Responses[name]
		fmt.Fprintf(out, "=== %s", name)
		if !resp.Success {
			fmt.Fprintf(out, " (failed: %s)\n\n", resp.Error)
			continue
		}
		fmt.Fprintf(out, " (%.2fs, %d tokens)\n%s\n\n", resp.LatencySec, resp.Usage.TotalTokens(), resp.Response)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
