package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/yuanxie/sed-dl/internal/auth"
	"github.com/yuanxie/sed-dl/internal/config"
	"github.com/yuanxie/sed-dl/internal/extractor"
	"github.com/yuanxie/sed-dl/internal/output"
	"github.com/yuanxie/sed-dl/internal/transfer"
	"github.com/yuanxie/sed-dl/internal/utils"
)

// Options gathers everything a run needs: resolved configuration, the auth
// resolver, and the flags that shape extraction and transfer.
type Options struct {
	Config      *config.External
	Client      utils.HTTPDoer
	Auth        *auth.Resolver
	OutputRoot  string
	Workers     int
	Retries     int
	Quality     string
	AudioFormat string
	Selection   string
	FilterExts  []string
	Flat        bool
	Force       bool
}

// Summary is the outcome of a run.
type Summary struct {
	Completed int
	Skipped   int
	Failed    int
	Results   []utils.TransferResult
}

// Failures reports whether any item ended in failure.
func (s *Summary) Failures() bool {
	return s.Failed > 0
}

// Run expands every task into download items, applies the selection and
// extension filters, and hands the surviving items to the transfer manager.
// A task that fails extraction is reported and does not stop its siblings.
func Run(ctx context.Context, tasks []utils.Task, opts Options) (*Summary, error) {
	items, extractErrs := expand(ctx, tasks, opts)
	if len(items) == 0 && len(extractErrs) == len(tasks) && len(tasks) > 0 {
		return nil, fmt.Errorf("all %d tasks failed extraction", len(tasks))
	}

	items = applyExtensionFilter(items, opts.FilterExts)
	items, err := applySelection(items, opts.Selection)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		output.PrintInfo("nothing to download")
		return &Summary{}, nil
	}
	output.PrintInfo(fmt.Sprintf("downloading %d files to %s", len(items), opts.OutputRoot))

	mgr := &transfer.Manager{
		Client:     opts.Client,
		Auth:       opts.Auth,
		OutputRoot: opts.OutputRoot,
		Workers:    opts.Workers,
		Retries:    opts.Retries,
		Quality:    opts.Quality,
		Force:      opts.Force,
	}
	results := mgr.Run(ctx, items)

	summary := &Summary{Results: results}
	for i := range results {
		switch results[i].Status {
		case utils.StatusCompleted:
			summary.Completed++
		case utils.StatusSkipped:
			summary.Skipped++
		case utils.StatusFailed:
			summary.Failed++
		}
	}
	report(summary, extractErrs)
	return summary, nil
}

// expand runs each task's extractor and collects the items, grouped by
// resource kind with each extractor's emission order preserved inside a
// group, so selection indices are stable across runs.
func expand(ctx context.Context, tasks []utils.Task, opts Options) ([]utils.DownloadItem, []error) {
	env := &extractor.Env{
		Client:      opts.Client,
		Auth:        opts.Auth,
		Config:      opts.Config,
		Quality:     opts.Quality,
		AudioFormat: opts.AudioFormat,
		Flat:        opts.Flat,
	}
	var items []utils.DownloadItem
	var errs []error
	for _, task := range tasks {
		ext, err := extractor.New(task.Kind, env)
		if err != nil {
			output.PrintError(fmt.Sprintf("%s: %v", task.Input, err))
			errs = append(errs, err)
			continue
		}
		found, err := ext.Extract(ctx, task.ID)
		if err != nil {
			output.PrintError(fmt.Sprintf("%s: %v", task.Input, err))
			errs = append(errs, err)
			continue
		}
		if len(found) == 0 {
			output.PrintWarning(fmt.Sprintf("%s: no downloadable files", task.Input))
			continue
		}
		items = append(items, found...)
	}
	orderItems(items)
	return items, errs
}

// orderItems groups a mixed batch by resource kind. The sort is stable, so
// the API order each extractor emitted survives within a group (a textbook's
// PDF stays ahead of its companion audio).
func orderItems(items []utils.DownloadItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return kindRank(items[i].Kind) < kindRank(items[j].Kind)
	})
}

func kindRank(k utils.ResourceKind) int {
	switch k {
	case utils.KindCourse:
		return 0
	case utils.KindClassroom:
		return 1
	default:
		return 2
	}
}

// applyExtensionFilter keeps only items whose filename extension matches
// one of exts. An empty filter passes everything through.
func applyExtensionFilter(items []utils.DownloadItem, exts []string) []utils.DownloadItem {
	if len(exts) == 0 {
		return items
	}
	allowed := make(map[string]bool, len(exts))
	for _, e := range exts {
		allowed[strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))] = true
	}
	var kept []utils.DownloadItem
	for _, item := range items {
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(item.RelPath), "."))
		if allowed[ext] {
			kept = append(kept, item)
		}
	}
	output.PrintInfo(fmt.Sprintf("extension filter: %d -> %d available", len(items), len(kept)))
	return kept
}

// applySelection narrows the item list to the user's 1-based picks.
func applySelection(items []utils.DownloadItem, expr string) ([]utils.DownloadItem, error) {
	if expr == "" || len(items) == 0 {
		return items, nil
	}
	indices, err := utils.ParseSelection(expr, len(items))
	if err != nil {
		return nil, err
	}
	picked := make([]utils.DownloadItem, 0, len(indices))
	for _, i := range indices {
		picked = append(picked, items[i])
	}
	log.Debug().Str("op", "scheduler/run").Msgf("selection %q kept %d of %d items", expr, len(picked), len(items))
	return picked, nil
}

func report(s *Summary, extractErrs []error) {
	output.PrintRule("summary")
	output.PrintDetail(fmt.Sprintf("completed %d, skipped %d, failed %d", s.Completed, s.Skipped, s.Failed))
	if s.Failed > 0 {
		for i := range s.Results {
			if s.Results[i].Status == utils.StatusFailed {
				output.PrintDetail(fmt.Sprintf("  failed: %s (%s)", s.Results[i].Item.RelPath, s.Results[i].Reason))
			}
		}
	}
	if len(extractErrs) > 0 {
		output.PrintWarning(fmt.Sprintf("%d task(s) failed extraction", len(extractErrs)))
	}
}
