package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/yuanxie/sed-dl/internal/config"
	"github.com/yuanxie/sed-dl/internal/extractor"
	"github.com/yuanxie/sed-dl/internal/output"
	"github.com/yuanxie/sed-dl/internal/scheduler"
	"github.com/yuanxie/sed-dl/internal/utils"
)

func newBatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch [YAML_FILE]",
		Short: "Process multiple downloads from a YAML file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			data, err := os.ReadFile(args[0])
			if err != nil {
				output.PrintError(fmt.Sprintf("reading batch file: %v", err))
				os.Exit(1)
			}
			var entries []utils.BatchEntry
			if err := yaml.Unmarshal(data, &entries); err != nil {
				output.PrintError(fmt.Sprintf("parsing batch file: %v", err))
				os.Exit(1)
			}
			cfg, err := config.LoadOrCreate()
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			groups := groupBatchTasks(cfg, entries)
			if len(groups) == 0 {
				output.PrintError("no valid entries in the batch file")
				os.Exit(1)
			}
			rt, err := newRuntime()
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			failed := false
			for _, dir := range sortedGroupDirs(groups) {
				opts := rt.options()
				if dir != "" {
					opts.OutputRoot = dir
				}
				summary, err := scheduler.Run(cmd.Context(), groups[dir], opts)
				if err != nil {
					output.PrintError(err.Error())
					failed = true
					continue
				}
				if summary.Failures() {
					failed = true
				}
			}
			if failed {
				os.Exit(1)
			}
		},
	}
}

// groupBatchTasks resolves each entry to a task and groups the tasks by
// their per-entry output override so each group runs against one root.
func groupBatchTasks(cfg *config.External, entries []utils.BatchEntry) map[string][]utils.Task {
	groups := make(map[string][]utils.Task)
	for _, entry := range entries {
		if entry.ID == "" {
			output.PrintWarning("skipping batch entry with no id")
			continue
		}
		task, err := batchTask(cfg, entry)
		if err != nil {
			output.PrintWarning(fmt.Sprintf("skipping %s: %v", entry.ID, err))
			continue
		}
		groups[entry.Output] = append(groups[entry.Output], task)
	}
	return groups
}

// sortedGroupDirs fixes the group run order so repeated runs of the same
// batch file process output roots in the same sequence.
func sortedGroupDirs(groups map[string][]utils.Task) []string {
	dirs := make([]string, 0, len(groups))
	for dir := range groups {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs
}

func batchTask(cfg *config.External, entry utils.BatchEntry) (utils.Task, error) {
	if strings.Contains(entry.ID, "://") {
		kind, id, err := extractor.ParseResourceURL(cfg, entry.ID)
		if err != nil {
			return utils.Task{}, err
		}
		return utils.Task{Input: entry.ID, Kind: kind, ID: id}, nil
	}
	if !extractor.IsResourceID(entry.ID) {
		return utils.Task{}, fmt.Errorf("not a resource ID or URL")
	}
	kind, err := kindFromString(entry.Type)
	if err != nil {
		return utils.Task{}, err
	}
	return utils.Task{Input: entry.ID, Kind: kind, ID: entry.ID}, nil
}

func kindFromString(s string) (utils.ResourceKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "course":
		return utils.KindCourse, nil
	case "classroom", "sync", "sync-classroom":
		return utils.KindClassroom, nil
	case "textbook":
		return utils.KindTextbook, nil
	}
	return "", fmt.Errorf("unknown resource type %q", s)
}
