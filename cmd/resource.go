package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/yuanxie/sed-dl/internal/extractor"
	"github.com/yuanxie/sed-dl/internal/output"
	"github.com/yuanxie/sed-dl/internal/utils"
)

func newCourseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "course [COURSE_ID...]",
		Short: "Download quality course videos and materials by course ID",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runTasks(cmd, idTasks(utils.KindCourse, args))
		},
	}
}

func newClassroomCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "classroom [ACTIVITY_ID...]",
		Aliases: []string{"sync"},
		Short:   "Download sync-classroom lesson materials by activity ID",
		Args:    cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runTasks(cmd, idTasks(utils.KindClassroom, args))
		},
	}
}

func newTextbookCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "textbook [CONTENT_ID...]",
		Short: "Download e-textbook PDFs and companion audio by content ID",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runTasks(cmd, idTasks(utils.KindTextbook, args))
		},
	}
}

// idTasks builds tasks from bare resource IDs, dropping anything that is
// not a UUID.
func idTasks(kind utils.ResourceKind, args []string) []utils.Task {
	var tasks []utils.Task
	for _, id := range args {
		if !extractor.IsResourceID(id) {
			output.PrintWarning(fmt.Sprintf("skipping %s: not a resource ID", id))
			continue
		}
		tasks = append(tasks, utils.Task{Input: id, Kind: kind, ID: id})
	}
	return tasks
}
