package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/yuanxie/sed-dl/internal/config"
	"github.com/yuanxie/sed-dl/internal/extractor"
	"github.com/yuanxie/sed-dl/internal/output"
	"github.com/yuanxie/sed-dl/internal/utils"
)

func newURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "url [URL...]",
		Short: "Download resources by their smartedu page URL",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.LoadOrCreate()
			if err != nil {
				output.PrintError(err.Error())
				return
			}
			var tasks []utils.Task
			for _, raw := range args {
				kind, id, err := extractor.ParseResourceURL(cfg, raw)
				if err != nil {
					output.PrintWarning(fmt.Sprintf("skipping %s: %v", raw, err))
					continue
				}
				tasks = append(tasks, utils.Task{Input: raw, Kind: kind, ID: id})
			}
			runTasks(cmd, tasks)
		},
	}
}
