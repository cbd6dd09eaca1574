package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/yuanxie/sed-dl/internal/output"
	"github.com/yuanxie/sed-dl/internal/utils"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [DIR]",
		Short: "Remove leftover partial downloads under a directory",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			dir := outputDir
			if len(args) > 0 {
				dir = args[0]
			}
			removed, err := utils.CleanPartials(dir)
			if err != nil {
				output.PrintError(fmt.Sprintf("cleaning %s: %v", dir, err))
				os.Exit(1)
			}
			output.PrintSuccess(fmt.Sprintf("removed %d partial file(s) from %s", removed, dir))
		},
	}
}
