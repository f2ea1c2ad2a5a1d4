package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shin315/fetchopt/internal/fileopt"
	"github.com/shin315/fetchopt/internal/output"
	"github.com/shin315/fetchopt/internal/utils"
)

var cleanMaxAge time.Duration

func newCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean [dir]",
		Short: "Clean up temporary download files",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			disk := fileopt.NewDiskManager(0)
			reclaimed, err := disk.CleanupTempFiles(dir, cleanMaxAge)
			if err != nil {
				output.PrintError(fmt.Sprintf("Cleanup failed: %v", err))
				return
			}
			output.PrintSuccess(fmt.Sprintf("Reclaimed %s of temporary files", utils.FormatBytes(uint64(reclaimed))))
		},
	}
	cmd.Flags().DurationVar(&cleanMaxAge, "max-age", 0, "Only delete temp files older than this (default: all)")
	return cmd
}

func init() {
	rootCmd.AddCommand(newCleanCmd())
}
