package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/corefs/corefs/pkg/corefs"
	"github.com/corefs/corefs/pkg/wire"
)

var fsckCmd = &cobra.Command{
	Use:   "fsck <image>",
	Short: "Mount an image (running crash recovery if needed) and run the on-demand consistency check",
	Long: `Mounts the image -- triggering a recovery scan if the prior unmount wasn't
clean -- then runs the stronger on-demand check() pass over the superblock
and wear table.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {

		path := args[0]

		img, err := openImage(path)
		if err != nil {
			return err
		}
		defer img.Close()

		totalBlocks := uint32(img.Size() / wire.BlockSize)

		c := corefs.New()
		if err := c.Mount(img, totalBlocks, wallClock, log); err != nil {
			return err
		}
		defer c.Unmount()

		bar := log.NewProgress("checking", "blocks", int64(totalBlocks))
		report, err := c.Check()
		bar.Finish(err == nil)
		if err != nil {
			return err
		}

		printf("superblock: %s", okLabel(report.SuperblockOK))
		printf("wear: min=%d max=%d avg=%d healthy=%s",
			report.WearHealth.Min, report.WearHealth.Max, report.WearHealth.Avg,
			okLabel(!report.WearHealth.Unhealthy))

		if !report.SuperblockOK || report.WearHealth.Unhealthy {
			return fmt.Errorf("fsck: consistency problems detected")
		}

		return nil

	},
}

func okLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "FAILED"
}
