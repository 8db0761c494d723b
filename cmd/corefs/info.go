package main

import (
	"github.com/spf13/cobra"

	"github.com/corefs/corefs/pkg/corefs"
	"github.com/corefs/corefs/pkg/wire"
)

var infoCmd = &cobra.Command{
	Use:   "info <image>",
	Short: "Mount an image and print its usage summary",
	Args:  cobra.ExactArgs(1),
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

		info, err := c.Info()
		if err != nil {
			return err
		}

		printf("image:        %s", path)
		printf("total blocks: %d (%d bytes)", info.TotalBlocks, int64(info.TotalBlocks)*int64(info.BlockSize))
		printf("used blocks:  %d", info.UsedBlocks)
		printf("free blocks:  %d", info.FreeBlocks)
		printf("block size:   %d", info.BlockSize)
		printf("mount count:  %d", info.MountCount)

		return nil

	},
}
