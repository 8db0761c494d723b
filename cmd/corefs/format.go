package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/corefs/corefs/pkg/corefs"
	"github.com/corefs/corefs/pkg/wire"
)

var flagForce bool

var formatCmd = &cobra.Command{
	Use:   "format <image>",
	Short: "Create and format a new CoreFS image file",
	Long: `Creates a new, fully-erased image file of the requested size and formats
it as a fresh CoreFS filesystem.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {

		sizeStr, err := cmd.Flags().GetString("size")
		if err != nil {
			return err
		}
		if sizeStr == "" {
			sizeStr = viper.GetString(defaultSizeKey)
		}

		size, err := parseSize(sizeStr)
		if err != nil {
			return err
		}

		path := args[0]

		img, err := createImage(path, size, flagForce)
		if err != nil {
			return err
		}
		defer img.Close()

		totalBlocks := uint32(size / wire.BlockSize)

		bar := log.NewProgress("formatting", "blocks", int64(totalBlocks))
		defer bar.Finish(true)

		if err := corefs.Format(img, totalBlocks, size, img.Address(), log); err != nil {
			return err
		}
		bar.Increment(int64(totalBlocks))

		log.Printf("formatted %s: %d blocks (%d bytes)", path, totalBlocks, size)

		return nil

	},
}

func init() {
	formatCmd.Flags().String("size", "", "image size, e.g. 2MB (default from config, else 2MB)")
	formatCmd.Flags().BoolVarP(&flagForce, "force", "f", false, "overwrite an existing image file")
}
