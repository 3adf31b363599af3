package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bptreedb/pkg/blockio"
	"bptreedb/pkg/index"
)

var attachNumBlocks uint32

var attachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Create a new index file and lay down its superblock, root, and freelist",
	RunE: func(cmd *cobra.Command, args []string) error {
		dev, err := blockio.CreateFileDevice(filePath(), blockSize(), attachNumBlocks)
		if err != nil {
			return err
		}
		defer dev.Close()

		ix := index.New(keySize(), valueSize(), dev)
		if err := ix.Attach(0, true); err != nil {
			return err
		}
		if err := ix.Detach(); err != nil {
			return err
		}

		fmt.Printf("created %s: %d blocks of %d bytes, key_size=%d value_size=%d\n",
			filePath(), attachNumBlocks, blockSize(), keySize(), valueSize())
		return nil
	},
}

func init() {
	attachCmd.Flags().Uint32Var(&attachNumBlocks, "num-blocks", 1024, "total number of blocks to preallocate")
}
