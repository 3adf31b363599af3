package main

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"bptreedb/pkg/index"
)

var getKeyFlag string

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Look up a key (hex-encoded) and print its value",
	RunE: func(cmd *cobra.Command, args []string) error {
		ix, dev, err := openExisting()
		if err != nil {
			return err
		}
		defer dev.Close()

		key, err := decodeFixed("key", getKeyFlag, ix.KeySize())
		if err != nil {
			return err
		}

		val, err := ix.Lookup(key)
		if errors.Is(err, index.ErrNotFound) {
			fmt.Println("not found")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Println(hex.EncodeToString(val))
		return nil
	},
}

func init() {
	getCmd.Flags().StringVar(&getKeyFlag, "key", "", "hex-encoded key to look up")
	_ = getCmd.MarkFlagRequired("key")
}
