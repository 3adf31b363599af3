package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"bptreedb/pkg/index"
)

var updateKeyFlag, updateValueFlag string

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Overwrite the value stored at an existing hex-encoded key",
	RunE: func(cmd *cobra.Command, args []string) error {
		ix, dev, err := openExisting()
		if err != nil {
			return err
		}
		defer dev.Close()

		key, err := decodeFixed("key", updateKeyFlag, ix.KeySize())
		if err != nil {
			return err
		}
		val, err := decodeFixed("value", updateValueFlag, ix.ValueSize())
		if err != nil {
			return err
		}

		err = ix.Update(key, val)
		if errors.Is(err, index.ErrNotFound) {
			fmt.Println("not found")
			return nil
		}
		if err != nil {
			return err
		}
		if err := ix.Detach(); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	},
}

func init() {
	updateCmd.Flags().StringVar(&updateKeyFlag, "key", "", "hex-encoded key")
	updateCmd.Flags().StringVar(&updateValueFlag, "value", "", "hex-encoded replacement value")
	_ = updateCmd.MarkFlagRequired("key")
	_ = updateCmd.MarkFlagRequired("value")
}
