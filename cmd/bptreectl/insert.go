package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var insertKeyFlag, insertValueFlag string

var insertCmd = &cobra.Command{
	Use:   "insert",
	Short: "Insert (or overwrite) a hex-encoded key/value pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		ix, dev, err := openExisting()
		if err != nil {
			return err
		}
		defer dev.Close()

		key, err := decodeFixed("key", insertKeyFlag, ix.KeySize())
		if err != nil {
			return err
		}
		val, err := decodeFixed("value", insertValueFlag, ix.ValueSize())
		if err != nil {
			return err
		}

		if err := ix.Insert(key, val); err != nil {
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
	insertCmd.Flags().StringVar(&insertKeyFlag, "key", "", "hex-encoded key")
	insertCmd.Flags().StringVar(&insertValueFlag, "value", "", "hex-encoded value")
	_ = insertCmd.MarkFlagRequired("key")
	_ = insertCmd.MarkFlagRequired("value")
}
