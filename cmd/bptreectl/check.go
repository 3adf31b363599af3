package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run the breadth-first structural sanity check over the whole tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		ix, dev, err := openExisting()
		if err != nil {
			return err
		}
		defer dev.Close()

		if err := ix.SanityCheck(); err != nil {
			return err
		}
		fmt.Println("sane")
		return nil
	},
}
