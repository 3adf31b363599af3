package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bptreedb/pkg/index"
)

var dumpModeFlag string

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the whole tree in one of three diagnostic formats",
	RunE: func(cmd *cobra.Command, args []string) error {
		ix, dev, err := openExisting()
		if err != nil {
			return err
		}
		defer dev.Close()

		mode, err := parseDisplayMode(dumpModeFlag)
		if err != nil {
			return err
		}
		return ix.Display(os.Stdout, mode)
	},
}

func parseDisplayMode(s string) (index.DisplayMode, error) {
	switch s {
	case "depth":
		return index.DisplayDepth, nil
	case "dot":
		return index.DisplayDot, nil
	case "sorted":
		return index.DisplaySortedKeyValue, nil
	default:
		return 0, fmt.Errorf("--mode: unknown mode %q (want depth, dot, or sorted)", s)
	}
}

func init() {
	dumpCmd.Flags().StringVar(&dumpModeFlag, "mode", "depth", "dump format: depth, dot, or sorted")
}
