// Command bptreectl is a small driver over the disk-resident B+Tree
// core in pkg/index: it attaches to (or creates) a single index file
// and runs one subcommand against it per invocation.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
