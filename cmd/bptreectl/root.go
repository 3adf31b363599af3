package main

import (
	"encoding/hex"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bptreedb/pkg/alloc"
	"bptreedb/pkg/blockio"
	"bptreedb/pkg/index"
)

var log = logrus.WithField("component", "bptreectl")

var rootCmd = &cobra.Command{
	Use:   "bptreectl",
	Short: "Inspect and mutate a disk-resident B+Tree index file",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetBool("verbose") {
			logrus.SetLevel(logrus.DebugLevel)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("file", "index.bpt", "path to the index file")
	flags.Uint32("key-size", 4, "fixed key width in bytes")
	flags.Uint32("value-size", 4, "fixed value width in bytes")
	flags.Uint32("block-size", 4096, "physical block size in bytes")
	flags.Bool("verbose", false, "enable debug logging")
	flags.String("config", "", "path to a bptreectl.yaml config file (default: ./bptreectl.yaml)")

	_ = viper.BindPFlag("file", flags.Lookup("file"))
	_ = viper.BindPFlag("key-size", flags.Lookup("key-size"))
	_ = viper.BindPFlag("value-size", flags.Lookup("value-size"))
	_ = viper.BindPFlag("block-size", flags.Lookup("block-size"))
	_ = viper.BindPFlag("verbose", flags.Lookup("verbose"))

	rootCmd.AddCommand(attachCmd, insertCmd, getCmd, updateCmd, dumpCmd, checkCmd)
}

// initConfig loads defaults from bptreectl.yaml (or the file named by
// --config) and from BPTREECTL_-prefixed environment variables, with
// flags taking precedence per viper's usual layering.
func initConfig() {
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("bptreectl")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}
	viper.SetEnvPrefix("BPTREECTL")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.WithError(err).Warn("failed to read config file")
		}
	}
}

// keySize/valueSize/blockSize/filePath read the layered viper config.
func keySize() int     { return viper.GetInt("key-size") }
func valueSize() int   { return viper.GetInt("value-size") }
func blockSize() int   { return viper.GetInt("block-size") }
func filePath() string { return viper.GetString("file") }

// openExisting attaches to an already-created index file, reading its
// key/value sizes from the on-disk superblock header rather than
// trusting the flags (the file's actual key/value sizes are
// authoritative once created). The block size still comes from
// --block-size, since the device needs it to read the superblock.
func openExisting() (*index.Index, *blockio.FileDevice, error) {
	dev, err := blockio.OpenFileDevice(filePath(), blockSize())
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", filePath(), err)
	}
	a, err := alloc.Open(dev)
	if err != nil {
		_ = dev.Close()
		return nil, nil, err
	}
	sb := a.Superblock()
	ix := index.New(sb.KeySize(), sb.ValueSize(), dev)
	if err := ix.Attach(0, false); err != nil {
		_ = dev.Close()
		return nil, nil, err
	}
	return ix, dev, nil
}

// decodeFixed hex-decodes s and errors unless it's exactly n bytes.
func decodeFixed(flag, s string, n int) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", flag, err)
	}
	if len(b) != n {
		return nil, fmt.Errorf("--%s: decoded to %d bytes, want %d", flag, len(b), n)
	}
	return b, nil
}
