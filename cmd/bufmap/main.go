package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/bufmap/config"
	"github.com/wippyai/bufmap/memory"
	"github.com/wippyai/bufmap/resource"
	"github.com/wippyai/bufmap/table"
)

var version = "0.3.0"

// cmdRoot is the base command when no other command has been specified.
var cmdRoot = &cobra.Command{
	Use:   "bufmap",
	Short: "Draw buffer to GPU buffer map",
	Long: `
bufmap maps draw buffer allocations to the GPU buffers that shadow them.
Draw buffers live in an allocator over linear memory (Go heap or a wazero
instance); GPU buffers come from a buffer pool. Every command builds that
stack from the configuration file and tears it down on exit.
`,
	Version:           version,
	SilenceErrors:     true,
	SilenceUsage:      true,
	DisableAutoGenTag: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
		os.Exit(0)
	},
}

// GlobalOptions hold options shared by all commands.
type GlobalOptions struct {
	ConfigFile string
	LogLevel   string

	cfg config.Config
	log *zap.Logger
}

var globalOptions GlobalOptions

func init() {
	f := cmdRoot.PersistentFlags()
	f.StringVarP(&globalOptions.ConfigFile, "config", "c", "", "YAML configuration `file`")
	f.StringVar(&globalOptions.LogLevel, "log-level", "", "override the configured log level")
}

// setup loads the configuration and installs the logger in every package.
func setup() error {
	cfg := config.Default()
	if globalOptions.ConfigFile != "" {
		var err error
		if cfg, err = config.Load(globalOptions.ConfigFile); err != nil {
			return err
		}
	}
	if globalOptions.LogLevel != "" {
		cfg.Log.Level = globalOptions.LogLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	log, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(log)
	table.SetLogger(log.Named("table"))
	memory.SetLogger(log.Named("memory"))
	resource.SetLogger(log.Named("resource"))

	globalOptions.cfg = cfg
	globalOptions.log = log
	return nil
}

func main() {
	err := cmdRoot.Execute()
	if globalOptions.log != nil {
		_ = globalOptions.log.Sync()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
