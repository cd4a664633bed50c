// Package cli is the selectorgen command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/StormyCloudInc/selector-vanitygen/internal/config"
	"github.com/StormyCloudInc/selector-vanitygen/internal/logging"
	"github.com/StormyCloudInc/selector-vanitygen/internal/updater"
)

// app is the state shared by every command of one invocation.
type app struct {
	v          *viper.Viper
	configPath string

	cfg *config.Config
	log *logrus.Logger

	stdout io.Writer
	stderr io.Writer
}

// Execute runs the command line and returns the process exit status.
func Execute() int {
	updater.Cleanup()
	return Run(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
}

// Run executes args against fresh command state. Results go to stdout,
// logs and errors to stderr.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{v: config.NewViper(), stdout: stdout, stderr: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "selectorgen",
		Short: "Search for function signatures with a chosen 4-byte selector",
		Long: `selectorgen finds a nonce for a message template so that the first four
bytes of the message's Keccak-256 digest equal a target selector.

The template must contain the placeholder 00000000 exactly once. It is
replaced by two hex characters of an outer nonce chosen by the host and six
hex characters of an inner nonce tested in parallel on the compute device.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default $UserConfigDir/selector-vanitygen/config.yaml)")
	pf.String("backend", "cpu", "compute backend: cpu or opencl")
	pf.Int("workers", 0, "cpu backend goroutines (0 = one per logical CPU)")
	pf.String("log-level", "info", "log level: debug, info, warn, error, quiet")
	pf.String("log-format", "text", "log format: text or json")
	pf.StringP("output", "o", "text", "result format: text, json or yaml")
	pf.String("store", "", "solution ledger path (default in the user config directory)")

	a.v.BindPFlag(config.KeyBackend, pf.Lookup("backend"))
	a.v.BindPFlag(config.KeyWorkers, pf.Lookup("workers"))
	a.v.BindPFlag(config.KeyLogLevel, pf.Lookup("log-level"))
	a.v.BindPFlag(config.KeyLogFormat, pf.Lookup("log-format"))
	a.v.BindPFlag(config.KeyOutput, pf.Lookup("output"))
	a.v.BindPFlag(config.KeyStorePath, pf.Lookup("store"))

	root.AddCommand(
		a.searchCmd(),
		a.devicesCmd(),
		a.verifyCmd(),
		a.historyCmd(),
		a.configCmd(),
		a.versionCmd(),
		a.updateCmd(),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.v, a.configPath)
	if err != nil {
		return err
	}
	log, err := logging.NewWithOutput(a.stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, log
	if f := cfg.LoadedFrom(); f != "" {
		log.WithField("file", f).Debug("config loaded")
	}
	return nil
}
