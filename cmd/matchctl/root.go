package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"advising-workers/internal/app"
	"advising-workers/internal/common/config"
	"advising-workers/internal/common/logger"
)

const name = "matchctl"

// Actual version can be specified in build command.
var version = "unknown"

type globalFlags struct {
	configFile string
	debug      bool
	json       bool
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           name,
		Short:         "matchctl queries universities and manages shortlists from the command line",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&flags.configFile, "config", "", "a config file (default is configs/config.yaml)")
	root.PersistentFlags().BoolVarP(&flags.debug, "debug", "d", false, "verbose/debug output")
	root.PersistentFlags().BoolVarP(&flags.json, "json", "j", false, "json format for logging")

	root.AddCommand(
		newQueryCmd(flags),
		newScoreCmd(flags),
		newShortlistCmd(flags),
		newSyncTasksCmd(flags),
		newReindexCmd(flags),
		newRegistryCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version: %s\n", name, version)
		},
	}
}

// session is what a command needs to run one operation.
type session struct {
	cfg      *config.Config
	services *app.Services
	log      logger.Logger
	zapLog   *zap.Logger
}

func (s *session) Close() {
	s.services.Close()
	_ = s.zapLog.Sync()
}

func openSession(ctx context.Context, flags *globalFlags) (*session, error) {
	var (
		cfg *config.Config
		err error
	)
	if flags.configFile != "" {
		cfg, err = config.LoadFromFile(flags.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level, format := "warn", "console"
	if flags.debug {
		level = "debug"
	}
	if flags.json {
		format = "json"
	}
	zapLog := logger.New(level, format)

	services, err := app.Connect(ctx, cfg, app.Options{Attempts: 1, Migrate: false}, zapLog)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, services: services, log: logger.NewZapAdapter(zapLog), zapLog: zapLog}, nil
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
