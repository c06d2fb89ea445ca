package main

import (
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/crypticpy/Grantscope-2-sub004/config"
	"github.com/crypticpy/Grantscope-2-sub004/navigation"
	"github.com/crypticpy/Grantscope-2-sub004/remote"
	"github.com/crypticpy/Grantscope-2-sub004/tui"
)

type boardOptions struct {
	configPath string
	logFile    string
}

func newBoardCommand() *cobra.Command {
	opts := &boardOptions{}
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Open the board in the terminal",
		Long: `Open the board of the configured user in the terminal.

Settings come from the YAML file given with --config, then from the
environment (API_BASE, API_BEARER, API_USER, TEST_JWT_SECRET, POLL_INTERVAL,
UNDO_WINDOW, DEBOUNCE_THRESHOLD, ...).

Example:
  grantscope board --config board.yaml --log-file board.log`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBoard(opts)
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "board.yaml", "path to the client config file")
	cmd.Flags().StringVar(&opts.logFile, "log-file", "", "write logs to this file instead of discarding them")
	return cmd
}

func runBoard(opts *boardOptions) error {
	cfg, err := config.LoadClient(opts.configPath)
	if err != nil {
		return err
	}

	logger := log.New()
	logger.SetLevel(log.GetLevel())
	logger.SetOutput(io.Discard)
	if opts.logFile != "" {
		f, err := os.OpenFile(opts.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logger.SetOutput(f)
		logger.SetFormatter(&log.JSONFormatter{})
	}

	bearer := cfg.Bearer
	if bearer == "" && cfg.DevSecret != "" {
		bearer, err = remote.DevToken(cfg.UserID, []byte(cfg.DevSecret), 0)
		if err != nil {
			return fmt.Errorf("dev token: %w", err)
		}
		logger.WithField("user", cfg.UserID).Info("using development token")
	}
	client := remote.New(cfg.APIBase, bearer, cfg.RequestTimeout)

	model := tui.New(tui.Deps{
		Service: client,
		Logger:  logger,
		Settings: tui.Settings{
			RequestTimeout:    cfg.RequestTimeout,
			PollInterval:      cfg.PollInterval,
			PollMaxAttempts:   cfg.PollMaxAttempts,
			UndoWindow:        cfg.UndoWindow,
			DebounceThreshold: cfg.DebounceThreshold,
			Keymap:            cfg.Keymap(),
			Thresholds:        navigation.Thresholds{Offset: cfg.SwipeOffset, Velocity: cfg.SwipeVelocity},
		},
	})
	defer model.Close()

	_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion()).Run()
	return err
}
