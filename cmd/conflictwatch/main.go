package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/marcin-skalski/conflictwatch/internal/config"
	"github.com/marcin-skalski/conflictwatch/internal/host"
	"github.com/marcin-skalski/conflictwatch/internal/logging"
	"github.com/marcin-skalski/conflictwatch/internal/tui"
	"github.com/marcin-skalski/conflictwatch/internal/work"
)

var version = "dev"

type options struct {
	configPath string
	noTUI      bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			os.Exit(int(exit))
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// exitError ends the process with a status code and no message.
type exitError int

func (e exitError) Error() string {
	return fmt.Sprintf("exit status %d", int(e))
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "conflictwatch",
		Short: "Detect merge conflicts before they happen",
		Long: `conflictwatch mirrors the local git repository to the conflict detection
service and reports conflicts with other branches and pull requests as soon
as the service finds them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd.Context(), opts)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath(), "path to config file")
	cmd.Flags().BoolVar(&opts.noTUI, "no-tui", false, "disable TUI mode")

	cmd.AddCommand(newCheckCmd(opts), newLoginCmd(opts), newVersionCmd())
	return cmd
}

// loadConfig returns defaults when the file does not exist yet.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.NewStore(path, logging.Discard()).Load()
	if errors.Is(err, config.ErrNotFound) {
		return config.Default(), nil
	}
	return cfg, err
}

// startupConfig always returns a usable config. An unreadable file yields
// defaults along with the load error so the agent can wait for a fix.
func startupConfig(path string) (*config.Config, error) {
	cfg, err := loadConfig(path)
	if err != nil {
		return config.Default(), err
	}
	return cfg, nil
}

func runAgent(ctx context.Context, opts *options) error {
	cfg, cfgErr := startupConfig(opts.configPath)

	// Auto-detect TUI capability
	enableTUI := !opts.noTUI && os.Getenv("CONFLICTWATCH_TUI") != "0" &&
		isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())

	logger, err := logging.Setup(logging.Options{File: cfg.LogFile, Level: cfg.Log.Level, Quiet: enableTUI})
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer logger.Close()
	if cfgErr != nil {
		logger.Warn("config invalid, waiting for a fix", "file", opts.configPath, "err", cfgErr)
	}

	store := config.NewStore(opts.configPath, logger.Logger)
	h := host.NewRecorder(host.Options{Interactive: enableTUI, Logger: logger.Logger})
	sup := work.NewSupervisor(work.NewDeps(store, h, logger.Logger, version))

	if err := store.Watch(sup.Reload); err != nil {
		logger.Warn("config watch unavailable, restart to apply changes", "err", err)
	}

	if !enableTUI {
		logger.Info("conflictwatch starting (headless)", "config", opts.configPath)
		return sup.Run(ctx)
	}

	// TUI mode: supervisor in background, TUI in foreground
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		logger.Info("conflictwatch starting in background", "config", opts.configPath)
		done <- sup.Run(ctx)
	}()

	p := tea.NewProgram(tui.NewModel(h, cfg.TUI.RefreshInterval), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		cancel()
		<-done
		return fmt.Errorf("TUI error: %w", err)
	}
	cancel()
	return <-done
}

func newCheckCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Fetch conflicts once and exit with status 1 if there are any",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			logger, err := logging.Setup(logging.Options{File: cfg.LogFile, Level: cfg.Log.Level, Quiet: true})
			if err != nil {
				return fmt.Errorf("setup logger: %w", err)
			}
			defer logger.Close()

			store := config.NewStore(opts.configPath, logger.Logger)
			h := host.NewRecorder(host.Options{Logger: logger.Logger})
			report, err := work.Check(cmd.Context(), work.NewDeps(store, h, logger.Logger, version))
			if err != nil {
				if errors.Is(err, work.ErrNoToken) {
					return fmt.Errorf("%w, run: conflictwatch login --token <token>", err)
				}
				return err
			}

			out := cmd.OutOrStdout()
			for _, r := range report.Repos {
				state := "enabled"
				if !r.Enabled {
					state = "disabled"
				}
				fmt.Fprintf(out, "%s (%s)\n", r.FullName, state)
			}
			fmt.Fprintln(out, tui.StatusText(report.Status.Text))
			if !report.Alert.AnyConflicts {
				return nil
			}
			fmt.Fprintln(out, report.Alert.Message)
			return exitError(1)
		},
	}
}

func newLoginCmd(opts *options) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				return errors.New("--token is required")
			}
			store := config.NewStore(opts.configPath, logging.Discard())
			if err := store.Set("token", token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "token saved to %s\n", store.Path())
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "access token from the web app")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
