package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/genricoloni/nowplaying/internal/domain"
	"github.com/genricoloni/nowplaying/internal/engine"
	"github.com/genricoloni/nowplaying/internal/observer"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

const commandTimeout = 10 * time.Second

var (
	cfgFile   string
	stateOnly bool

	// engineOverrides is applied on top of coreOptions for one-shot commands
	engineOverrides = fx.Options()
)

var rootCmd = &cobra.Command{
	Use:   "nowplaying",
	Short: "Keep track of what Spotify is playing",
	Long: `nowplaying polls the music player, keeps the current track, playback
position and artwork in sync, and mirrors them to the terminal and to an
artwork file. Subcommands control playback directly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ~/.config/nowplaying/config.toml)")

	rootCmd.AddCommand(
		watchCmd,
		playerCmd("prev", "Skip to the previous track", (*engine.Engine).Previous),
		playerCmd("next", "Skip to the next track", (*engine.Engine).Next),
		playerCmd("toggle", "Toggle play/pause", (*engine.Engine).PlayPause),
		seekCmd,
		volumeCmd,
		statusCmd,
		checkCmd,
	)
	statusCmd.Flags().BoolVar(&stateOnly, "state", false, "print only the playback state (playing, paused or stopped)")

	volumeCmd.AddCommand(
		playerCmd("up", "Raise the volume by one step", (*engine.Engine).VolumeUp),
		playerCmd("down", "Lower the volume by one step", (*engine.Engine).VolumeDown),
	)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the sync loop until interrupted (default)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon()
	},
}

var seekCmd = &cobra.Command{
	Use:   "seek <seconds>",
	Short: "Move the playhead to an absolute position",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		seconds, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid position %q: %w", args[0], err)
		}
		return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
			// Load the duration so the position can be clamped
			e.Refresh(ctx)
			return e.Seek(ctx, seconds)
		})
	},
}

var volumeCmd = &cobra.Command{
	Use:   "volume",
	Short: "Change the system volume",
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current track",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
			if stateOnly {
				state, err := e.TransportState(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), strings.ToLower(string(state)))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), observer.FormatLine(e.Poll(ctx)))
			return nil
		})
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the player can be automated",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
			if err := e.CheckAccess(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Player is reachable")
			return nil
		})
	},
}

// playerCmd builds a subcommand forwarding one fire-and-forget engine command
func playerCmd(use, short string, run func(*engine.Engine, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				return run(e, ctx)
			})
		},
	}
}

// withEngine builds the engine without observers or the poll loop, runs fn
// and releases the bridge. Bridge failures are followed by a hint.
func withEngine(cmd *cobra.Command, fn func(ctx context.Context, e *engine.Engine) error) error {
	var e *engine.Engine
	app := fx.New(coreOptions, engineOverrides, fx.NopLogger, fx.Populate(&e))
	if err := app.Err(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() {
		_ = app.Stop(context.Background())
	}()

	err := fn(ctx, e)
	if hint := domain.Suggestion(err); hint != "" {
		cmd.PrintErrln(hint)
	}
	return err
}
