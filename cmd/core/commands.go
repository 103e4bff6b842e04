package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/smarttourjo/core/internal/app"
	"github.com/smarttourjo/core/internal/config"
	apperrors "github.com/smarttourjo/core/internal/errors"
)

type rootFlags struct {
	configPath string
	dataDir    string
	logLevel   string
	apiURL     string

	appOpts []app.Option
}

func newRootCmd(opts ...app.Option) *cobra.Command {
	flags := &rootFlags{appOpts: opts}

	root := &cobra.Command{
		Use:           "smarttour-core",
		Short:         "SmartTour offline core",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "path to a YAML config file")
	pf.StringVar(&flags.dataDir, "data-dir", "", "data directory (overrides config)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level (overrides config)")
	pf.StringVar(&flags.apiURL, "api-url", "", "API base URL without prefix (overrides config)")

	root.AddCommand(
		newVersionCmd(),
		newSyncCmd(flags),
		newPendingCmd(flags),
		newStatsCmd(flags),
		newMaintainCmd(flags),
		newDownloadCmd(flags),
		newClearCmd(flags),
		newLoginCmd(flags),
		newLogoutCmd(flags),
		newRefreshCmd(flags),
	)
	return root
}

// openApp loads configuration, applies flag overrides and wires the core.
func openApp(cmd *cobra.Command, flags *rootFlags) (*app.App, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.dataDir != "" {
		cfg.DataDir = flags.dataDir
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.apiURL != "" {
		cfg.API.BaseURL = flags.apiURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := append([]app.Option{app.WithLogOutput(cmd.ErrOrStderr())}, flags.appOpts...)
	return app.New(cfg, opts...)
}

// withApp runs fn against a freshly wired core and closes it afterwards.
func withApp(flags *rootFlags, fn func(cmd *cobra.Command, a *app.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) (err error) {
		a, err := openApp(cmd, flags)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := a.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		return fn(cmd, a)
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "SmartTour Core v%s\n", Version)
		},
	}
}

func newSyncCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay pending offline actions against the API",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(cmd *cobra.Command, a *app.App) error {
			result, err := a.Engine.SyncPending(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		}),
	}
}

func newPendingCmd(flags *rootFlags) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List queued offline actions",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(cmd *cobra.Command, a *app.App) error {
			rows, err := a.Queue.Rows(cmd.Context(), all)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rows)
		}),
	}
	cmd.Flags().BoolVar(&all, "all", false, "include synced actions")
	return cmd
}

func newStatsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show offline storage statistics",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(cmd *cobra.Command, a *app.App) error {
			stats, err := a.Engine.Stats(cmd.Context())
			if stats == nil {
				return err
			}
			// Partial stats are still printed
			if perr := printJSON(cmd.OutOrStdout(), stats); perr != nil {
				return perr
			}
			return err
		}),
	}
}

func newMaintainCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "maintain",
		Short: "Drop expired cache, prune synced actions and vacuum",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(cmd *cobra.Command, a *app.App) error {
			if err := a.Engine.PerformMaintenance(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "maintenance completed")
			return nil
		}),
	}
}

func newDownloadCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "download",
		Short: "Download destinations, itineraries and profile for offline use",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(cmd *cobra.Command, a *app.App) error {
			if err := a.Engine.DownloadOfflineData(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "offline data downloaded")
			return nil
		}),
	}
}

func newClearCmd(flags *rootFlags) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete cached data and every queued action",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(cmd *cobra.Command, a *app.App) error {
			if !yes {
				return apperrors.New(apperrors.ErrInvalid, "refusing to clear offline data without --yes")
			}
			if err := a.Engine.ClearOfflineData(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "offline data cleared")
			return nil
		}),
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}

func newLoginCmd(flags *rootFlags) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Long:  "Sign in through Supabase when it is configured, otherwise through the API.",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(cmd *cobra.Command, a *app.App) error {
			user, err := a.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			if user != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s\n", user.Email)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signed in")
			return nil
		}),
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newLogoutCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and remove the stored session",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(cmd *cobra.Command, a *app.App) error {
			if err := a.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		}),
	}
}

func newRefreshCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the stored session through Supabase",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(cmd *cobra.Command, a *app.App) error {
			tok, err := a.RefreshSession(cmd.Context())
			if err != nil {
				return err
			}
			if exp, ok := tok.ExpiresAt(); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "session refreshed, expires %s\n", exp.UTC().Format(time.RFC3339))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "session refreshed")
			return nil
		}),
	}
}
