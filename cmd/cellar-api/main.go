package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/MarcoPoloResearchLab/cellar/backend/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cellar-api",
		Short: "Cellar catalog flattening and related-wine service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
		SilenceUsage: true,
	}

	setupFlags(rootCmd)

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server and the job worker",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServer(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "sync-all",
			Short: "Flatten every variant and drain the job queue",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSyncAll(cmd)
			},
		},
		&cobra.Command{
			Use:   "recompute-all",
			Short: "Recompute the related set of every flat variant",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runRecomputeAll(cmd)
			},
		},
		newIssueTokenCommand(),
	)

	return rootCmd
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("hooks-signing-secret", "", "Hook token signing secret (overrides env)")
	cmd.PersistentFlags().String("secondary-locale", defaults.GetString("locale.secondary"), "Locale duplicated into the secondary titles")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "hooks.signing_secret", "hooks-signing-secret")
	bindFlag(cmd, "locale.secondary", "secondary-locale")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runSyncAll(cmd *cobra.Command) error {
	app, err := newApplication()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()
	enqueued, err := app.syncer.EnqueueAll(ctx, app.queue)
	if err != nil {
		return err
	}
	processed, err := app.worker.Drain(ctx)
	if err != nil {
		return err
	}
	app.logger.Info("catalog sync finished", zap.Int("enqueued", enqueued), zap.Int("processed", processed))
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "enqueued %d variants, processed %d jobs\n", enqueued, processed)
	return err
}

func runRecomputeAll(cmd *cobra.Command) error {
	app, err := newApplication()
	if err != nil {
		return err
	}
	defer app.Close()

	computed, err := app.aggregator.ComputeAll(cmd.Context())
	if err != nil {
		return err
	}
	app.logger.Info("related recompute finished", zap.Int("computed", computed))
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "recomputed %d related sets\n", computed)
	return err
}

func newIssueTokenCommand() *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "issue-hook-token",
		Short: "Print a signed hook token for the content store",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			issuer, err := newTokenIssuer(appConfig)
			if err != nil {
				return err
			}
			token, expiresAt, err := issuer.IssueHookToken(cmd.Context(), subject)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n# expires %s\n", token, expiresAt.Format("2006-01-02T15:04:05Z07:00"))
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "content-store", "Subject recorded in the token")
	return cmd
}
