package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tukar/pkg/core"
	"tukar/pkg/exchange"
	"tukar/pkg/venues"
)

var (
	container *exchange.Container
	logger    = zerolog.Nop()
)

func init() {
	rootCmd.PersistentFlags().String("config", "venues.yaml", "venue configuration file")
	rootCmd.PersistentFlags().String("env", "", "dotenv file with credentials referenced by the config (default .env when present)")
	rootCmd.PersistentFlags().String("log-level", "", "override the config's log level")
	rootCmd.PersistentFlags().Duration("timeout", 30*time.Second, "deadline for the whole command")
}

var rootCmd = &cobra.Command{
	Use:   "tukar",
	Short: "query crypto exchanges through one unified API",

	// SilenceUsage is an option to silence usage when an error occurs.
	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadEnv(cmd); err != nil {
			return err
		}

		path, err := cmd.Flags().GetString("config")
		if err != nil {
			return err
		}
		file, err := core.LoadFile(path)
		if err != nil {
			return err
		}

		level, err := cmd.Flags().GetString("log-level")
		if err != nil {
			return err
		}
		if level == "" {
			level = file.LogLevel
		}
		if logger, err = newLogger(level); err != nil {
			return err
		}

		container, err = venues.Load(file, logger)
		return err
	},

	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if container == nil {
			return nil
		}
		return container.Close()
	},
}

// loadEnv reads the --env file, or .env when the flag is unset and the
// file exists. Variables already in the environment win.
func loadEnv(cmd *cobra.Command) error {
	path, err := cmd.Flags().GetString("env")
	if err != nil {
		return err
	}
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func newLogger(level string) (zerolog.Logger, error) {
	lvl := zerolog.InfoLevel
	if level != "" {
		var err error
		if lvl, err = zerolog.ParseLevel(level); err != nil {
			return zerolog.Nop(), fmt.Errorf("parse log level: %w", err)
		}
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().
		Timestamp().
		Logger(), nil
}
