package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"codegen/app/config"
)

type rootOptions struct {
	secretsFile string
	envFile     string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "codegen",
		Short:         "Generate Python code from plain-language descriptions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	secretsFile := config.DefaultSecretsFile
	if v := os.Getenv("SECRETS_FILE"); v != "" {
		secretsFile = v
	}
	root.PersistentFlags().StringVar(&opts.secretsFile, "secrets", secretsFile, "path to the TOML secrets file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded into the environment when present")

	serve := newServeCmd(opts)
	root.AddCommand(serve)
	root.AddCommand(newGenerateCmd(opts))

	// Bare "codegen" serves.
	root.Args = cobra.NoArgs
	root.RunE = serve.RunE

	return root
}

// load reads the dotenv file, if any, and then the configuration.
func (o *rootOptions) load() (*config.Config, error) {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", o.envFile, err)
		}
	}
	return config.Load(o.secretsFile)
}

func newLogger(cfg config.LogConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if strings.EqualFold(cfg.Format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
