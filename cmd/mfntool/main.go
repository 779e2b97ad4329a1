// mfntool computes most-favored-nation reference prices from a
// multi-country price panel.
//
// Usage:
//
//	mfntool process [--refresh] [--add-market australia] [--format json]
//	mfntool gtn --gtn france=0.3 --format csv
//	mfntool estimate --price germany=100 --fx germany=1.1 --ppp germany=0.8
//	mfntool unroll --input aggregated.json
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"mfntool/internal/model"
)

// Exit codes
const (
	ExitSuccess        = 0
	ExitError          = 1
	ExitSchemaError    = 10
	ExitIntegrityError = 11
)

var version = "dev"

func main() {
	envFile := os.Getenv("MFN_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", envFile, err)
		os.Exit(ExitError)
	}

	app := &cli.App{
		Name:    "mfntool",
		Usage:   "MFN reference-price engine for international drug prices",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file",
				EnvVars: []string{"MFN_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Usage:   "Directory holding the price and PPP sheets",
				EnvVars: []string{"MFN_DATA_DIR"},
			},
			&cli.StringFlag{
				Name:    "store",
				Usage:   "Snapshot backend (parquet, postgres, sqlite, memory)",
				EnvVars: []string{"MFN_STORE"},
			},
			&cli.StringFlag{
				Name:    "postgres-url",
				Usage:   "PostgreSQL connection string for the postgres backend",
				EnvVars: []string{"MFN_POSTGRES_URL", "DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"MFN_LOG_LEVEL"},
			},
			&cli.BoolFlag{
				Name:    "log-json",
				Usage:   "Write logs as JSON lines",
				EnvVars: []string{"MFN_LOG_JSON"},
			},
		},
		Before: setupLogging,
		Commands: []*cli.Command{
			processCommand(),
			gtnCommand(),
			estimateCommand(),
			unrollCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error().Err(err).Msg("mfntool failed")
		os.Exit(exitCode(err))
	}
}

func setupLogging(c *cli.Context) error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(c.String("log-level"))
	if err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	zerolog.SetGlobalLevel(level)
	if !c.Bool("log-json") {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return nil
}

func exitCode(err error) int {
	var serr *model.SchemaError
	var die *model.DataIntegrityError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &serr):
		return ExitSchemaError
	case errors.As(err, &die):
		return ExitIntegrityError
	default:
		return ExitError
	}
}
