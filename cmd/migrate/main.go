package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"promoreel/internal/infra"
)

func main() {
	var (
		dirFlag   string
		stepsFlag int
	)
	flag.StringVar(&dirFlag, "dir", "migrations", "directory holding the migration files")
	flag.IntVar(&stepsFlag, "steps", 1, "number of migrations to revert with down")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: migrate [flags] up|down\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	_ = godotenv.Load()

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	logger := infra.NewLogger("cli").With().Str("cmd", "migrate").Logger()

	switch strings.ToLower(flag.Arg(0)) {
	case "", "up":
		if err := infra.RunMigrations(dbURL, dirFlag); err != nil {
			exitWithError(err)
		}
		logger.Info().Str("dir", dirFlag).Msg("migrations applied")
	case "down":
		if stepsFlag <= 0 {
			exitWithError(errors.New("-steps must be positive"))
		}
		if err := infra.RollbackMigrations(dbURL, dirFlag, stepsFlag); err != nil {
			exitWithError(err)
		}
		logger.Info().Int("steps", stepsFlag).Msg("migrations reverted")
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
