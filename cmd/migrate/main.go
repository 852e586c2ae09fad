package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/prepscuola/simulazioni-backend/internal/config"
	"github.com/prepscuola/simulazioni-backend/internal/logger"
)

func main() {
	var migrationDir string
	flag.StringVar(&migrationDir, "path", "migrations", "Path to migration files")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(2)
	}

	m, err := migrate.New("file://"+migrationDir, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Str("path", migrationDir).Msg("Migration failed to initialize")
	}
	defer m.Close()

	switch args[0] {
	case "up":
		err = m.Up()
	case "down":
		err = m.Steps(-1)
	case "steps":
		var n int
		if n, err = intArg(args, "steps"); err == nil {
			err = m.Steps(n)
		}
	case "force":
		var v int
		if v, err = intArg(args, "force"); err == nil {
			err = m.Force(v)
		}
	case "version":
		version, dirty, verr := m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			log.Info().Msg("No migration applied yet")
			return
		}
		if verr != nil {
			log.Fatal().Err(verr).Msg("Version failed")
		}
		log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Schema version")
		return
	default:
		printUsage()
		os.Exit(2)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		log.Info().Str("command", args[0]).Msg("Schema already up to date")
		return
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", args[0]).Msg("Migration failed")
	}
	version, dirty, _ := m.Version()
	log.Info().Str("command", args[0]).Uint("version", version).Bool("dirty", dirty).Msg("Migration applied")
}

func intArg(args []string, command string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("%s requires a numeric argument", command)
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q", command, args[1])
	}
	return n, nil
}

func printUsage() {
	fmt.Println("Usage: migrate [flags] <command>")
	fmt.Println("Commands: up, down (one step), steps <n>, version, force <version>")
	fmt.Println("Flags:")
	flag.PrintDefaults()
}
