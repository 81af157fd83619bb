// Command forecast runs the historical weather pipeline. The run
// subcommand (the default) performs a gathering run; serve starts the
// read API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lplpqq/forecast/internal/app"
	"github.com/lplpqq/forecast/internal/constants"
	"github.com/lplpqq/forecast/internal/log"
	"github.com/lplpqq/forecast/pkg/config"
)

// Exit codes. Configuration problems, I/O failures, and operator
// interrupts are distinguished so wrapping scripts can react.
const (
	exitOK          = 0
	exitConfig      = 1
	exitIO          = 2
	exitInterrupted = 3
)

func main() {
	cfgFile := flag.String("config", "config.yaml", "Path to configuration source:\n\t\t\t  YAML/JSON: config.yaml, forecast.json\n\t\t\t  SQLite: sqlite:config.db or any .db path")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("forecast %s\n", constants.Version)
		os.Exit(exitOK)
	}

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(exitIO)
	}
	defer log.Sync()

	subcommand := "run"
	args := flag.Args()
	if len(args) > 0 {
		subcommand = args[0]
		args = args[1:]
	}

	provider, err := newConfigProvider(*cfgFile)
	if err != nil {
		log.Errorf("Failed to load configuration: %v", err)
		os.Exit(exitConfig)
	}
	defer provider.Close()

	application := app.New(provider, log.GetSugaredLogger())

	switch subcommand {
	case "run":
		runFlags := flag.NewFlagSet("run", flag.ExitOnError)
		initial := runFlags.Bool("initial", false, "Perform the initial gathering run")
		runFlags.Parse(args)
		exit(application.RunCollection(context.Background(), *initial))
	case "serve":
		exit(application.RunAPI(context.Background()))
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q (expected 'run' or 'serve')\n", subcommand)
		os.Exit(exitConfig)
	}
}

// exit maps an application error to the process exit code.
func exit(err error) {
	switch {
	case err == nil:
		os.Exit(exitOK)
	case errors.Is(err, context.Canceled):
		log.Info("interrupted, shutting down")
		os.Exit(exitInterrupted)
	default:
		var cfgErr *config.ConfigError
		if errors.As(err, &cfgErr) {
			log.Errorf("Configuration error: %v", err)
			os.Exit(exitConfig)
		}
		log.Errorf("Application error: %v", err)
		os.Exit(exitIO)
	}
}

// newConfigProvider picks the configuration backend from the -config
// value: a sqlite: URI or a .db path selects SQLite, anything else is
// read as a YAML/JSON file.
func newConfigProvider(cfgFile string) (config.ConfigProvider, error) {
	if path, ok := strings.CutPrefix(cfgFile, "sqlite:"); ok {
		return config.NewSQLiteProvider(path)
	}
	if strings.HasSuffix(cfgFile, ".db") || strings.HasSuffix(cfgFile, ".sqlite") {
		return config.NewSQLiteProvider(cfgFile)
	}

	filename, err := filepath.Abs(cfgFile)
	if err != nil {
		return nil, err
	}
	return config.NewFileProvider(filename), nil
}
