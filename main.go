package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/DINO060/mediasink/internal"
	"github.com/DINO060/mediasink/pkg/logger"
)

var log = logger.Get("Main")

// main is the entry point to the program; it loads the user
// configuration, constructs the server, and runs it until an
// interrupt is received.
func main() {
	configPath := flag.String("config", "", "path to a YAML config file (environment-only config when omitted)")
	verbosity := flag.Int("verbosity", 3, "logging verbosity (0 silent, 5 most verbose)")
	flag.Parse()

	logger.SetMinLoggingLevel(minLevelForVerbosity(*verbosity))

	config := internal.MediasinkConfig{}
	if *configPath != "" {
		if err := config.LoadFromFile(*configPath); err != nil {
			log.Emit(logger.FATAL, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
	} else if err := config.LoadFromEnv(); err != nil {
		log.Emit(logger.FATAL, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	sink, err := internal.New(config)
	if err != nil {
		log.Emit(logger.FATAL, "Failed to bootstrap server: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := sink.Run(ctx); err != nil {
		log.Emit(logger.FATAL, "Server stopped with error: %v\n", err)
		os.Exit(1)
	}

	log.Emit(logger.STOP, "Server stopped\n")
}

// minLevelForVerbosity maps the user-facing verbosity scale, which
// counts up, to the logger's minimum-level threshold, which counts
// down. 0 silences everything; the default of 3 shows INFO and above.
func minLevelForVerbosity(verbosity int) int {
	thresholds := []int{
		logger.FATAL.Level() + 1,
		logger.WARNING.Level(),
		logger.SUCCESS.Level(),
		logger.INFO.Level(),
		logger.DEBUG.Level(),
		logger.VERBOSE.Level(),
	}

	if verbosity < 0 {
		verbosity = 0
	}
	if verbosity >= len(thresholds) {
		verbosity = len(thresholds) - 1
	}

	return thresholds[verbosity]
}
