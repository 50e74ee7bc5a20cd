// Command rendezvous runs the chat and WebRTC signaling server.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"rendezvous/internal/app"
	"rendezvous/internal/config"
	"rendezvous/internal/logging"
)

const serviceName = "rendezvous"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

// run loads configuration, builds the application and serves until ctx is
// cancelled.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	// STEP 1: flags; -config wins over RENDEZVOUS_CONFIG_FILE
	configPath, err := parseFlags(args)
	if err != nil {
		return err
	}

	// STEP 2: configuration with precedence (file > env > .env > defaults)
	cfg, err := config.LoadConfigWithPrecedence(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(serviceName, cfg.Log, stdout)
	if err != nil {
		return err
	}

	// STEP 3: build and serve
	application, err := app.NewApplication(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	return application.Run(ctx)
}

func parseFlags(args []string) (string, error) {
	fs := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	configPath := fs.String("config", os.Getenv(config.EnvPrefix+"CONFIG_FILE"), "path to a JSON config file")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	return *configPath, nil
}
