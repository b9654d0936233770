// main package for the tts-service
package main

import (
	"fmt"
	"os"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-orchestrator/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

const (
	bootstrapLogFile = "tts-service-bootstrap.log"
	serviceLogFile   = "tts-service.log"
)

var configFile string

func setupLogger(logPath, file string) (*logger.Logger, error) {
	log, err := logger.New(logPath, file)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger in %s: %w", logPath, err)
	}

	return log, nil
}

// loadConfig reads the configuration through a bootstrap logger, then opens the service
// logger in the configured log directory. The caller closes the returned logger.
func loadConfig() (*config.Config, *logger.Logger, error) {
	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		return nil, nil, err
	}

	defer func() {
		closeErr := bootstrapLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing bootstrap logger: %v\n", closeErr)
		}
	}()

	bootstrapLog.Info("Bootstrap logger created.")

	var cfg *config.Config
	if configFile != "" {
		cfg, err = config.LoadFile(configFile)
	} else {
		cfg, err = config.Load(bootstrapLog)
	}

	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, serviceLogFile)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return nil, nil, err
	}

	return cfg, finalLog, nil
}

func closeLogger(log *logger.Logger) {
	closeErr := log.Close()
	if closeErr != nil {
		fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "tts-service",
		Short:         "Asynchronous text-to-speech job service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			// A missing .env file is fine; the environment may already be set.
			_ = godotenv.Load()
		},
	}

	root.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"path to a TOML configuration file (default: project configuration)")

	root.AddCommand(newServeCommand(), newSynthCommand(), newVersionCommand())

	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("tts-service %s\n", Version)
		},
	}
}

func main() {
	err := newRootCommand().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
