// Package main provides the relay CLI: HTTP producers, consumer groups and
// broker administration, built on the Cobra framework.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"kafka-relay/src/config"
	"kafka-relay/src/logger"
	"kafka-relay/src/metrics"
)

var (
	// Application configuration
	appConfig *config.Config
	// Shared logger for every component
	log logger.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Relay - HTTP producers and consumer groups over a Kafka-compatible broker",
	Long: `Relay accepts payloads over HTTP, publishes them to topics on a
Kafka-compatible broker and runs independent consumer groups on those topics.

Set RELAY_BROKERS to use Redpanda/Kafka. Without it every command runs
against an in-memory broker, and the producer servers also run their topic's
consumer groups in the same process.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var err error
		appConfig, err = config.LoadFromEnv()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
			os.Exit(1)
		}

		log = logger.NewConsoleLoggerWithLevel(appConfig.LogLevel)
		metrics.RegisterMetrics()
	},
}

func init() {
	rootCmd.AddCommand(paymentServerCmd)
	rootCmd.AddCommand(strProducerCmd)
	rootCmd.AddCommand(strConsumerCmd)
	rootCmd.AddCommand(paymentConsumerCmd)
	rootCmd.AddCommand(provisionCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(dlqCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigChan:
			log.Info("Shutdown signal received, stopping...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}
