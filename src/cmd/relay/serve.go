package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"kafka-relay/src/contracts"
	"kafka-relay/src/producer"
	"kafka-relay/src/server"
)

var withConsumers bool

// paymentServerCmd serves POST /payment.
var paymentServerCmd = &cobra.Command{
	Use:   "payment-server",
	Short: "Serve POST /payment and publish payments to payment-topic",
	Long: `Accepts JSON payments on POST /payment and publishes them to payment-topic,
keyed by payment ID, after RELAY_PUBLISH_DELAY (default 1s).

Example:
  curl -X POST localhost:8080/payment -d '{"id":"p1","amount":10}'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		pcfg := producer.DefaultConfig(contracts.TopicPayments)
		pcfg.Delay = appConfig.PublishDelay
		payments, err := producer.NewPaymentService(rt.broker, pcfg, log)
		if err != nil {
			return err
		}

		srv := server.New(serverConfig(), payments, nil, log)
		return serve(rt, srv, contracts.TopicPayments)
	},
}

// strProducerCmd serves POST /producer.
var strProducerCmd = &cobra.Command{
	Use:   "str-producer",
	Short: "Serve POST /producer and publish plain text to str-topic",
	Long: `Accepts a plain text body on POST /producer and publishes it to str-topic.

Example:
  curl -X POST localhost:8080/producer -d 'hello'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		messages, err := producer.NewStringService(rt.broker, producer.DefaultConfig(contracts.TopicStrings), log)
		if err != nil {
			return err
		}

		srv := server.New(serverConfig(), nil, messages, log)
		return serve(rt, srv, contracts.TopicStrings)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{paymentServerCmd, strProducerCmd} {
		cmd.Flags().BoolVar(&withConsumers, "with-consumers", false,
			"Also run the topic's consumer groups in this process (always on with the in-memory broker)")
	}
}

func serverConfig() server.Config {
	return server.Config{
		Address:         appConfig.HTTPAddr,
		ShutdownTimeout: 10 * time.Second,
		RateLimit:       appConfig.RateLimit,
	}
}

// serve runs srv until a shutdown signal, together with the consumer groups
// of topic when they have to live in this process.
func serve(rt *runtime, srv *server.Server, topic string) error {
	ctx, cancel := signalContext()
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Listen(ctx)
	})

	if withConsumers || appConfig.UseInMemoryBroker() {
		runner, err := rt.consumerRunner(ctx, topic)
		if err != nil {
			cancel()
			g.Wait()
			return err
		}
		log.Info("Running %d consumer group(s) on %s in-process", len(runner.Dispatchers()), topic)
		g.Go(func() error {
			return runner.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s stopped: %w", topic, err)
	}
	log.Info("Stopped")
	return nil
}
