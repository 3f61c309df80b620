package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"kafka-relay/src/broker"
	"kafka-relay/src/config"
	"kafka-relay/src/contracts"
	"kafka-relay/src/deadletter"
	"kafka-relay/src/sanitize"
)

var (
	replicationFactor int16
	publishKey        string
	dlqGroup          string
	dlqLimit          int
)

// provisionCmd creates the relay topics and their dead-letter topics.
var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Create the relay topics and their dead-letter topics on the cluster",
	RunE: func(cmd *cobra.Command, args []string) error {
		if appConfig.UseInMemoryBroker() {
			return fmt.Errorf("RELAY_BROKERS is required to provision topics")
		}

		var specs []broker.TopicSpec
		for _, topic := range []string{contracts.TopicStrings, contracts.TopicPayments} {
			for _, name := range []string{topic, contracts.DeadLetterTopic(topic)} {
				specs = append(specs, broker.TopicSpec{
					Name:              name,
					Partitions:        int32(appConfig.Partitions),
					ReplicationFactor: replicationFactor,
				})
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		created, err := broker.Provision(ctx, appConfig.Brokers, specs)
		if err != nil {
			return err
		}
		if len(created) == 0 {
			fmt.Println("All topics already exist")
			return nil
		}
		for _, name := range created {
			fmt.Printf("Created %s (%d partitions)\n", name, appConfig.Partitions)
		}
		return nil
	},
}

// publishCmd publishes one message from the command line.
var publishCmd = &cobra.Command{
	Use:   "publish <topic> <payload>",
	Short: "Publish a single message and print where it was stored",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		res, err := rt.broker.Publish(ctx, args[0], publishKey, []byte(args[1]))
		if err != nil {
			return err
		}
		fmt.Printf("Published to %s\n", res)
		return nil
	},
}

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect dead-lettered messages",
}

// dlqListCmd lists stored dead letters.
var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead letters (requires RELAY_DLQ=postgres)",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		sink, err := rt.deadLetterSink(ctx)
		if err != nil {
			return err
		}
		lister, ok := sink.(deadletter.Lister)
		if !ok || appConfig.DeadLetter == config.DeadLetterMemory {
			return fmt.Errorf("dead-letter sink %q cannot be listed from a separate process; set RELAY_DLQ=postgres", appConfig.DeadLetter)
		}

		letters, err := lister.List(ctx, dlqGroup, dlqLimit)
		if err != nil {
			return err
		}
		if len(letters) == 0 {
			fmt.Println("No dead letters")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "FAILED AT\tGROUP\tPOSITION\tATTEMPTS\tREASON\tPAYLOAD")
		for _, l := range letters {
			fmt.Fprintf(w, "%s\t%s\t%s[%d]@%d\t%d\t%s\t%s\n",
				l.FailedAt.Format(time.RFC3339), l.GroupID,
				l.Message.Topic, l.Message.Partition, l.Message.Offset,
				l.Attempts, l.Reason, truncate(sanitize.Payload(l.Message.Value), 60))
		}
		return w.Flush()
	},
}

func init() {
	provisionCmd.Flags().Int16Var(&replicationFactor, "replication-factor", 1, "Replication factor of created topics")
	publishCmd.Flags().StringVarP(&publishKey, "key", "k", "", "Record key")
	dlqListCmd.Flags().StringVarP(&dlqGroup, "group", "g", "", "Only list this consumer group")
	dlqListCmd.Flags().IntVarP(&dlqLimit, "limit", "n", 50, "Maximum number of letters (0 for all)")
	dlqCmd.AddCommand(dlqListCmd)
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
