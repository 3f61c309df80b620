package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// TopicSpec describes a topic to provision.
type TopicSpec struct {
	Name              string
	Partitions        int32
	ReplicationFactor int16
}

// Provision creates the given topics on the cluster. Topics that already
// exist are left untouched. It returns the names of the topics it created.
func Provision(ctx context.Context, brokers []string, topics []TopicSpec, opts ...kgo.Opt) ([]string, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker address is required")
	}

	client, err := kgo.NewClient(append([]kgo.Opt{kgo.SeedBrokers(brokers...)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka client: %w", err)
	}
	defer client.Close()

	adm := kadm.NewClient(client)

	var created []string
	for _, spec := range topics {
		if spec.Name == "" {
			return created, ErrEmptyTopic
		}
		partitions := spec.Partitions
		if partitions <= 0 {
			partitions = 1
		}
		replication := spec.ReplicationFactor
		if replication <= 0 {
			replication = 1
		}

		resps, err := adm.CreateTopics(ctx, partitions, replication, nil, spec.Name)
		if err != nil {
			return created, fmt.Errorf("failed to create topic %s: %w", spec.Name, err)
		}
		for _, resp := range resps {
			if resp.Err != nil {
				if errors.Is(resp.Err, kerr.TopicAlreadyExists) {
					continue
				}
				return created, fmt.Errorf("failed to create topic %s: %w", resp.Topic, resp.Err)
			}
			created = append(created, resp.Topic)
		}
	}

	return created, nil
}
