package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"kafka-relay/src/broker"
	"kafka-relay/src/consumer"
	"kafka-relay/src/contracts"
	"kafka-relay/src/listener"
)

// TopicConfig lists the consumer groups attached to one topic.
type TopicConfig struct {
	TopicName string        `yaml:"topicName"`
	Groups    []GroupConfig `yaml:"groups"`
}

// GroupConfig is one consumer group as written in a groups file.
type GroupConfig struct {
	GroupID       string        `yaml:"groupId"`
	StartPolicy   string        `yaml:"startPolicy"`
	FailurePolicy string        `yaml:"failurePolicy"`
	MaxRetries    int           `yaml:"maxRetries"`
	Backoff       time.Duration `yaml:"backoff"`
	MaxBackoff    time.Duration `yaml:"maxBackoff"`
	// Handler names a built-in listener (create, log, history, payment).
	Handler string `yaml:"handler"`
	// Idempotent skips messages this process already handled successfully.
	Idempotent bool `yaml:"idempotent"`
}

// DefaultTopics returns the groups of the payment consumer and the three
// string consumers. group-1 runs the always-failing create listener.
func DefaultTopics() []TopicConfig {
	return []TopicConfig{
		{
			TopicName: contracts.TopicStrings,
			Groups: []GroupConfig{
				{GroupID: "group-0", StartPolicy: "earliest", FailurePolicy: "dropAndCommit", Handler: listener.HandlerLog},
				{GroupID: "group-1", StartPolicy: "earliest", FailurePolicy: "retryThenDeadLetter", MaxRetries: 2,
					Backoff: 500 * time.Millisecond, MaxBackoff: 5 * time.Second, Handler: listener.HandlerCreate},
				{GroupID: "group-2", StartPolicy: "earliest", FailurePolicy: "dropAndCommit", Handler: listener.HandlerHistory},
			},
		},
		{
			TopicName: contracts.TopicPayments,
			Groups: []GroupConfig{
				{GroupID: "payment-group", StartPolicy: "earliest", FailurePolicy: "retryThenDeadLetter", MaxRetries: 3,
					Backoff: 500 * time.Millisecond, MaxBackoff: 5 * time.Second, Handler: listener.HandlerPayment, Idempotent: true},
			},
		},
	}
}

// LoadGroupsFile reads topic configurations from a YAML file. The file holds
// one TopicConfig per YAML document.
func LoadGroupsFile(path string) ([]TopicConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open groups file: %w", err)
	}
	defer f.Close()

	topics, err := ParseGroups(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return topics, nil
}

// ParseGroups decodes one TopicConfig per YAML document in r and validates them.
func ParseGroups(r io.Reader) ([]TopicConfig, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var topics []TopicConfig
	for {
		var t TopicConfig
		err := dec.Decode(&t)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse groups: %w", err)
		}
		topics = append(topics, t)
	}

	if len(topics) == 0 {
		return nil, fmt.Errorf("no topics defined")
	}
	if err := ValidateTopics(topics); err != nil {
		return nil, err
	}
	return topics, nil
}

// ValidateTopics checks every group entry and rejects a group bound twice to the same topic.
func ValidateTopics(topics []TopicConfig) error {
	seen := make(map[string]bool)
	for _, t := range topics {
		if t.TopicName == "" {
			return fmt.Errorf("topicName is required")
		}
		if len(t.Groups) == 0 {
			return fmt.Errorf("topic %s has no groups", t.TopicName)
		}
		for _, g := range t.Groups {
			if err := g.validate(); err != nil {
				return fmt.Errorf("topic %s: %w", t.TopicName, err)
			}
			key := t.TopicName + "/" + g.GroupID
			if seen[key] {
				return fmt.Errorf("topic %s: group %s defined twice", t.TopicName, g.GroupID)
			}
			seen[key] = true
		}
	}
	return nil
}

func (g GroupConfig) validate() error {
	if g.GroupID == "" {
		return fmt.Errorf("groupId is required")
	}
	if _, err := g.consumerGroup(""); err != nil {
		return err
	}
	if g.Handler == "" {
		return fmt.Errorf("group %s: handler is required", g.GroupID)
	}
	if _, err := listener.ByName(g.Handler, nil); err != nil {
		return fmt.Errorf("group %s: %w", g.GroupID, err)
	}
	if g.Backoff < 0 || g.MaxBackoff < 0 {
		return fmt.Errorf("group %s: backoff must not be negative", g.GroupID)
	}
	return nil
}

func (g GroupConfig) consumerGroup(topic string) (consumer.GroupConfig, error) {
	start, err := broker.ParseStartPolicy(g.StartPolicy)
	if err != nil {
		return consumer.GroupConfig{}, fmt.Errorf("group %s: %w", g.GroupID, err)
	}

	policy, err := consumer.ParseFailurePolicy(g.FailurePolicy, g.MaxRetries, g.Backoff, g.MaxBackoff)
	if err != nil {
		return consumer.GroupConfig{}, fmt.Errorf("group %s: %w", g.GroupID, err)
	}

	return consumer.GroupConfig{GroupID: g.GroupID, Topic: topic, Start: start, Policy: policy}, nil
}

// ConsumerGroups converts the topic's entries into dispatcher configurations.
func (t TopicConfig) ConsumerGroups() ([]consumer.GroupConfig, error) {
	out := make([]consumer.GroupConfig, 0, len(t.Groups))
	for _, g := range t.Groups {
		cg, err := g.consumerGroup(t.TopicName)
		if err != nil {
			return nil, err
		}
		out = append(out, cg)
	}
	return out, nil
}

// FindTopic returns the configuration of topic, if present.
func FindTopic(topics []TopicConfig, topic string) (TopicConfig, bool) {
	for _, t := range topics {
		if t.TopicName == topic {
			return t, true
		}
	}
	return TopicConfig{}, false
}
