package oracle

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

// CreateKafkaTopic creates the topic the oracle writes to when running
// against the kafka backend. An existing topic is left as is.
func CreateKafkaTopic(ctx context.Context, brokers []string, topic string, partitions int) error {
	cl, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer cl.Close()

	req := kmsg.NewCreateTopicsRequest()
	t := kmsg.NewCreateTopicsRequestTopic()
	t.Topic = topic
	t.NumPartitions = int32(partitions)
	t.ReplicationFactor = 1
	req.Topics = append(req.Topics, t)

	resp, err := req.RequestWith(ctx, cl)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}

	for _, t := range resp.Topics {
		err := kerr.ErrorForCode(t.ErrorCode)
		if errors.Is(err, kerr.TopicAlreadyExists) {
			log.WithField("topic", t.Topic).Info("Topic already exists")
			continue
		}
		if err != nil {
			return fmt.Errorf("topic %q: %w", t.Topic, err)
		}
	}
	return nil
}
