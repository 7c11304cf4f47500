package config

import (
	"context"
	"errors"
	"fmt"
	"log"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// NewPubSubClient uses Application Default Credentials unless
// PUBSUB_CREDENTIALS_JSON is provided.
func NewPubSubClient(ctx context.Context, cfg PubSubConfig) (*pubsub.Client, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID not set")
	}

	var opts []option.ClientOption
	if cfg.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	}
	c, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("init pubsub client: %w", err)
	}
	log.Printf("pubsub client ready (project_id=%s)", cfg.ProjectID)
	return c, nil
}

func CreateTopicIfNotExists(ctx context.Context, c *pubsub.Client, topic string) (*pubsub.Topic, error) {
	if c == nil {
		return nil, errors.New("pubsub client is nil")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}

	t := c.Topic(topic)
	ok, err := t.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		return t, nil
	}
	t, err = c.CreateTopic(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("create topic %q: %w", topic, err)
	}
	return t, nil
}
