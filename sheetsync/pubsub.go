package sheetsync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/daaty/dashboard-mobilidade-urbana-main/config"
	"github.com/daaty/dashboard-mobilidade-urbana-main/models"
	"github.com/daaty/dashboard-mobilidade-urbana-main/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Publisher requests a sync through Pub/Sub; the push subscription calls
// PubSubPushHandler on some instance.
type Publisher struct {
	client      *pubsub.Client
	topic       string
	createTopic bool
}

func NewPublisher(client *pubsub.Client, cfg config.PubSubConfig) *Publisher {
	return &Publisher{client: client, topic: cfg.SyncTopic, createTopic: cfg.CreateTopic}
}

// PublishSyncRequest returns the server-assigned message id.
func (p *Publisher) PublishSyncRequest(ctx context.Context, force bool) (string, error) {
	if p == nil || p.client == nil {
		return "", errors.New("pubsub is not configured")
	}

	topic := p.client.Topic(p.topic)
	if p.createTopic {
		var err error
		topic, err = config.CreateTopicIfNotExists(ctx, p.client, p.topic)
		if err != nil {
			return "", err
		}
	}
	defer topic.Stop()

	correlationId, ok := utils.GetCorrelationIdFromContext(ctx)
	if !ok {
		correlationId = uuid.NewString()
	}
	payload := SyncPubSubPayload{
		Force:         force,
		RequestedAt:   time.Now().UTC(),
		CorrelationId: correlationId,
	}
	data, _ := json.Marshal(payload)
	res := topic.Publish(ctx, &pubsub.Message{Data: data})
	return res.Get(ctx)
}

// PubSubPushHandler always replies 204 so Pub/Sub does not redeliver;
// failures are logged by the sync service.
func (h *Handlers) PubSubPushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.pushEnabled {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			h.logger.WithError(err).Warn("invalid pubsub envelope")
			c.Status(204)
			return
		}

		var payload SyncPubSubPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			h.logger.WithError(err).Warn("invalid sync payload")
			c.Status(204)
			return
		}

		ctx := c.Request.Context()
		if payload.CorrelationId != "" {
			ctx = utils.SetCorrelationIdInContext(ctx, payload.CorrelationId)
		}
		result := h.sync.SyncAll(ctx, payload.Force, models.SyncTriggeredPubSub)
		h.logger.WithFields(logrus.Fields{
			"message_id":     envelope.Message.MessageId,
			"correlation_id": payload.CorrelationId,
			"success":        result.Success,
		}).Info("pubsub sync handled")
		c.Status(204)
	}
}
