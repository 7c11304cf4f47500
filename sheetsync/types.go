package sheetsync

import "time"

type SyncRequest struct {
	Force bool `json:"force"`
}

type RecalculateRequest struct {
	// StartDate is YYYY-MM-DD or DD/MM/YYYY; empty means the default lookback.
	StartDate string `json:"start_date"`
}

type SyncPubSubPayload struct {
	Force         bool      `json:"force"`
	RequestedAt   time.Time `json:"requested_at"`
	CorrelationId string    `json:"correlation_id"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data        []byte            `json:"data"`
		MessageId   string            `json:"messageId"`
		PublishTime string            `json:"publishTime"`
		Attributes  map[string]string `json:"attributes"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Source    string    `json:"source"`
	LastRunAt *string   `json:"last_run_at"`
	Timestamp time.Time `json:"timestamp"`
}
