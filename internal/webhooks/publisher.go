package webhooks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"vrpengine/internal/model"
	"vrpengine/internal/store"
)

// Publisher queues run callbacks for the Worker to deliver.
type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// Envelope is the JSON body POSTed to a callback URL.
type Envelope struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	TenantID string    `json:"tenantId"`
	TS       string    `json:"ts"`
	Data     model.Run `json:"data"`
}

// Emit enqueues the finished run for its callback URL. Runs without a
// callback URL are ignored.
func (p *Publisher) Emit(ctx context.Context, eventType string, run model.Run) (string, error) {
	if run.CallbackURL == "" {
		return "", nil
	}
	body, err := json.Marshal(Envelope{
		ID:       "evt_" + uuid.NewString(),
		Type:     eventType,
		TenantID: run.TenantID,
		TS:       time.Now().UTC().Format(time.RFC3339),
		Data:     run,
	})
	if err != nil {
		return "", err
	}
	return p.Store.EnqueueCallback(ctx, run.TenantID, run.ID, eventType, run.CallbackURL, body)
}
