package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kiranshivaraju/covergen/pkg/models"
)

// MessagePublisher is satisfied by *nats.Conn.
type MessagePublisher interface {
	Publish(subject string, data []byte) error
}

// Publisher enqueues generation payloads for the worker pool.
type Publisher struct {
	conn    MessagePublisher
	subject string
}

func NewPublisher(conn MessagePublisher, subject string) *Publisher {
	return &Publisher{conn: conn, subject: subject}
}

// PublishJob sends payload to the generation subject.
func (p *Publisher) PublishJob(ctx context.Context, payload models.GenerateCoverPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal cover payload: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish cover job %s: %w", payload.JobID, err)
	}
	return nil
}
