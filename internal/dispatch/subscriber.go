package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kiranshivaraju/covergen/internal/config"
	"github.com/kiranshivaraju/covergen/pkg/models"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Completion is published after every handled message.
type Completion struct {
	JobID     string `json:"job_id"`
	OK        bool   `json:"ok"`
	Completed int    `json:"completed"`
	Blocked   int    `json:"blocked"`
	Error     string `json:"error,omitempty"`
}

// Subscriber consumes generation payloads from a NATS queue group. Messages
// are handled one at a time per subscriber.
type Subscriber struct {
	nc               *nats.Conn
	exec             JobExecutor
	pub              MessagePublisher
	subject          string
	queue            string
	completedSubject string
	logger           zerolog.Logger

	sub *nats.Subscription
}

func NewSubscriber(nc *nats.Conn, exec JobExecutor, cfg config.NATSConfig, logger zerolog.Logger) *Subscriber {
	return &Subscriber{
		nc:               nc,
		exec:             exec,
		pub:              nc,
		subject:          cfg.Subject,
		queue:            cfg.Queue,
		completedSubject: cfg.CompletedSubject,
		logger:           logger,
	}
}

// Start subscribes. Jobs run with ctx as their parent context.
func (s *Subscriber) Start(ctx context.Context) error {
	sub, err := s.nc.QueueSubscribe(s.subject, s.queue, func(msg *nats.Msg) {
		completion := s.handle(ctx, msg.Data)
		s.reply(msg, completion)
	})
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", s.subject, err)
	}
	s.sub = sub
	s.logger.Info().Str("subject", s.subject).Str("queue", s.queue).Msg("listening for cover jobs")
	return nil
}

// Stop drains the subscription, letting an in-flight job finish.
func (s *Subscriber) Stop() error {
	if s.sub == nil {
		return nil
	}
	return s.sub.Drain()
}

func (s *Subscriber) handle(ctx context.Context, data []byte) Completion {
	var payload models.GenerateCoverPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		s.logger.Error().Err(err).Msg("decode cover job message")
		return Completion{Error: "invalid payload"}
	}
	log := s.logger.With().Str("job_id", payload.JobID).Logger()

	job, err := payload.Job()
	if err != nil {
		log.Error().Err(err).Msg("invalid cover job message")
		return Completion{JobID: payload.JobID, Error: err.Error()}
	}

	log.Info().Msg("received cover job")
	summary, err := s.exec.Execute(ctx, job)
	completion := Completion{
		JobID:     payload.JobID,
		OK:        summary.OK,
		Completed: summary.Completed,
		Blocked:   summary.Blocked,
	}
	if err != nil {
		completion.OK = false
		completion.Error = err.Error()
		if errors.Is(err, ErrJobLocked) {
			log.Info().Msg("skipping cover job held by another worker")
		}
	}
	return completion
}

func (s *Subscriber) reply(msg *nats.Msg, completion Completion) {
	data, err := json.Marshal(completion)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", completion.JobID).Msg("marshal completion")
		return
	}
	if msg.Reply != "" {
		if err := msg.Respond(data); err != nil {
			s.logger.Warn().Err(err).Str("job_id", completion.JobID).Msg("respond to cover job request")
		}
	}
	if s.completedSubject == "" {
		return
	}
	if err := s.pub.Publish(s.completedSubject, data); err != nil {
		s.logger.Error().Err(err).Str("job_id", completion.JobID).Msg("publish completion")
	}
}
