package events

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// JobSubscriber provides the push-subscription primitive scoped to a single
// job record: callers get every progress/completed event for that job until
// they unsubscribe.
type JobSubscriber struct {
	nc     *nats.Conn
	logger *logrus.Entry
}

// NewJobSubscriber creates a subscriber on an existing NATS connection
func NewJobSubscriber(nc *nats.Conn, logger *logrus.Logger) *JobSubscriber {
	return &JobSubscriber{
		nc:     nc,
		logger: logger.WithField("component", "import-subscriber"),
	}
}

// SubscribeJob delivers every event published for the given job to handler.
// The returned function unsubscribes; it is safe to call more than once.
func (s *JobSubscriber) SubscribeJob(jobID uuid.UUID, handler func(JobEvent)) (func(), error) {
	subject := fmt.Sprintf("import.job.%s.>", jobID.String())

	sub, err := s.nc.Subscribe(subject, func(msg *nats.Msg) {
		var event JobEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			s.logger.WithError(err).WithField("subject", msg.Subject).Warn("Dropping malformed job event")
			return
		}
		handler(event)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to job events: %w", err)
	}

	unsubscribed := false
	return func() {
		if unsubscribed {
			return
		}
		unsubscribed = true
		if err := sub.Unsubscribe(); err != nil {
			s.logger.WithError(err).Warn("Failed to unsubscribe from job events")
		}
	}, nil
}
