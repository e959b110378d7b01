// Package events provides NATS publishing and per-job subscription for
// import progress updates.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/sirupsen/logrus"
	"supplier-import-service/internal/models"
)

const (
	streamName     = "IMPORTS"
	streamSubjects = "import.>"
)

// JobEvent is the wire shape of an import progress notification. Events are
// published per job id so listeners can subscribe to a single record.
type JobEvent struct {
	EventType string               `json:"eventType"` // import.job.progress | import.job.completed
	JobID     string               `json:"jobId"`
	TenantID  string               `json:"tenantId"`
	Status    models.ImportStatus  `json:"status"`
	Total     int                  `json:"total"`
	Processed int                  `json:"processed"`
	Succeeded int                  `json:"succeeded"`
	Skipped   int                  `json:"skipped"`
	Failed    int                  `json:"failed"`
	Outcome   models.ImportOutcome `json:"outcome,omitempty"`
	Operation string               `json:"operation,omitempty"`
	Error     string               `json:"error,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

func progressSubject(jobID uuid.UUID) string {
	return fmt.Sprintf("import.job.%s.progress", jobID.String())
}

func completedSubject(jobID uuid.UUID) string {
	return fmt.Sprintf("import.job.%s.completed", jobID.String())
}

// Publisher publishes import job events to NATS JetStream
type Publisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *logrus.Entry
}

// NewPublisher creates a new import events publisher and ensures the
// imports stream exists.
func NewPublisher(logger *logrus.Logger) (*Publisher, error) {
	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		natsURL = nats.DefaultURL
	}

	nc, err := nats.Connect(natsURL,
		nats.Name("supplier-import-service"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{streamSubjects},
	})
	if err != nil && !errors.Is(err, jetstream.ErrStreamNameAlreadyInUse) {
		logger.WithError(err).Warn("Failed to ensure imports stream (may already exist)")
	}

	return &Publisher{
		nc:     nc,
		js:     js,
		logger: logger.WithField("component", "import-events"),
	}, nil
}

// Close closes the NATS connection
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}

// Conn exposes the underlying connection for subscriber wiring
func (p *Publisher) Conn() *nats.Conn {
	return p.nc
}

// PublishProgress publishes a progress event for a job
func (p *Publisher) PublishProgress(ctx context.Context, job *models.ImportJob) {
	event := buildJobEvent("import.job.progress", job)
	p.publish(progressSubject(job.ID), event)
}

// PublishCompleted publishes a terminal event for a job, including the
// derived outcome classification.
func (p *Publisher) PublishCompleted(ctx context.Context, job *models.ImportJob) {
	event := buildJobEvent("import.job.completed", job)
	event.Outcome = models.ClassifyOutcome(job.ProcessedRows, job.Succeeded(), job.Skipped)
	p.publish(completedSubject(job.ID), event)
}

func buildJobEvent(eventType string, job *models.ImportJob) JobEvent {
	return JobEvent{
		EventType: eventType,
		JobID:     job.ID.String(),
		TenantID:  job.TenantID,
		Status:    job.Status,
		Total:     job.TotalRows,
		Processed: job.ProcessedRows,
		Succeeded: job.Succeeded(),
		Skipped:   job.Skipped,
		Failed:    job.Failed,
		Operation: job.CurrentOperation,
		Error:     job.ErrorMessage,
		Timestamp: time.Now(),
	}
}

// publish sends the event asynchronously so a slow broker never blocks the
// chunk loop.
func (p *Publisher) publish(subject string, event JobEvent) {
	go func() {
		data, err := json.Marshal(event)
		if err != nil {
			p.logger.WithError(err).Error("Failed to marshal job event")
			return
		}

		pubCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if _, err := p.js.Publish(pubCtx, subject, data); err != nil {
			p.logger.WithFields(logrus.Fields{
				"subject":   subject,
				"eventType": event.EventType,
				"jobId":     event.JobID,
			}).WithError(err).Error("Failed to publish job event")
		}
	}()
}
