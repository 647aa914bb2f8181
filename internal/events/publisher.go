// Package events publishes import job lifecycle events to NATS JetStream.
package events

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"example.com/leadimport/internal/importjob"
	"example.com/leadimport/internal/models"
)

const (
	// StreamName is the JetStream stream holding import events.
	StreamName = "IMPORTS"
	// SubjectPrefix prefixes every event subject; the job status follows it.
	SubjectPrefix = "imports"
)

// JetStreamPublisher is the subset of nats.JetStreamContext used here.
type JetStreamPublisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
}

// JobEvent is the payload of every import event.
type JobEvent struct {
	Subject   string           `json:"subject"`
	Job       models.ImportJob `json:"job"`
	Progress  float64          `json:"progress"`
	Timestamp time.Time        `json:"timestamp"`
}

// Publisher sends a JobEvent for every job update it observes.
type Publisher struct {
	js JetStreamPublisher

	mu          sync.Mutex
	streamReady bool
}

var _ importjob.Observer = (*Publisher)(nil)

// NewPublisher creates a Publisher on js.
func NewPublisher(js JetStreamPublisher) *Publisher {
	return &Publisher{js: js}
}

// Connect dials NATS at url and returns the connection with its JetStream context.
func Connect(url string) (*nats.Conn, nats.JetStreamContext, error) {
	nc, err := nats.Connect(url,
		nats.Timeout(10*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}
	log.Printf("Connected to NATS at %s", url)
	return nc, js, nil
}

// Subject returns the subject an event for a job in status is published on.
func Subject(status models.JobStatus) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, status)
}

// EnsureStream creates the IMPORTS stream when it does not exist yet.
func (p *Publisher) EnsureStream() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.streamReady {
		return nil
	}
	if _, err := p.js.StreamInfo(StreamName); err != nil {
		log.Printf("Stream %s not found, attempting to create it...", StreamName)
		_, createErr := p.js.AddStream(&nats.StreamConfig{
			Name:     StreamName,
			Subjects: []string{SubjectPrefix + ".>"},
			Storage:  nats.FileStorage,
		})
		if createErr != nil {
			return fmt.Errorf("failed to create NATS stream %s: %w", StreamName, createErr)
		}
		log.Printf("Successfully created NATS stream %s", StreamName)
	}
	p.streamReady = true
	return nil
}

// Publish sends one event for job.
func (p *Publisher) Publish(job models.ImportJob) error {
	if err := p.EnsureStream(); err != nil {
		return err
	}
	subject := Subject(job.Status)
	payload, err := json.Marshal(JobEvent{
		Subject:   subject,
		Job:       job,
		Progress:  job.Progress(),
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event for job %s: %w", job.ID, err)
	}
	ack, err := p.js.Publish(subject, payload)
	if err != nil {
		return fmt.Errorf("failed to publish event for job %s to subject %s: %w", job.ID, subject, err)
	}
	log.Printf("Published job %s event to subject %s (Stream: %s, Sequence: %d)", job.ID, subject, ack.Stream, ack.Sequence)
	return nil
}

// JobUpdated publishes the update. Failures are logged and do not affect the job.
func (p *Publisher) JobUpdated(job models.ImportJob) {
	if err := p.Publish(job); err != nil {
		log.Printf("Error publishing import event: %v", err)
	}
}
