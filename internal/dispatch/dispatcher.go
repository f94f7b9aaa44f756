// Package dispatch handles outgoing messages: optimistic local append,
// then fire-and-forget submission to the remote feed.
package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/peykchat/peyk/internal/feed"
	"github.com/peykchat/peyk/internal/ident"
	"github.com/peykchat/peyk/internal/metrics"
	"github.com/peykchat/peyk/internal/models"
	"github.com/peykchat/peyk/internal/store"
)

// ErrEmptyText is returned for sends with no content.
var ErrEmptyText = errors.New("message text is empty")

// Dispatcher writes outgoing messages to the store before any network
// round trip, then submits them to the feed in the background.
type Dispatcher struct {
	feed  *feed.Client
	store store.EventStore
	log   zerolog.Logger

	submitTimeout time.Duration
	inflight      sync.WaitGroup
}

// New creates a Dispatcher. submitTimeout <= 0 uses the 10s default.
func New(fc *feed.Client, st store.EventStore, logger zerolog.Logger, submitTimeout time.Duration) *Dispatcher {
	if submitTimeout <= 0 {
		submitTimeout = 10 * time.Second
	}
	return &Dispatcher{
		feed:          fc,
		store:         st,
		log:           logger.With().Str("component", "dispatch").Logger(),
		submitTimeout: submitTimeout,
	}
}

// Send appends a message locally and submits it to the feed. The message
// is visible in conversation queries as soon as Send returns; submission
// failure is swallowed, since the next poll cycle cannot un-send what the
// store already holds. Only storage failures are returned.
func (d *Dispatcher) Send(ctx context.Context, conversationID, sender, text string) (*models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	msg := &models.Message{
		ID:        ident.NewMessageID(),
		Sender:    sender,
		Recipient: conversationID,
		Text:      text,
		Timestamp: time.Now().UTC().Format(models.TimestampFormat),
	}

	if _, err := d.store.PutMessage(ctx, msg); err != nil {
		return nil, err
	}
	metrics.MessagesSent.Inc()

	d.inflight.Add(1)
	go d.submit(msg)

	return msg, nil
}

// submit posts the message to the feed with its own deadline, detached
// from the sender's context. The feed will echo it back with a fresh event
// id; the processed-set check and the message primary key both absorb it.
func (d *Dispatcher) submit(msg *models.Message) {
	defer d.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), d.submitTimeout)
	defer cancel()

	err := d.feed.Submit(ctx, models.Submission{
		Username: msg.Sender,
		Action:   string(models.ActionMessage),
		Data: models.SubmissionData{
			ID:   msg.ID,
			Text: msg.Text,
			To:   msg.Recipient,
		},
	})
	if err != nil {
		metrics.SubmitFailures.Inc()
		d.log.Debug().Err(err).Str("message_id", msg.ID).Msg("feed submission failed")
	}
}

// Wait blocks until all in-flight submissions have completed or timed out.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}
