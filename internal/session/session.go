// Package session ties the sync engine together for one authenticated user:
// the credential gate, the poll loop, the dispatcher and the view layer.
package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/peykchat/peyk/internal/auth"
	"github.com/peykchat/peyk/internal/dispatch"
	"github.com/peykchat/peyk/internal/feed"
	"github.com/peykchat/peyk/internal/models"
	"github.com/peykchat/peyk/internal/store"
	"github.com/peykchat/peyk/internal/sync"
	"github.com/peykchat/peyk/internal/view"
)

// Options configures a session.
type Options struct {
	PollInterval       time.Duration
	FetchTimeout       time.Duration
	SubmitTimeout      time.Duration
	ProcessedRetention time.Duration

	// OnRefresh is forwarded to the syncer: called when new messages land.
	OnRefresh func()
}

// Session is a live authenticated sync session.
type Session struct {
	Username string
	Admin    bool

	store      store.EventStore
	syncer     *sync.Syncer
	dispatcher *dispatch.Dispatcher
	views      *view.Builder
	log        zerolog.Logger
}

// Open checks credentials and builds a session. On failure nothing starts:
// no poll loop, no presence record. The poll loop launches on Start.
func Open(ctx context.Context, st store.EventStore, fc *feed.Client, logger zerolog.Logger, username, password string, opts Options) (*Session, error) {
	admin, err := auth.Check(ctx, st, username, password)
	if err != nil {
		return nil, err
	}

	if err := st.TouchPresence(ctx, username, time.Now()); err != nil {
		return nil, err
	}

	s := &Session{
		Username: username,
		Admin:    admin,
		store:    st,
		views:    view.NewBuilder(st),
		log:      logger.With().Str("component", "session").Str("username", username).Logger(),
	}
	s.syncer = sync.New(fc, st, logger, sync.Options{
		PollInterval:       opts.PollInterval,
		FetchTimeout:       opts.FetchTimeout,
		ProcessedRetention: opts.ProcessedRetention,
		OnRefresh:          opts.OnRefresh,
	})
	s.dispatcher = dispatch.New(fc, st, logger, opts.SubmitTimeout)

	return s, nil
}

// Start launches the poll loop for the lifetime of the session.
func (s *Session) Start(ctx context.Context) {
	s.log.Info().Msg("session started")
	s.syncer.Start(ctx)
}

// Send dispatches a message from the session user to a conversation.
func (s *Session) Send(ctx context.Context, conversationID, text string) (*models.Message, error) {
	return s.dispatcher.Send(ctx, conversationID, s.Username, text)
}

// Conversation returns the ordered messages of a conversation as seen by
// the session user.
func (s *Session) Conversation(ctx context.Context, conversationID string) ([]models.Message, error) {
	return s.views.Conversation(ctx, conversationID, s.Username)
}

// Contacts returns known correspondents, most recently seen first.
func (s *Session) Contacts(ctx context.Context) ([]string, error) {
	return s.views.Contacts(ctx, s.Username)
}

// Close stops the poll loop and drains in-flight submissions.
func (s *Session) Close() {
	s.syncer.Stop()
	s.dispatcher.Wait()
	s.log.Info().Msg("session closed")
}
