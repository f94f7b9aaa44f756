package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/peykchat/peyk/internal/api"
	"github.com/peykchat/peyk/internal/auth"
	"github.com/peykchat/peyk/internal/config"
	"github.com/peykchat/peyk/internal/dispatch"
	"github.com/peykchat/peyk/internal/feed"
	"github.com/peykchat/peyk/internal/ident"
	"github.com/peykchat/peyk/internal/models"
	"github.com/peykchat/peyk/internal/session"
	"github.com/peykchat/peyk/internal/store"
	"github.com/peykchat/peyk/internal/view"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stderr).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Select the storage backend
	st, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("store connection failed")
	}
	defer st.Close()

	// Seed the default admin account
	if err := auth.SeedAdmin(ctx, st, cfg.AdminPassword); err != nil {
		logger.Fatal().Err(err).Msg("account seeding failed")
	}

	if cfg.FeedURL == "" {
		logger.Fatal().Msg("PEYK_FEED_URL is not set")
	}
	fc := feed.NewClient(cfg.FeedURL, ident.NewClientID())

	// Active conversation for the stdin loop; the refresh callback
	// re-renders it when a poll cycle lands new messages.
	var activeMu sync.Mutex
	active := models.GlobalRoom

	var sess *session.Session
	sess, err = session.Open(ctx, st, fc, logger, cfg.Username, cfg.Password, session.Options{
		PollInterval:       cfg.PollInterval,
		FetchTimeout:       cfg.FetchTimeout,
		SubmitTimeout:      cfg.SubmitTimeout,
		ProcessedRetention: cfg.ProcessedRetention,
		OnRefresh: func() {
			activeMu.Lock()
			conv := active
			activeMu.Unlock()
			render(ctx, sess, conv)
		},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("login failed")
	}

	loopCtx, cancelLoop := context.WithCancel(ctx)
	defer cancelLoop()
	sess.Start(loopCtx)

	// Local read-only API for render-layer consumers
	views := view.NewBuilder(st)
	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      api.NewRouter(logger, st, views, sess.Username),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", cfg.ListenAddr).
			Str("env", cfg.Env).
			Msg("starting local API")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("local API failed to start")
		}
	}()

	render(ctx, sess, active)

	// Stdin send loop: plain lines go to the active conversation,
	// "/to <peer>" switches it, "/contacts" lists correspondents.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			switch {
			case line == "":
				continue
			case strings.HasPrefix(line, "/to "):
				peer := strings.TrimSpace(strings.TrimPrefix(line, "/to "))
				if peer == "" {
					peer = models.GlobalRoom
				}
				activeMu.Lock()
				active = peer
				activeMu.Unlock()
				render(ctx, sess, peer)
			case line == "/contacts":
				users, err := sess.Contacts(ctx)
				if err != nil {
					logger.Error().Err(err).Msg("contact query failed")
					continue
				}
				fmt.Printf("contacts: %s\n", strings.Join(users, ", "))
			default:
				activeMu.Lock()
				conv := active
				activeMu.Unlock()
				if _, err := sess.Send(ctx, conv, line); err != nil {
					if err == dispatch.ErrEmptyText {
						continue
					}
					logger.Error().Err(err).Msg("send failed")
					continue
				}
				render(ctx, sess, conv)
			}
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("local API forced to shutdown")
	}

	cancelLoop()
	sess.Close()

	logger.Info().Msg("stopped")
}

// openStore picks the backend: Redis, then Postgres, then embedded SQLite.
func openStore(ctx context.Context, cfg *config.Config) (store.EventStore, error) {
	switch {
	case cfg.RedisURL != "":
		return store.NewRedisStore(ctx, cfg.RedisURL)
	case cfg.DatabaseURL != "":
		return store.NewPostgresStore(ctx, cfg.DatabaseURL)
	default:
		return store.NewSQLiteStore(ctx, cfg.DBPath)
	}
}

// render prints a conversation to stdout, oldest first.
func render(ctx context.Context, sess *session.Session, conversationID string) {
	msgs, err := sess.Conversation(ctx, conversationID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "render failed: %v\n", err)
		return
	}

	fmt.Printf("--- %s ---\n", conversationID)
	for _, msg := range msgs {
		sender := msg.Sender
		if sender == sess.Username {
			sender = "you"
		}
		fmt.Printf("[%s] %s: %s\n", msg.Timestamp, sender, msg.Text)
	}
}
