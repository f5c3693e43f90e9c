package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"chatter/internal/account"
	"chatter/internal/ai"
	"chatter/internal/api"
	"chatter/internal/auth"
	"chatter/internal/chat"
	"chatter/internal/config"
	"chatter/internal/groups"
	"chatter/internal/media"
	"chatter/internal/presence"
	"chatter/internal/redis"
	"chatter/internal/smartreply"
	"chatter/internal/store"
	"chatter/internal/ws"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP and WebSocket server",
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	alg, err := smartreply.ParseAlgorithm(cfg.SimilarityAlgorithm)
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	users := store.NewUsers(db)
	groupStore := store.NewGroups(db)
	messageStore := store.NewMessages(db)

	objects, err := media.NewJetStreamObjectStore(ctx, cfg.NatsURL, cfg.MediaBucket)
	if err != nil {
		return err
	}
	blobs := media.NewBlobs(objects, media.NewSigner(cfg.MediaSigningKey, cfg.SignedURLTTL.Duration), cfg.MediaBaseURL)

	tokens := auth.NewManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL.Duration)

	aiClient := ai.NewClient(ai.Options{
		APIKey:     cfg.OpenAIKey,
		OrgID:      cfg.OpenAIOrg,
		BaseURL:    cfg.OpenAIBaseURL,
		AppVersion: version,
		Env:        cfg.Env,
	})
	embedder := ai.NewEmbedder(aiClient, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	composer := smartreply.NewComposer(ai.NewCompleter(aiClient, cfg.CompletionModel, cfg.Env), alg)

	registry := presence.NewRegistry()
	typing := presence.NewTypingTracker()
	hub := ws.NewHub(groupStore)

	var relay *redis.Client
	if cfg.RedisURL != "" {
		relay, err = redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		hub.SetRelay(relay)
	}

	messages := chat.NewService(chat.Deps{
		Members:   groupStore,
		Groups:    groupStore,
		Messages:  messageStore,
		Blobs:     blobs,
		Embedder:  embedder,
		Broadcast: hub,
		Typing:    typing,
		Replies:   composer,
	})
	gateway := ws.NewGateway(hub, registry, typing, groupStore, messages, tokens)

	router := api.NewRouter(api.Deps{
		Tokens:    tokens,
		Accounts:  account.NewService(users, blobs, tokens),
		Groups:    groups.NewService(groupStore, users, blobs),
		Messages:  messages,
		Realtime:  gateway,
		WebSocket: http.HandlerFunc(gateway.ServeWS),
		Media:     blobs.Handler(),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		return hub.Run(gctx)
	})

	if relay != nil {
		g.Go(func() error {
			return redis.Subscribe(gctx, relay, hub)
		})
	}

	g.Go(func() error {
		slog.Info("Server starting", "port", cfg.Port, "env", cfg.Env, "similarity", alg.String(), "relay", relay != nil)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	var runErr error
	workersDone := make(chan struct{})
	go func() {
		runErr = g.Wait()
		close(workersDone)
	}()

	lc := newLifecycle(srv, stopWorkers, workersDone)
	lc.closeAfterDrain("nats", func() error {
		objects.Close()
		return nil
	})
	lc.closeAfterDrain("database", sqlDB.Close)
	if relay != nil {
		lc.closeAfterDrain("redis", relay.Close)
	}

	wait := gfshutdown.GracefulShutdown(ctx, shutdownTimeout, lc.operations())

	select {
	case <-lc.begun:
	case <-workersDone:
		if !lc.started() {
			slog.Error("Server stopped unexpectedly", "error", runErr)
			return errors.Join(runErr, lc.shutdownNow(context.Background()))
		}
	}

	exitCode := <-wait
	<-workersDone
	slog.Info("Server stopped", "exit_code", exitCode)
	if exitCode != 0 {
		return errors.Join(fmt.Errorf("shutdown finished with exit code %d", exitCode), runErr)
	}
	return runErr
}
