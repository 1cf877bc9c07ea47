package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"support-console/internal/api"
	"support-console/internal/api/router"
	"support-console/internal/backend"
	"support-console/internal/channel"
	"support-console/internal/config"
	"support-console/internal/console"
	"support-console/internal/database"
	"support-console/internal/env"
	internaljwt "support-console/internal/jwt"
	"support-console/internal/queue"
	"support-console/internal/roster"
	"support-console/internal/service/draft"
	"support-console/internal/websocket"
)

const apiPrefix = "/api/console/v1"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := env.Load(); err != nil {
		logger.Error("load .env failed", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		logger.Error("config failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tokens, closeTokens := tokenSource(cfg)
	defer closeTokens()

	backendClient := backend.NewClient(backend.Config{
		BaseURL: cfg.SupportAPIURL,
		Tokens:  tokens,
		Logger:  logger.With("component", "backend"),
	})

	drafts, err := draftService(ctx, cfg, tokens, logger.With("component", "drafts"))
	if err != nil {
		logger.Error("drafts init failed", "error", err)
		os.Exit(1)
	}

	hub := websocket.NewHub()
	go hub.Run(ctx)

	eventsRedis := websocket.NewRedisClient(cfg.Events.URL, cfg.Events.Pass)
	if eventsRedis != nil {
		defer eventsRedis.Close()
	}
	events := websocket.NewHandler(hub, eventsRedis, cfg.AllowedOrigins(), logger.With("component", "events"))
	events.CreateConsoleRooms(ctx)

	endpoint, err := channel.EndpointURL(cfg.RealtimeURL)
	if err != nil {
		logger.Error("realtime url invalid", "error", err)
		os.Exit(1)
	}
	channelLogger := logger.With("component", "channel")
	openChannel := func(ctx context.Context, sessionID string, handlers channel.Handlers) (console.SessionChannel, error) {
		ch, err := channel.Open(ctx, channel.Config{
			URL:        endpoint,
			Tokens:     tokens,
			MaxRetries: cfg.Channel.MaxRetries,
			RetryDelay: cfg.Channel.RetryDelay,
			AckTimeout: cfg.Channel.AckTimeout,
			Logger:     channelLogger.With("session_id", sessionID),
		}, sessionID, handlers)
		if err != nil {
			return nil, err
		}
		return ch, nil
	}

	// Roster queries get their own workers so a slow backend cannot starve
	// HTTP handlers that are waiting on a refresh.
	rosterQueue := queue.NewRequestQueueManager(8, 3, logger.With("component", "roster-queue"))
	defer rosterQueue.Shutdown()

	c := console.New(console.Config{
		Backend:     backendClient,
		OpenChannel: openChannel,
		Roster:      rosterConfig(cfg, rosterQueue, logger),
		Drafts:      drafts,
		Notifier:    websocket.NewEventNotifier(events.Publisher(), logger.With("component", "notifier")),
		Logger:      logger.With("component", "console"),
	})
	c.Start(ctx)
	defer c.Stop()

	httpQueue := queue.NewRequestQueueManager(32, 8, logger.With("component", "http-queue"))
	defer httpQueue.Shutdown()

	server := api.NewAPIServer(
		api.Options{
			ListenAddr:     cfg.ListenAddr,
			Queue:          httpQueue,
			Console:        c,
			Events:         events,
			AllowedOrigins: cfg.AllowedOrigins(),
			Logger:         logger.With("component", "http"),
		},
		router.UtilsRoutes(apiPrefix),
		router.ConsoleRoutes(apiPrefix),
		router.EventsRoutes(apiPrefix),
	)

	if err := server.Run(ctx); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func rosterConfig(cfg *config.Config, q *queue.RequestQueueManager, logger *slog.Logger) roster.Config {
	return roster.Config{
		Interval:      cfg.Roster.Interval,
		ActiveLimit:   cfg.Roster.ActiveLimit,
		ResolvedLimit: cfg.Roster.ResolvedLimit,
		Queue:         q,
		Logger:        logger.With("component", "roster"),
	}
}

// tokenSource prefers the static token and otherwise follows the key the
// admin app refreshes in Redis.
func tokenSource(cfg *config.Config) (internaljwt.TokenSource, func()) {
	var src internaljwt.TokenSource
	closeFn := func() {}
	if cfg.Auth.StaticToken != "" {
		src = internaljwt.StaticTokenSource(cfg.Auth.StaticToken)
	} else {
		redisSrc := internaljwt.NewRedisTokenSource(cfg.Auth.RedisURL, cfg.Auth.RedisPass, cfg.Auth.TokenKey)
		src = redisSrc
		closeFn = func() { redisSrc.Close() }
	}
	return internaljwt.Validated(src, []byte(cfg.Auth.Secret)), closeFn
}

func draftService(ctx context.Context, cfg *config.Config, tokens internaljwt.TokenSource, logger *slog.Logger) (*draft.Service, error) {
	adminID := "admin"
	tokenCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if tok, err := tokens.Token(tokenCtx); err == nil {
		if claims, err := internaljwt.ParseToken(tok, []byte(cfg.Auth.Secret), time.Now()); err == nil && claims.AdminID != "" {
			adminID = claims.AdminID
		}
	} else {
		logger.Warn("admin token unavailable at startup, drafts keyed to default admin", "error", err)
	}

	var repo draft.Repository = draft.NewMemoryRepository()
	if cfg.Drafts.Table != "" {
		db, err := database.NewDynamoDBClient(ctx, cfg.Drafts)
		if err != nil {
			return nil, err
		}
		repo = draft.NewDynamoRepository(db, cfg.Drafts.Table)
	}

	svc := draft.NewService(repo, adminID, logger)
	loadCtx, cancelLoad := context.WithTimeout(ctx, 10*time.Second)
	defer cancelLoad()
	if err := svc.Load(loadCtx); err != nil {
		logger.Warn("restore drafts failed", "admin_id", adminID, "error", err)
	}
	return svc, nil
}
