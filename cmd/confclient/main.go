package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rillconf/internal/core/domain"
	"rillconf/internal/core/ports"
	"rillconf/internal/core/services"
	httphandlers "rillconf/internal/handlers/http"
	"rillconf/internal/infrastructure/distributed"
	"rillconf/internal/infrastructure/middleware"
	"rillconf/internal/infrastructure/monitoring"
	repositories "rillconf/internal/infrastructure/repositories"
	signalclient "rillconf/internal/infrastructure/signal"
	webrtcinfra "rillconf/internal/infrastructure/webrtc"
	"rillconf/pkg/config"
	"rillconf/pkg/events"
	"rillconf/pkg/logger"
	"rillconf/pkg/retry"
	"rillconf/pkg/tracing"
	"rillconf/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	subscribeAll := flag.Bool("subscribe-all", false, "subscribe to every remote stream in the conference")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		// Logger is not configured yet.
		zap.NewExample().Sugar().Fatalw("failed to load config", "error", err)
	}

	var zapLogger *zap.Logger
	if cfg.Logging.Format == "console" {
		zapLogger = logger.NewDevelopment(cfg.Logging.Level)
	} else {
		zapLogger = logger.New(cfg.Logging.Level)
	}
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "rillconf",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	registry := prometheus.NewRegistry()
	collector := monitoring.NewPrometheusCollector(registry)

	repoFactory := repositories.NewRepositoryFactory(ctx, cfg, log)
	rosterRepo := repoFactory.CreateRosterRepository()

	client, err := signalclient.Dial(ctx, signalclient.ClientConfig{
		URL:               cfg.Signaling.URL,
		DialTimeout:       cfg.Signaling.DialTimeout,
		RequestTimeout:    cfg.Signaling.RequestTimeout,
		PingInterval:      cfg.Signaling.PingInterval,
		PongTimeout:       cfg.Signaling.PongTimeout,
		MaxMessageSize:    cfg.Signaling.MaxMessageSizeBytes,
		Retry:             dialRetry(cfg.Signaling.DialAttempts),
		RequestsPerSecond: signalingRate(cfg),
		Burst:             cfg.RateLimiting.Signaling.Burst,
	}, collector, log.Named("signaling"))
	if err != nil {
		log.Fatalw("failed to connect to signaling server", "url", cfg.Signaling.URL, "error", err)
	}

	transports, err := webrtcinfra.NewTransportFactory(webrtcConfig(cfg), client, log.Named("webrtc"))
	if err != nil {
		log.Fatalw("failed to create transport factory", "error", err)
	}

	roster := services.NewRoster(rosterRepo, collector, log.Named("roster"))
	conference := services.NewConferenceService(client, transports, roster, collector, log.Named("conference"))
	authService := services.NewAuthService(cfg.Auth.JWTSecret)

	health := monitoring.NewHealthChecker(log.Named("health"))
	interval := cfg.Monitoring.HealthCheckInterval
	health.AddSignalingCheck(client.Connected, interval, time.Second)
	health.AddRosterCheck(rosterRepo, roster.ConferenceID, interval, 2*time.Second)
	if redisClient := repoFactory.RedisClient(); redisClient != nil {
		health.AddRedisCheck(redisClient, interval, 2*time.Second)
		bus := distributed.NewEventBus(redisClient, uuid.NewString(), log.Named("events"))
		detach := bus.AttachRoster(roster)
		defer detach()
	}
	health.StartBackgroundChecks(ctx)

	log.Infow("joining conference", "url", cfg.Signaling.URL, "token", utils.MaskSensitive(cfg.Signaling.Token, 8))
	info, err := conference.Join(ctx, cfg.Signaling.Token)
	if err != nil {
		log.Fatalw("failed to join conference", "error", err)
	}
	log.Infow("joined conference",
		"conference_id", info.ID,
		"participant_id", info.Self.ID(),
		"participants", len(info.Participants),
		"streams", len(info.RemoteStreams),
	)
	if *subscribeAll {
		// Subscribe waits on a signaling response; never block the
		// notification loop that delivers stream additions.
		followStreams(roster, info, func(s *domain.RemoteStream) {
			go subscribe(ctx, conference, s, log)
		})
	}

	var srv *http.Server
	if cfg.Server.Enabled {
		srv = newServer(cfg, conference, rosterRepo, authService, health, registry, log)
		go func() {
			log.Infow("starting inspection API", "address", cfg.Server.Address)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("inspection API failed", "error", err)
				stop()
			}
		}()
	}

	if err := conference.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorw("notification loop stopped", "error", err)
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := conference.Leave(shutdownCtx); err != nil {
		log.Warnw("leave finished with errors", "error", err)
	}
	if err := client.Close(); err != nil {
		log.Warnw("failed to close signaling connection", "error", err)
	}
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorw("error during server shutdown", "error", err)
			_ = srv.Close()
		}
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Warnw("failed to flush traces", "error", err)
	}
	if err := repoFactory.Close(); err != nil {
		log.Errorw("error closing repository factory", "error", err)
	}
	log.Info("rillconf client stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	for _, p := range []string{"configs/config.yaml", "config.yaml"} {
		if _, err := os.Stat(p); err == nil {
			return config.Load(p)
		}
	}
	return config.Load("")
}

func dialRetry(attempts int) retry.Config {
	rc := retry.DefaultConfig()
	// MaxAttempts counts retries after the first dial.
	rc.MaxAttempts = attempts - 1
	rc.Enabled = rc.MaxAttempts > 0
	return rc
}

func signalingRate(cfg *config.Config) float64 {
	if !cfg.RateLimiting.Enabled {
		return 0
	}
	return cfg.RateLimiting.Signaling.RequestsPerSecond
}

func webrtcConfig(cfg *config.Config) webrtcinfra.Config {
	var wc webrtcinfra.Config
	for _, s := range cfg.WebRTC.ICEServers {
		wc.ICEServers = append(wc.ICEServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	wc.PortRange.Min = cfg.WebRTC.PortRange.Min
	wc.PortRange.Max = cfg.WebRTC.PortRange.Max
	return wc
}

// followStreams calls fn for every stream in info and then for each stream
// the roster adds later. It must run after Join: the streams Join found are
// taken from info, not from the roster events Join already emitted.
func followStreams(roster *services.Roster, info domain.ConferenceInfo, fn func(*domain.RemoteStream)) events.Token {
	tok := roster.On(services.RosterEventStreamAdded, func(ev services.RosterEvent) {
		fn(ev.Stream)
	})
	for _, s := range info.RemoteStreams {
		fn(s)
	}
	return tok
}

func subscribe(ctx context.Context, conference *services.ConferenceService, stream *domain.RemoteStream, log *zap.SugaredLogger) {
	var opts domain.SubscribeOptions
	if stream.Source().Audio != domain.AudioSourceNone {
		opts.Audio = &domain.AudioSubscriptionConstraints{}
	}
	if stream.Source().Video != domain.VideoSourceNone {
		opts.Video = &domain.VideoSubscriptionConstraints{}
	}
	if opts.Audio == nil && opts.Video == nil {
		return
	}

	sub, err := conference.Subscribe(ctx, stream, opts)
	if err != nil {
		log.Warnw("subscribe failed", "stream_id", stream.ID(), "error", err)
		return
	}
	log.Infow("subscribed", "stream_id", stream.ID(), "session_id", sub.ID())
}

func newServer(
	cfg *config.Config,
	conference *services.ConferenceService,
	rosters ports.RosterRepository,
	authService services.AuthService,
	health *monitoring.HealthChecker,
	registry *prometheus.Registry,
	log *zap.SugaredLogger,
) *http.Server {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(log),
		middleware.TracingMiddleware(),
		middleware.ErrorHandlerMiddleware(log),
	)

	var gatherer prometheus.Gatherer
	if cfg.Monitoring.PrometheusEnabled {
		gatherer = registry
	}
	httphandlers.NewHealthHandler(health, gatherer).SetupRoutes(router)

	api := router.Group("/")
	api.Use(middleware.AuthMiddleware(authService), middleware.NewHTTPRateLimitMiddleware(cfg))
	httphandlers.NewConferenceHandler(conference, rosters).SetupRoutes(api)
	httphandlers.NewAuthHandler(authService).SetupRoutes(api)

	return &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}
