package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"pinboard.dev/internal/auth"
	"pinboard.dev/internal/board"
	"pinboard.dev/internal/config"
	"pinboard.dev/internal/httpapi"
	"pinboard.dev/internal/mail"
	"pinboard.dev/internal/migrate"
	"pinboard.dev/internal/obs"
	"pinboard.dev/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	app := fx.New(
		fx.Supply(cfg),
		fx.StopTimeout(cfg.ShutdownTimeout),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}),
		fx.Provide(
			newLogger,
			newStorage,
			newMailer,
			newRateLimiter,
			newAuthService,
			newBoardService,
			newAPI,
			newHealthServer,
		),
		fx.Invoke(registerMetrics, startHTTPServer, startGRPCServer, startPurger),
	)
	app.Run()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	logger, err := obs.NewLogger(cfg.Environment)
	if err != nil {
		return nil, err
	}
	obs.SetLogger(logger)
	return logger, nil
}

// storage bundles the backing stores; without PINBOARD_PG_DSN everything is
// kept in memory.
type storage struct {
	Auth   auth.Store
	Boards board.Store
	Ready  httpapi.ReadyProbe
}

func newStorage(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (storage, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("PINBOARD_PG_DSN not set, using in-memory storage")
		authStore := auth.NewMemoryStore()
		return storage{
			Auth:   authStore,
			Boards: board.NewMemoryStore(authStore.Users(context.Background())),
		}, nil
	}

	st, err := pg.Open(cfg.DatabaseURL)
	if err != nil {
		return storage{}, fmt.Errorf("open db: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := st.Ping(ctx); err != nil {
		_ = st.Close()
		return storage{}, fmt.Errorf("ping db: %w", err)
	}
	if cfg.MigrateOnStart {
		mgr, err := migrate.NewManager(st.DB(), migrate.WithDir(cfg.MigrationsDir), migrate.WithLogger(logger.Named("migrate")))
		if err != nil {
			_ = st.Close()
			return storage{}, err
		}
		if err := mgr.Up(ctx); err != nil {
			_ = st.Close()
			return storage{}, err
		}
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return st.Close() },
	})
	return storage{
		Auth:   st.Auth(),
		Boards: st.Boards(),
		Ready:  httpapi.ReadyProbe{DB: st.DB()},
	}, nil
}

func newMailer(cfg config.Config, logger *zap.Logger) (mail.Mailer, error) {
	switch {
	case cfg.ResendAPIKey != "":
		m, err := mail.NewResendMailer(mail.ResendConfig{APIKey: cfg.ResendAPIKey})
		if err != nil {
			return nil, err
		}
		return m, nil
	case cfg.SMTPAddr != "":
		m, err := mail.NewSMTPMailer(mail.SMTPConfig{
			Addr:     cfg.SMTPAddr,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	case cfg.IsDevelopment():
		logger.Warn("no mail transport configured, magic links are logged at debug level")
		return mail.LogMailer{Logger: logger.Named("mail")}, nil
	default:
		return nil, errors.New("RESEND_API_KEY or SMTP_ADDR is required outside development")
	}
}

func newRateLimiter(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (httpapi.RateLimiter, error) {
	var (
		limiter httpapi.RateLimiter
		err     error
	)
	if cfg.RedisURL != "" {
		limiter, err = httpapi.NewRedisLimiter(context.Background(), cfg.RedisURL, cfg.SigninRateLimit, cfg.SigninRateWindow, logger.Named("ratelimit"))
		if err != nil {
			return nil, err
		}
	} else {
		limiter = httpapi.NewMemoryLimiter(cfg.SigninRateLimit, cfg.SigninRateWindow)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return limiter.Close() },
	})
	return limiter, nil
}

func newAuthService(st storage, mailer mail.Mailer, cfg config.Config, logger *zap.Logger) (*auth.Service, error) {
	return auth.NewService(st.Auth, mailer,
		auth.WithSecret(cfg.AuthSecret),
		auth.WithBaseURL(cfg.BaseURL),
		auth.WithFrom(cfg.EmailFrom),
		auth.WithTokenTTL(cfg.TokenTTL),
		auth.WithSessionTTL(cfg.SessionTTL),
		auth.WithInviteTTL(cfg.InviteTTL),
		auth.WithLogger(logger.Named("auth")),
	)
}

func newBoardService(st storage, authSvc *auth.Service, logger *zap.Logger) (*board.Service, error) {
	return board.NewService(st.Boards, authSvc, board.WithLogger(logger.Named("board")))
}

func newAPI(authSvc *auth.Service, boards *board.Service, st storage, limiter httpapi.RateLimiter, cfg config.Config, logger *zap.Logger) (*httpapi.API, error) {
	return httpapi.New(authSvc, boards,
		httpapi.WithReadiness(st.Ready),
		httpapi.WithRateLimiter(limiter),
		httpapi.WithLogger(logger.Named("http")),
		httpapi.WithVersion(version),
		httpapi.WithAllowedOrigins(cfg.CORSAllowedOrigins),
		httpapi.WithTrustedProxies(cfg.TrustedProxies),
		httpapi.WithSecureCookies(cfg.SecureCookies()),
	)
}

func newHealthServer(st storage, logger *zap.Logger) *httpapi.HealthServer {
	return httpapi.NewHealthServer(st.Ready, logger.Named("grpc"))
}

func registerMetrics() {
	obs.Init()
	obs.InitBuildInfo(obs.ResolveBuildInfo(version, commit))
}

func startHTTPServer(lc fx.Lifecycle, api *httpapi.API, cfg config.Config, logger *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return fmt.Errorf("listen http: %w", err)
			}
			logger.Info("starting pinboard-api", zap.String("version", version), zap.String("addr", srv.Addr))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down http server")
			return srv.Shutdown(ctx)
		},
	})
}

func startGRPCServer(lc fx.Lifecycle, health *httpapi.HealthServer, cfg config.Config, logger *zap.Logger) {
	srv := httpapi.NewGRPCServer(health)
	var cancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", cfg.GRPCAddr)
			if err != nil {
				return fmt.Errorf("listen grpc: %w", err)
			}
			var runCtx context.Context
			runCtx, cancel = context.WithCancel(context.Background())
			go health.Watch(runCtx, 15*time.Second)
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
					logger.Error("grpc server stopped", zap.Error(err))
				}
			}()
			logger.Info("grpc health listening", zap.String("addr", cfg.GRPCAddr))
			return nil
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
			}
			health.Shutdown()
			srv.GracefulStop()
			return nil
		},
	})
}

// startPurger deletes expired verification tokens and sessions periodically.
func startPurger(lc fx.Lifecycle, authSvc *auth.Service, cfg config.Config, logger *zap.Logger) {
	if cfg.PurgeInterval <= 0 {
		return
	}
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var runCtx context.Context
			runCtx, cancel = context.WithCancel(context.Background())
			done = make(chan struct{})
			go func() {
				defer close(done)
				ticker := time.NewTicker(cfg.PurgeInterval)
				defer ticker.Stop()
				for {
					select {
					case <-runCtx.Done():
						return
					case <-ticker.C:
						tokens, sessions, err := authSvc.PurgeExpired(runCtx)
						if err != nil {
							logger.Error("purge expired credentials", zap.Error(err))
							continue
						}
						logger.Debug("purged expired credentials", zap.Int64("tokens", tokens), zap.Int64("sessions", sessions))
					}
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}
