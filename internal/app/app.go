package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tour-booking-api/internal/core/auth"
	"tour-booking-api/internal/core/cache"
	"tour-booking-api/internal/core/config"
	"tour-booking-api/internal/core/database"
	"tour-booking-api/internal/core/logger"
	"tour-booking-api/internal/notify"
	"tour-booking-api/internal/ratings"
	"tour-booking-api/internal/repo"
	"tour-booking-api/internal/service"
)

// App 用户端与后台进程共享的依赖
type App struct {
	Cfg   *config.Config
	Log   *zap.Logger
	Cache *cache.Cache

	Tours   *repo.TourRepo
	Reviews *repo.ReviewRepo
	Users   *repo.UserRepo
	Ratings *ratings.Engine

	Auth      *service.AuthService
	UserSvc   *service.UserService
	TourSvc   *service.TourService
	ReviewSvc *service.ReviewService

	mongo   *mongo.Client
	closers []func()
}

// New 读配置、建日志、连 Mongo / Redis 并装配服务；失败时已打开的资源会被释放
func New(ctx context.Context, name string) (*App, error) {
	_ = godotenv.Load()
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return nil, err
	}
	if cfg.App.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	log, syncLog := logger.Build(logger.Options{
		Level:       cfg.Log.Level,
		JSON:        cfg.Log.JSON,
		AddCaller:   true,
		Development: !cfg.App.Production(),
		Rotate: logger.FileRotate{
			Enable:     cfg.Log.Rotate.Enable,
			Filename:   cfg.Log.Rotate.Filename,
			MaxSizeMB:  cfg.Log.Rotate.MaxSizeMB,
			MaxBackups: cfg.Log.Rotate.MaxBackups,
			MaxAgeDays: cfg.Log.Rotate.MaxAgeDays,
			Compress:   cfg.Log.Rotate.Compress,
		},
	})
	log = log.With(zap.String("svc", name), zap.String("env", cfg.App.Env))
	a := &App{Cfg: cfg, Log: log}
	a.closers = append(a.closers, syncLog, logger.RedirectStdLog(log, zapcore.InfoLevel))

	if err := a.connect(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.wire()
	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	m := a.Cfg.Mongo
	client, db, err := database.Connect(ctx, database.Opts{
		URI:                       m.URI,
		Database:                  m.Database,
		MaxPoolSize:               m.MaxPoolSize,
		MinPoolSize:               m.MinPoolSize,
		ConnectTimeoutSec:         m.ConnectTimeoutSec,
		ServerSelectionTimeoutSec: m.ServerSelectionTimeoutSec,
		AppName:                   a.Cfg.App.Name,
	})
	if err != nil {
		return err
	}
	a.mongo = client
	a.Log.Info("mongo connected", zap.String("database", m.Database))

	if m.EnsureIndexes {
		if err := database.EnsureIndexes(ctx, db); err != nil {
			return fmt.Errorf("ensure indexes: %w", err)
		}
		a.Log.Info("mongo indexes ensured")
	}

	if r := a.Cfg.Redis; r.Enable {
		c := cache.New(r.Addr, r.Password, r.DB)
		if err := c.Ping(ctx); err != nil {
			// 缓存不可用时直接回源
			a.Log.Warn("redis unavailable, analytics cache disabled", zap.Error(err))
			_ = c.Close()
		} else {
			a.Cache = c
			a.Log.Info("redis connected", zap.String("addr", r.Addr))
		}
	}

	a.Reviews = repo.NewReviewRepo(db)
	a.Tours = repo.NewTourRepo(db, a.Reviews)
	a.Users = repo.NewUserRepo(db)
	return nil
}

func (a *App) wire() {
	cfg := a.Cfg
	var mail notify.Sender = notify.LogSender{L: a.Log}
	if cfg.SMTP.Host != "" {
		mail = notify.NewMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)
	}
	jwter := auth.NewJWTer(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL())

	a.Ratings = ratings.NewEngine(a.Reviews, a.Tours, a.Log)
	a.Auth = service.NewAuthService(a.Users, jwter, service.BcryptHasher{}, mail, a.Log)
	a.UserSvc = service.NewUserService(a.Users)
	a.TourSvc = service.NewTourService(a.Tours, a.Cache, cfg.Redis.AnalyticsTTL(), a.Log)
	a.ReviewSvc = service.NewReviewService(a.Reviews, a.Tours, a.Ratings, a.Cache, a.Log)
}

// Close 逆序释放；日志最后 Sync
func (a *App) Close() {
	if a.Cache != nil {
		_ = a.Cache.Close()
	}
	if a.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.mongo.Disconnect(ctx); err != nil {
			a.Log.Warn("mongo disconnect", zap.Error(err))
		}
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// Serve 异步监听，收到 SIGINT / SIGTERM 后优雅关闭
func (a *App) Serve(srv *http.Server, name string) {
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatal(name+" start FAILED", zap.Error(err))
		}
	}()
	a.Log.Info(name + " started SUCCESS")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		a.Log.Error(name+" shutdown", zap.Error(err))
	}
	a.Log.Info(name + " stopped gracefully")
}
