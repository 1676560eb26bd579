package main

import (
	"context"
	"fmt"
	"os"
	"time"

	_ "go.uber.org/automaxprocs"

	"go.uber.org/zap"

	"tour-booking-api/internal/app"
	"tour-booking-api/internal/core/server"
	"tour-booking-api/internal/transport/http/handler"
	"tour-booking-api/internal/transport/http/router"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := app.New(ctx, "api")
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap failed: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()
	cfg, log := a.Cfg, a.Log

	// 路由（用户端）
	cookie := handler.CookieOptions{TTL: cfg.JWT.CookieTTL(), Secure: cfg.App.Production()}
	r := router.NewAPIEngine(router.Deps{
		Log:    log,
		HTTP:   cfg.App.HTTP,
		Auth:   a.Auth,
		Policy: router.DefaultPolicy(),
	},
		handler.NewUserHandler(a.Auth, a.UserSvc, cookie, cfg.App.HTTP.PublicURL),
		handler.NewTourHandler(a.TourSvc),
		handler.NewReviewHandler(a.ReviewSvc),
	)

	h := cfg.App.HTTP
	addr := server.Addr(h.Host, h.Port)
	srv := server.BuildServer(addr, r,
		time.Duration(h.ReadTimeoutSec)*time.Second,
		time.Duration(h.WriteTimeoutSec)*time.Second,
		time.Duration(h.IdleTimeoutSec)*time.Second,
	)

	baseURL := server.HumanURL(h.Host, h.Port)
	log.Info("user api starting",
		zap.String("addr", addr),
		zap.String("open", baseURL),
		zap.String("health", baseURL+"/health"),
		zap.String("api_v1", baseURL+"/api/v1"),
	)
	a.Serve(srv, "user api")
}
