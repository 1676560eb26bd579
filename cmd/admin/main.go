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
	"tour-booking-api/internal/ratings"
	"tour-booking-api/internal/transport/http/handler"
	"tour-booking-api/internal/transport/http/router"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := app.New(ctx, "admin")
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap failed: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()
	cfg, log := a.Cfg, a.Log

	// 评分对账任务只跑在后台进程
	rc := cfg.Reconcile
	reconciler := ratings.NewReconciler(a.Ratings, a.Tours, log, time.Duration(rc.TimeoutSec)*time.Second)
	if rc.Enable {
		if err := reconciler.Start(rc.Spec); err != nil {
			log.Fatal("reconciler", zap.Error(err))
		}
		defer reconciler.Stop()
	}

	r := router.NewAdminEngine(router.Deps{
		Log:    log,
		HTTP:   cfg.App.HTTP,
		Auth:   a.Auth,
		Policy: router.DefaultPolicy(),
	}, handler.NewAdminHandler(a.UserSvc, a.Ratings, reconciler))

	addr := server.Addr(cfg.App.Admin.Host, cfg.App.Admin.Port)
	srv := server.BuildServer(addr, r, 5*time.Second, 10*time.Second, 60*time.Second)

	baseURL := server.HumanURL(cfg.App.Admin.Host, cfg.App.Admin.Port)
	log.Info("admin api starting",
		zap.String("addr", addr),
		zap.String("open", baseURL),
		zap.String("health", baseURL+"/health"),
		zap.String("admin_v1", baseURL+"/admin/v1"),
	)
	a.Serve(srv, "admin api")
}
