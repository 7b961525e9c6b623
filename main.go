package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fasthttp/router"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"starlore/internal/config"
	"starlore/internal/db"
	"starlore/internal/http/handlers"
	appmw "starlore/internal/http/middleware"
	"starlore/internal/kv"
	ui "starlore/web"
)

func setupLogging(cfg *config.Config) {
	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.WithField("level", cfg.LogLevel).Warn("unknown log level, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	setupLogging(cfg)

	store, err := kv.Connect(cfg)
	switch {
	case errors.Is(err, kv.ErrDisabled):
		logrus.Warn("KV_URL not set, analytics disabled")
	case err != nil:
		logrus.WithError(err).Fatal("failed to configure analytics store")
	}
	defer store.Close()

	sqlDB, err := db.Connect(cfg)
	switch {
	case errors.Is(err, db.ErrNotConfigured):
		logrus.Info(err.Error())
	case err != nil:
		logrus.WithError(err).Fatal("failed to connect database")
	}

	if sqlDB != nil && store.Enabled() {
		workers, err := db.StartWorkers(sqlDB, store, cfg)
		if err != nil {
			logrus.WithError(err).Fatal("failed to schedule rollup workers")
		}
		defer workers.Stop()
	}

	creds, err := appmw.NewCredentials(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("failed to prepare admin credentials")
	}
	if !cfg.DashboardProtected() {
		logrus.Warn("APP_ADMIN_PASSWORD not set, dashboard is public")
	}
	sessions := appmw.NewSessions(appmw.SessionTTL)

	handlers.InitPrometheusMetrics(prometheus.DefaultRegisterer, store)

	r := router.New()

	r.GET("/healthz", handlers.Healthz(store))
	r.ServeFS("/static/{filepath:*}", ui.StaticFS())

	r.GET("/login", handlers.LoginForm(cfg))
	r.POST("/login", handlers.LoginSubmit(creds, sessions))
	r.POST("/logout", handlers.Logout(sessions))

	r.GET("/", handlers.Home())
	r.GET("/analytics", appmw.AdminAuth(sessions, cfg)(handlers.AnalyticsPage(store, cfg)))

	r.POST("/api/analytics/track", handlers.TrackHandler(store))
	r.GET("/api/analytics/stats", handlers.StatsHandler(store))
	r.GET("/api/analytics/history", appmw.BearerAuth(cfg)(handlers.HistoryHandler(sqlDB, cfg)))

	r.GET("/metrics", appmw.BearerAuth(cfg)(handlers.MetricsHandler(prometheus.DefaultGatherer)))

	srv := &fasthttp.Server{
		Handler:      handlers.RequestLogger(r.Handler),
		Name:         "starlore",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logrus.WithField("addr", cfg.ListenAddr).Info("starlore listening")
		if err := srv.ListenAndServe(cfg.ListenAddr); err != nil {
			logrus.WithError(err).Fatal("server error")
		}
	}()

	<-ctx.Done()
	logrus.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.ShutdownWithContext(shutdownCtx); err != nil {
		logrus.WithError(err).Error("graceful shutdown failed")
	}
}
