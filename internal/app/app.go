package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zapgestor/zapgestor/internal/config"
)

// App embrulha o servidor HTTP com timeouts e shutdown controlado.
type App struct {
	cfg config.Config
	log *zap.Logger
	srv *http.Server
}

func New(cfg config.Config, log *zap.Logger, router *gin.Engine) *App {
	return &App{
		cfg: cfg,
		log: log,
		srv: &http.Server{
			Addr:              ":" + cfg.App.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}
}

func (a *App) Run(ctx context.Context) error {
	a.log.Info("servidor HTTP iniciando", zap.String("addr", a.srv.Addr))
	if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	return a.srv.Shutdown(ctx)
}
