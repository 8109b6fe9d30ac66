package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/viper"

	"gardener_service/internal/app/config"
	"gardener_service/internal/app/db"
	"gardener_service/internal/app/handler"
	"gardener_service/internal/app/logging"
	"gardener_service/internal/app/repository"
)

func main() {
	logging.Setup(os.Stdout, false)
	logging.Startf("Application starting...")

	cfg, err := config.Load(viper.New(), os.Getenv("CONFIG_FILE"))
	if err != nil {
		logging.Fatalf("設定の読み込みに失敗しました: %v", err)
	}
	logging.SetDebug(cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// データベースに接続
	pool, err := db.Connect(ctx, cfg.Database)
	if err != nil {
		logging.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close() // アプリケーション終了時に接続を閉じる

	gdb, err := db.OpenGorm(pool, cfg.Debug)
	if err != nil {
		logging.Fatalf("%v", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logging.Debugf("%s %s %d", v.Method, v.URI, v.Status)
			return nil
		},
	}))
	handler.New(repository.NewReferenceReader(gdb)).Register(e)

	go func() {
		if err := e.Start(cfg.API.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Errorf("サーバーが停止しました: %v", err)
			stop()
		}
	}()
	logging.Infof("Application started successfully. addr=%s", cfg.API.Addr)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logging.Errorf("シャットダウンに失敗しました: %v", err)
	}
}
