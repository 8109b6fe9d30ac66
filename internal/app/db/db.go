package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"gardener_service/internal/app/config"
	"gardener_service/internal/app/logging"
)

// newPool は接続テストで差し替えます。
var newPool = func(ctx context.Context, cfg *pgxpool.Config) (pooler, error) {
	return pgxpool.NewWithConfig(ctx, cfg)
}

type pooler interface {
	Ping(ctx context.Context) error
	Close()
}

// Connect はコネクションプールを作成し、Ping が通るまでリトライします。
// プールの寿命は呼び出し元 (1 回の同期実行や API サーバー) が管理します。
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	p, err := connectWithRetry(ctx, poolCfg, cfg.ConnectRetries, cfg.RetryInterval)
	if err != nil {
		return nil, err
	}
	return p.(*pgxpool.Pool), nil
}

func connectWithRetry(ctx context.Context, poolCfg *pgxpool.Config, maxRetries int, retryInterval time.Duration) (pooler, error) {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		logging.Infof("データベースに接続しています (%d/%d)...", i+1, maxRetries)
		p, err := newPool(ctx, poolCfg)
		if err == nil {
			// 接続の確認（Ping）
			if err = p.Ping(ctx); err == nil {
				logging.Infof("データベースに接続しました")
				return p, nil
			}
			p.Close()
		}
		lastErr = err
		if i == maxRetries-1 {
			break
		}
		logging.Warnf("データベース接続失敗: %v。%s 後にリトライします", err, retryInterval)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return nil, fmt.Errorf("failed to connect to database after %d retries: %w", maxRetries, lastErr)
}

// OpenGorm は同じプールの上に GORM を開きます。
// プールを閉じるのは呼び出し元です。
func OpenGorm(pool *pgxpool.Pool, debug bool) (*gorm.DB, error) {
	level := gormlogger.Warn
	if debug {
		level = gormlogger.Info
	}
	gdb, err := gorm.Open(postgres.New(postgres.Config{
		Conn: stdlib.OpenDBFromPool(pool),
	}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm: %w", err)
	}
	return gdb, nil
}
