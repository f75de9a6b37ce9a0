// Package app はアプリケーションの初期化と起動モードの制御を提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wihy/healthfeed/internal/config"
	"github.com/wihy/healthfeed/internal/database"
	"github.com/wihy/healthfeed/internal/handler"
	"github.com/wihy/healthfeed/internal/ingest"
	"github.com/wihy/healthfeed/internal/logger"
	"github.com/wihy/healthfeed/internal/metrics"
	"github.com/wihy/healthfeed/internal/middleware"
	"github.com/wihy/healthfeed/internal/parser"
	"github.com/wihy/healthfeed/internal/scheduler"
	"github.com/wihy/healthfeed/internal/security"
	"github.com/wihy/healthfeed/internal/store"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// スキーマ確認とポーリングスケジューラの起動は最初のAPI呼び出しで行われる。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. ストアの初期化
	feedStore := store.NewPostgresFeedStore(db, slog.Default())

	// 3. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	textExtractor := security.NewTextExtractor()

	// 4. パーサーとメトリクスの初期化
	feedParser := parser.NewFeedParser(
		ssrfGuard, textExtractor,
		cfg.FetchTimeout, cfg.FetchMaxSize, slog.Default(),
	)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 5. スケジューラとコントローラーの初期化
	sched := scheduler.NewScheduler(
		feedStore, feedParser, collector, slog.Default(), cfg.PollPacing,
	)
	controller := ingest.NewController(feedStore, sched, slog.Default())

	// 遅延初期化: 最初のAPI呼び出しでスキーマを確認し、
	// ポーリングスケジューラを起動する
	schedCtx, schedCancel := context.WithCancel(context.Background())
	defer schedCancel()

	controller.SetInitializer(func(ctx context.Context) error {
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("schema initialization failed: %w", err)
		}
		go sched.Start(schedCtx, cfg.PollInterval)
		return nil
	})

	// 6. ルーターの構築
	// configのRateLimitGeneralはreq/min単位
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral), slog.Default(),
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Controller:        controller,
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		MetricsGatherer:   registry,
		DB:                db,
	})

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")
	schedCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はポーリングワーカー単体モードで起動する。
// DB接続を開き、ポーリングスケジューラのみを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. スキーマ確認とストアの初期化
	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("schema initialization failed: %w", err)
	}
	feedStore := store.NewPostgresFeedStore(db, slog.Default())

	// 3. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	textExtractor := security.NewTextExtractor()

	// 4. パーサーとメトリクスの初期化
	feedParser := parser.NewFeedParser(
		ssrfGuard, textExtractor,
		cfg.FetchTimeout, cfg.FetchMaxSize, slog.Default(),
	)
	collector := metrics.NewCollector(prometheus.NewRegistry())

	// 5. スケジューラの初期化
	sched := scheduler.NewScheduler(
		feedStore, feedParser, collector, slog.Default(), cfg.PollPacing,
	)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("poll_interval", cfg.PollInterval),
		slog.Duration("poll_pacing", cfg.PollPacing),
	)

	// スケジューラをメインgoroutineで実行（ブロッキング）
	sched.Start(ctx, cfg.PollInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
