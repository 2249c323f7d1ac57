package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/miniproj/internal/auth"
	"github.com/hitoshi/miniproj/internal/config"
	"github.com/hitoshi/miniproj/internal/database"
	"github.com/hitoshi/miniproj/internal/handler"
	"github.com/hitoshi/miniproj/internal/logger"
	"github.com/hitoshi/miniproj/internal/metrics"
	"github.com/hitoshi/miniproj/internal/project"
	"github.com/hitoshi/miniproj/internal/security"
)

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. .envと環境変数から設定を読み込む
	if err := config.LoadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再構成する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

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
		slog.String("env", cfg.AppEnv),
		slog.String("port", cfg.ServerPort),
		slog.String("store_driver", cfg.StoreDriver),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// newOpener は設定されたドライバーに対応するストアのOpenerを返す。
func newOpener(cfg *config.Config) database.Opener {
	switch cfg.StoreDriver {
	case config.StoreDriverMongo:
		return database.MongoOpener(cfg.MongoURI, cfg.DatabaseName)
	case config.StoreDriverMemory:
		return database.MemoryOpener()
	default:
		return database.PostgresOpener(cfg.DatabaseURL)
	}
}

// newServer は全依存関係をワイヤリングしたHTTPサーバーを構築する。
// ストアへの接続は最初のリクエストまで行わない。
func newServer(cfg *config.Config, registry *prometheus.Registry) (*http.Server, *database.LazyStore) {
	// 1. ストア
	store := database.NewLazyStore(newOpener(cfg), slog.Default())

	// 2. 共通サービス
	collector := metrics.NewCollector(registry)
	sanitizer := security.NewTextSanitizer()
	tokens := auth.NewTokenIssuer(cfg.TokenSecret, cfg.TokenTTL)

	// 3. ドメインサービス
	wechat := auth.NewWeChatClient(auth.WeChatConfig{
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
		APIBase:   cfg.WeChatAPIBase,
		Timeout:   cfg.ExchangeTimeout,
	})
	loginService := auth.NewService(wechat, store, tokens, sanitizer, collector, auth.ServiceConfig{
		RefreshAvatar: cfg.ProfilePolicy == config.ProfilePolicyRefreshAvatar,
		StoreTimeout:  cfg.StoreTimeout,
	})
	projectService := project.NewService(store, sanitizer, collector, cfg.StoreTimeout)

	// 4. ルーター
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		TokenVerifier:     tokens,
		Metrics:           collector,
		Gatherer:          registry,
		Store:             store,
		LoginService:      loginService,
		ProjectService:    projectService,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server, store
}

// runServe はAPIサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	if cfg.AppID == "" || cfg.AppSecret == "" {
		slog.Warn("APPID or APPSECRET is not set, login code exchange will fail")
	}
	if cfg.TokenSecret == config.DevTokenSecret {
		slog.Warn("JWT_SECRET is not set, using development placeholder")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	server, store := newServer(cfg, registry)

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := store.Close(ctx); err != nil {
		slog.Warn("failed to close store", slog.String("error", err.Error()))
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はPostgreSQLのスキーマを作成する。
// すべての未適用マイグレーションを順番に適用する。
// MongoDBのインデックスは接続時に作成されるため対象外。
func runMigrate(cfg *config.Config) error {
	if cfg.StoreDriver != config.StoreDriverPostgres {
		slog.Info("migrate skipped, store driver has no SQL schema",
			slog.String("store_driver", cfg.StoreDriver),
		)
		return nil
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not configured")
	}

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
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
