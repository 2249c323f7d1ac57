package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/miniproj/internal/repository"
)

// Connection は確立済みのストア接続。
type Connection struct {
	Stores *repository.Stores
	// Close は接続を解放する。nilの場合は何もしない。
	Close func(ctx context.Context) error
}

// Opener はストアへの接続を確立する関数。
type Opener func(ctx context.Context) (*Connection, error)

// PostgresOpener はPostgreSQLに接続するOpenerを返す。
func PostgresOpener(databaseURL string) Opener {
	return func(ctx context.Context) (*Connection, error) {
		if databaseURL == "" {
			return nil, errors.New("DATABASE_URL is not configured")
		}
		db, err := OpenPostgres(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		return &Connection{
			Stores: &repository.Stores{
				Users:    repository.NewPostgresUserRepo(db),
				Projects: repository.NewPostgresProjectRepo(db),
			},
			Close: func(context.Context) error { return db.Close() },
		}, nil
	}
}

// MongoOpener はMongoDBに接続するOpenerを返す。
func MongoOpener(uri, dbName string) Opener {
	return func(ctx context.Context) (*Connection, error) {
		if uri == "" {
			return nil, errors.New("MONGODB_URI is not configured")
		}
		client, db, err := OpenMongo(ctx, uri, dbName)
		if err != nil {
			return nil, err
		}
		return &Connection{
			Stores: &repository.Stores{
				Users:    repository.NewMongoUserRepo(db),
				Projects: repository.NewMongoProjectRepo(db),
			},
			Close: client.Disconnect,
		}, nil
	}
}

// MemoryOpener はプロセス内メモリのストアを返すOpenerを返す。
func MemoryOpener() Opener {
	return func(context.Context) (*Connection, error) {
		return &Connection{Stores: repository.NewMemoryStores()}, nil
	}
}

// LazyStore は初回利用時にストアへ接続し、成功した接続を以降の呼び出しで再利用する。
// 接続に失敗した場合はログを出力してErrStoreUnavailableを返し、次の呼び出しで再試行する。
// 複数goroutineから同時に利用できる。接続の試行は同時に1つまでで、
// 待機中の呼び出しは自身のctxが終了した時点で諦める。
type LazyStore struct {
	mu     sync.Mutex
	conn   *Connection
	dial   chan struct{}
	open   Opener
	logger *slog.Logger
}

// NewLazyStore はLazyStoreを生成する。接続はまだ行わない。
func NewLazyStore(open Opener, logger *slog.Logger) *LazyStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &LazyStore{open: open, logger: logger, dial: make(chan struct{}, 1)}
}

func (s *LazyStore) current() *Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Stores は接続済みのリポジトリを返す。未接続の場合はctxの期限内でここで接続する。
func (s *LazyStore) Stores(ctx context.Context) (*repository.Stores, error) {
	if conn := s.current(); conn != nil {
		return conn.Stores, nil
	}

	select {
	case s.dial <- struct{}{}:
		defer func() { <-s.dial }()
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", repository.ErrStoreUnavailable, ctx.Err())
	}

	// 待機中に別の呼び出しが接続を確立している場合がある
	if conn := s.current(); conn != nil {
		return conn.Stores, nil
	}

	conn, err := s.open(ctx)
	if err != nil {
		s.logger.Warn("store connection failed",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", repository.ErrStoreUnavailable, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.logger.Info("store connected")
	return conn.Stores, nil
}

// Connected は接続が確立済みかを返す。接続は試行しない。
func (s *LazyStore) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Close は確立済みの接続を解放する。未接続の場合は何もしない。
func (s *LazyStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil || s.conn.Close == nil {
		s.conn = nil
		return nil
	}
	err := s.conn.Close(ctx)
	s.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	return nil
}

var _ repository.StoreProvider = (*LazyStore)(nil)
