package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"aiTradeEngine/internal/ports"

	"github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.Store using SQLite.
// A Repository returned to a WithinTx callback is bound to that transaction.
type Repository struct {
	db     *sql.DB
	q      querier
	tx     *sql.Tx
	logger ports.Logger
}

var _ ports.Store = (*Repository)(nil)

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/trade_engine.db" // Default path
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
			cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
			return nil, err
		}
		cfg.Logger.Info(context.Background(), "Data directory checked/created", map[string]interface{}{"path": filepath.Dir(dbPath)})
	}

	// _txlock=immediate takes the write lock at BEGIN, so concurrent sweeps serialize on the
	// portfolio rows instead of failing on lock upgrade.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// One connection: every transaction is serialized in-process.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, q: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS portfolios (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL UNIQUE,
		balance REAL NOT NULL DEFAULT 0,
		equity REAL NOT NULL DEFAULT 0,
		initial_balance REAL NOT NULL DEFAULT 0,
		realized_pnl REAL NOT NULL DEFAULT 0,
		floating_pnl REAL NOT NULL DEFAULT 0,
		risk_mode TEXT NOT NULL DEFAULT 'MODERATE',
		risk_value_percent REAL NOT NULL DEFAULT 1,
		ai_trade_enabled INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS positions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		portfolio_id INTEGER NOT NULL,
		decision_id INTEGER NULL,
		symbol TEXT NOT NULL,
		type TEXT NOT NULL,
		quantity REAL NOT NULL,
		entry_price REAL NOT NULL,
		current_price REAL NOT NULL,
		investment REAL NOT NULL CHECK (investment > 0),
		floating_pnl REAL NOT NULL DEFAULT 0,
		pnl_percentage REAL NOT NULL DEFAULT 0,
		stop_loss REAL NOT NULL DEFAULT 0,
		take_profit REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		opened_at TIMESTAMP NOT NULL,
		closed_at TIMESTAMP DEFAULT NULL,
		close_price REAL DEFAULT NULL,
		realized_pnl REAL DEFAULT NULL,
		close_reason TEXT DEFAULT NULL
	);

	CREATE TABLE IF NOT EXISTS trade_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		decision_id INTEGER NULL,
		position_id INTEGER NULL,
		symbol TEXT NOT NULL,
		action TEXT NOT NULL,
		type TEXT NOT NULL,
		quantity REAL NOT NULL,
		price REAL NOT NULL,
		amount REAL NOT NULL,
		pnl REAL DEFAULT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		action TEXT NOT NULL,
		confidence REAL NOT NULL,
		price REAL NOT NULL DEFAULT 0,
		explanation TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		executed INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		risk_adjustment REAL NOT NULL DEFAULT 1,
		reject_reason TEXT NOT NULL DEFAULT '',
		market_context TEXT DEFAULT NULL
	);

	CREATE TABLE IF NOT EXISTS decision_executions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		decision_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		position_id INTEGER NULL,
		reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		UNIQUE (decision_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS market_regimes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		regime TEXT NOT NULL,
		regime_confidence REAL NOT NULL,
		volatility_24h REAL NOT NULL,
		anomaly_score REAL NOT NULL,
		timestamp TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS market_summaries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL UNIQUE,
		market_sentiment TEXT NOT NULL,
		market_health_score REAL NOT NULL,
		trend_strength REAL NOT NULL,
		regime_percentages TEXT NOT NULL DEFAULT '{}'
	);

	-- At most one OPEN position per (user, symbol, type)
	CREATE UNIQUE INDEX IF NOT EXISTS uq_positions_open ON positions (user_id, symbol, type) WHERE status = 'OPEN';
	CREATE INDEX IF NOT EXISTS idx_positions_user_status ON positions (user_id, status);
	CREATE INDEX IF NOT EXISTS idx_trade_history_user_created ON trade_history (user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_decisions_status ON decisions (executed, status, created_at);
	CREATE INDEX IF NOT EXISTS idx_market_regimes_symbol_ts ON market_regimes (symbol, timestamp);
	`
	_, err := r.q.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil && r.tx == nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// WithinTx runs fn inside one transaction bound to a transaction-scoped repository.
// Nested calls reuse the outer transaction.
func (r *Repository) WithinTx(ctx context.Context, fn ports.TxFunc) (err error) {
	if r.tx != nil {
		return fn(ctx, r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w: %w", ports.ErrTransactionFailed, err)
	}
	txRepo := &Repository{db: r.db, q: tx, tx: tx, logger: r.logger}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, txRepo); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Error(ctx, rbErr, "Failed to roll back transaction")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w: %w", ports.ErrTransactionFailed, err)
	}
	return nil
}

// --- Helper Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// isUniqueViolation reports whether err is a SQLite unique constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

func nullInt64(v int64) sql.NullInt64 {
	if v == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: v, Valid: true}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func dateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
