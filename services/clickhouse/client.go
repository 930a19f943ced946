package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"strings"

	clickhouse "github.com/ClickHouse/clickhouse-go/v2"
	chproto "github.com/ClickHouse/clickhouse-go/v2/lib/proto"
	"go.uber.org/zap"
)

// Config locates the database and names its tables. Empty table names get defaults.
type Config struct {
	Addr        string `yaml:"addr"`
	Database    string `yaml:"database"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	BarsTable   string `yaml:"bars_table"`
	TradesTable string `yaml:"trades_table"`
	LedgerTable string `yaml:"ledger_table"`
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = "localhost:9000"
	}
	if c.Database == "" {
		c.Database = "backtest"
	}
	if c.BarsTable == "" {
		c.BarsTable = "bars"
	}
	if c.TradesTable == "" {
		c.TradesTable = "trades"
	}
	if c.LedgerTable == "" {
		c.LedgerTable = "ingest_ledger"
	}
	return c
}

func (c Config) table(name string) string { return c.Database + "." + name }

// Store reads and writes bars, trades and the ingest ledger.
type Store struct {
	conn clickhouse.Conn
	cfg  Config
	log  *zap.Logger
}

// Open connects and pings the server.
func Open(ctx context.Context, cfg Config, log *zap.Logger) (*Store, error) {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{DSNHost(cfg.Addr)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": uint64(0),
		},
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("clickhouse ping: %s", ExplainError(err))
	}
	return &Store{conn: conn, cfg: cfg, log: log.With(zap.String("database", cfg.Database))}, nil
}

func (s *Store) Close() error { return s.conn.Close() }

// EnsureSchema creates the database and tables if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := s.conn.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", s.cfg.Database)); err != nil {
		return fmt.Errorf("create database: %s", ExplainError(err))
	}
	for _, ddl := range schemaDDL(s.cfg) {
		if err := s.conn.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %s", ExplainError(err))
		}
	}
	s.log.Info("schema ready")
	return nil
}

func schemaDDL(c Config) []string {
	return []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			symbol LowCardinality(String),
			interval LowCardinality(String),
			open_time_ms UInt64,
			open Float64,
			high Float64,
			low Float64,
			close Float64,
			volume Int64,
			ingested_at DateTime64(3),
			version UInt64
		)
		ENGINE = ReplacingMergeTree(version)
		ORDER BY (symbol, interval, open_time_ms)
		SETTINGS index_granularity = 8192
	`, c.table(c.BarsTable)),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			run_id String,
			variant LowCardinality(String),
			session UInt8,
			zone UInt8,
			direction LowCardinality(String),
			target Float64,
			open_distance Float64,
			no_close_rules Bool,
			entry_time DateTime64(3, 'UTC'),
			entry_price Float64,
			exit_time DateTime64(3, 'UTC'),
			exit_price Float64,
			reason LowCardinality(String),
			pnl Float64,
			max_favorable Float64,
			max_adverse Float64
		)
		ENGINE = MergeTree
		ORDER BY (run_id, variant, exit_time)
	`, c.table(c.TradesTable)),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			symbol LowCardinality(String),
			year UInt16,
			file_sha256 String,
			row_count UInt64,
			source String,
			inserted_at DateTime DEFAULT now()
		)
		ENGINE = ReplacingMergeTree(inserted_at)
		ORDER BY (symbol, year)
	`, c.table(c.LedgerTable)),
	}
}

// DSNHost extracts host:port from a DSN-like URL; plain host:port passes through.
func DSNHost(dsn string) string {
	host := strings.TrimSpace(dsn)
	if host == "" {
		return "localhost:9000"
	}
	if i := strings.Index(host, "://"); i != -1 {
		host = host[i+3:]
	}
	if i := strings.LastIndex(host, "@"); i != -1 {
		host = host[i+1:]
	}
	if j := strings.IndexAny(host, "/?"); j != -1 {
		host = host[:j]
	}
	return host
}

// ExplainError renders server exceptions with their code and name.
func ExplainError(err error) string {
	var ex *chproto.Exception
	if errors.As(err, &ex) {
		return fmt.Sprintf("ClickHouse [%d] %s (%s)", ex.Code, ex.Message, ex.Name)
	}
	return err.Error()
}
