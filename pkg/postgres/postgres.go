package postgres

import (
	"context"
	"io/fs"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

type DB struct {
	DSN          string        `yaml:"dsn" envconfig:"DATABASE_URL" required:"true" json:"-"`
	MaxOpenConns int           `yaml:"maxOpenConns" envconfig:"DB_MAX_OPEN_CONNS" default:"10"`
	ConnTimeout  time.Duration `yaml:"connTimeout" envconfig:"DB_CONN_TIMEOUT" default:"5s"`
}

// NormalizeDSN rewrites the legacy postgres:// scheme, still emitted by some
// hosting providers, to the canonical postgresql:// one.
func NormalizeDSN(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") {
		return "postgresql://" + strings.TrimPrefix(dsn, "postgres://")
	}
	return dsn
}

// NewPostgresDB connects via the pgx stdlib driver and applies embedded goose
// migrations. Migrations are idempotent: re-running them at startup is safe.
func NewPostgresDB(ctx context.Context, cfg *DB, migrations fs.FS) (*sqlx.DB, error) {
	connCtx, cancel := context.WithTimeout(ctx, cfg.ConnTimeout)
	defer cancel()

	db, err := sqlx.ConnectContext(connCtx, "pgx", NormalizeDSN(cfg.DSN))
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, errors.Wrap(err, "goose dialect")
	}
	if err := goose.Up(db.DB, "."); err != nil {
		return nil, errors.Wrap(err, "migrate")
	}

	return db, nil
}
