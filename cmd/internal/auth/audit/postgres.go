package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is the subset of *pgxpool.Pool used by PostgresSink.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSink inserts events into <schema>.audit_log.
type PostgresSink struct {
	db    Execer
	table string
	log   *slog.Logger
}

// NewPostgresSink returns a sink writing to schema.audit_log.
func NewPostgresSink(db Execer, schema string, log *slog.Logger) *PostgresSink {
	if strings.TrimSpace(schema) == "" {
		schema = "auth"
	}
	if log == nil {
		log = slog.Default()
	}
	return &PostgresSink{
		db:    db,
		table: pgx.Identifier{schema, "audit_log"}.Sanitize(),
		log:   log,
	}
}

func (s *PostgresSink) Record(ctx context.Context, ev Event) {
	if s == nil || s.db == nil {
		return
	}

	action := strings.TrimSpace(ev.Action)
	if action == "" {
		return
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	var ipVal any
	if ev.IP != nil {
		ipVal = ev.IP.String()
	}

	metaVal := "{}"
	if len(ev.Meta) > 0 {
		if b, err := json.Marshal(ev.Meta); err == nil {
			metaVal = string(b)
		}
	}

	ctx, cancel := detach(ctx)
	defer cancel()

	_, err := s.db.Exec(ctx, `
		INSERT INTO `+s.table+` (
			action, account_id, ip, user_agent, meta, created_at
		) VALUES ($1, $2, $3::inet, $4, $5::jsonb, $6)
	`, action, trimOrNil(ev.AccountID), ipVal, trimOrNil(ev.UserAgent), metaVal, at)
	if err != nil {
		s.log.Error("auth.audit.insert.fail", "err", err, "action", action)
	}
}

func trimOrNil(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}
