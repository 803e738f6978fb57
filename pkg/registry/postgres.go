package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/agora/pkg/contracts"
)

// PostgresRegistry implements Registry with SQL persistence.
type PostgresRegistry struct {
	db *sql.DB
}

func NewPostgresRegistry(db *sql.DB) *PostgresRegistry {
	return &PostgresRegistry{db: db}
}

const pgRegistrySchema = `
CREATE TABLE IF NOT EXISTS agents (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	public_key TEXT NOT NULL,
	capabilities JSONB NOT NULL DEFAULT '[]',
	version TEXT NOT NULL DEFAULT '',
	registered_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_agents_capabilities ON agents USING GIN (capabilities);
`

func (r *PostgresRegistry) Init(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, pgRegistrySchema)
	return err
}

func (r *PostgresRegistry) Register(ctx context.Context, a *Agent) error {
	if err := ValidateAgent(a); err != nil {
		return err
	}
	capsJSON, err := json.Marshal(a.Capabilities)
	if err != nil {
		return fmt.Errorf("marshal capabilities: %w", err)
	}
	registeredAt := a.RegisteredAt
	if registeredAt.IsZero() {
		registeredAt = time.Now().UTC()
	}

	// Re-registration rotates the key and capability set in place.
	query := `
		INSERT INTO agents (id, name, public_key, capabilities, version, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET name = $2, public_key = $3, capabilities = $4, version = $5
	`
	_, err = r.db.ExecContext(ctx, query, a.ID, a.Name, a.PublicKey, capsJSON, a.Version, registeredAt)
	if err != nil {
		return fmt.Errorf("register agent: %w", err)
	}
	return nil
}

func (r *PostgresRegistry) Get(ctx context.Context, id string) (*Agent, error) {
	query := `SELECT id, name, public_key, capabilities, version, registered_at FROM agents WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &contracts.NotFoundError{Kind: "agent", ID: id}
	}
	return a, err
}

func (r *PostgresRegistry) ListByCapability(ctx context.Context, capability string) ([]*Agent, error) {
	query := `SELECT id, name, public_key, capabilities, version, registered_at
		FROM agents WHERE capabilities @> $1 ORDER BY id`
	capJSON, err := json.Marshal([]string{capability})
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, capJSON)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*Agent, error) {
	var (
		a        Agent
		capsJSON []byte
	)
	if err := row.Scan(&a.ID, &a.Name, &a.PublicKey, &capsJSON, &a.Version, &a.RegisteredAt); err != nil {
		return nil, err
	}
	if len(capsJSON) > 0 {
		if err := json.Unmarshal(capsJSON, &a.Capabilities); err != nil {
			return nil, fmt.Errorf("corrupt capabilities JSON for agent %s: %w", a.ID, err)
		}
	}
	return &a, nil
}
