package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/agora/pkg/contracts"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (or creates) the marketplace database and runs migrations
// for every repository.
func OpenSQLite(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return db, nil
}

// SQLiteContractStore persists contracts in SQLite.
type SQLiteContractStore struct {
	db *sql.DB
}

func NewSQLiteContractStore(db *sql.DB) (*SQLiteContractStore, error) {
	s := &SQLiteContractStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteContractStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS contracts (
		id TEXT PRIMARY KEY,
		issuer_id TEXT NOT NULL,
		intent TEXT NOT NULL,
		context JSON,
		reward REAL NOT NULL,
		deadline DATETIME,
		bidding_window_ns INTEGER NOT NULL,
		status TEXT NOT NULL,
		awarded_to TEXT NOT NULL DEFAULT '',
		capability TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		awarded_at DATETIME,
		completed_at DATETIME,
		version TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_contracts_status ON contracts(status);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

const contractColumns = `id, issuer_id, intent, context, reward, deadline, bidding_window_ns,
	status, awarded_to, capability, created_at, awarded_at, completed_at, version`

func (s *SQLiteContractStore) Create(ctx context.Context, c *contracts.Contract) error {
	ctxJSON, _ := json.Marshal(c.Context)
	query := `INSERT INTO contracts (` + contractColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.IssuerID, c.Intent, string(ctxJSON), c.Reward,
		nullableTime(c.Deadline), int64(c.BiddingWindow), string(c.Status),
		c.AwardedTo, c.Capability, formatTime(c.CreatedAt),
		nullableTime(c.AwardedAt), nullableTime(c.CompletedAt), c.Version,
	)
	if err != nil {
		return fmt.Errorf("insert contract: %w", err)
	}
	return nil
}

func (s *SQLiteContractStore) Get(ctx context.Context, id string) (*contracts.Contract, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = ?`, id)
	c, err := scanContract(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &contracts.NotFoundError{Kind: "contract", ID: id}
	}
	return c, err
}

func (s *SQLiteContractStore) Update(ctx context.Context, c *contracts.Contract) error {
	ctxJSON, _ := json.Marshal(c.Context)
	query := `UPDATE contracts SET issuer_id = ?, intent = ?, context = ?, reward = ?,
		deadline = ?, bidding_window_ns = ?, status = ?, awarded_to = ?, capability = ?,
		awarded_at = ?, completed_at = ?, version = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query,
		c.IssuerID, c.Intent, string(ctxJSON), c.Reward,
		nullableTime(c.Deadline), int64(c.BiddingWindow), string(c.Status),
		c.AwardedTo, c.Capability, nullableTime(c.AwardedAt),
		nullableTime(c.CompletedAt), c.Version, c.ID,
	)
	if err != nil {
		return fmt.Errorf("update contract: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &contracts.NotFoundError{Kind: "contract", ID: c.ID}
	}
	return nil
}

func (s *SQLiteContractStore) CASStatus(ctx context.Context, id string, from, to contracts.ContractStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE contracts SET status = ? WHERE id = ? AND status = ?`,
		string(to), id, string(from))
	if err != nil {
		return false, fmt.Errorf("cas status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLiteContractStore) Award(ctx context.Context, id, winner string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE contracts SET status = ?, awarded_to = ?, awarded_at = ?
		 WHERE id = ? AND status = ? AND awarded_to = ''`,
		string(contracts.StatusAwarded), winner, formatTime(at), id, string(contracts.StatusBidding))
	if err != nil {
		return false, fmt.Errorf("award contract: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLiteContractStore) ListByStatus(ctx context.Context, status contracts.ContractStatus) ([]*contracts.Contract, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+contractColumns+` FROM contracts WHERE status = ? ORDER BY id`, string(status))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*contracts.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContract(row rowScanner) (*contracts.Contract, error) {
	var (
		c           contracts.Contract
		ctxJSON     sql.NullString
		deadline    sql.NullString
		windowNs    int64
		status      string
		createdAt   string
		awardedAt   sql.NullString
		completedAt sql.NullString
	)
	err := row.Scan(&c.ID, &c.IssuerID, &c.Intent, &ctxJSON, &c.Reward, &deadline,
		&windowNs, &status, &c.AwardedTo, &c.Capability, &createdAt, &awardedAt,
		&completedAt, &c.Version)
	if err != nil {
		return nil, err
	}
	if ctxJSON.Valid && ctxJSON.String != "" && ctxJSON.String != "null" {
		if err := json.Unmarshal([]byte(ctxJSON.String), &c.Context); err != nil {
			return nil, fmt.Errorf("corrupt context JSON for contract %s: %w", c.ID, err)
		}
	}
	c.BiddingWindow = time.Duration(windowNs)
	c.Status = contracts.ContractStatus(status)
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if c.Deadline, err = parseNullableTime(deadline); err != nil {
		return nil, err
	}
	if c.AwardedAt, err = parseNullableTime(awardedAt); err != nil {
		return nil, err
	}
	if c.CompletedAt, err = parseNullableTime(completedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// SQLiteBidStore persists bids with an upsert on (contract_id, agent_id).
type SQLiteBidStore struct {
	db *sql.DB
}

func NewSQLiteBidStore(db *sql.DB) (*SQLiteBidStore, error) {
	s := &SQLiteBidStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteBidStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS bids (
		id TEXT NOT NULL,
		contract_id TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		price REAL NOT NULL,
		promised_latency_ns INTEGER NOT NULL,
		confidence REAL NOT NULL,
		submitted_at DATETIME NOT NULL,
		signature TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (contract_id, agent_id)
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteBidStore) Put(ctx context.Context, b *contracts.Bid) error {
	// Last write wins only for a strictly newer server-received timestamp.
	query := `INSERT INTO bids (id, contract_id, agent_id, price, promised_latency_ns, confidence, submitted_at, signature)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (contract_id, agent_id) DO UPDATE SET
			id = excluded.id,
			price = excluded.price,
			promised_latency_ns = excluded.promised_latency_ns,
			confidence = excluded.confidence,
			submitted_at = excluded.submitted_at,
			signature = excluded.signature
		WHERE excluded.submitted_at >= bids.submitted_at`
	_, err := s.db.ExecContext(ctx, query,
		b.ID, b.ContractID, b.AgentID, b.Price, int64(b.PromisedLatency),
		b.Confidence, formatTime(b.SubmittedAt), b.Signature)
	if err != nil {
		return fmt.Errorf("upsert bid: %w", err)
	}
	return nil
}

func (s *SQLiteBidStore) ListByContract(ctx context.Context, contractID string) ([]*contracts.Bid, error) {
	query := `SELECT id, contract_id, agent_id, price, promised_latency_ns, confidence, submitted_at, signature
		FROM bids WHERE contract_id = ? ORDER BY submitted_at ASC, agent_id ASC`
	rows, err := s.db.QueryContext(ctx, query, contractID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*contracts.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SQLiteBidStore) Get(ctx context.Context, contractID, agentID string) (*contracts.Bid, error) {
	query := `SELECT id, contract_id, agent_id, price, promised_latency_ns, confidence, submitted_at, signature
		FROM bids WHERE contract_id = ? AND agent_id = ?`
	row := s.db.QueryRowContext(ctx, query, contractID, agentID)
	b, err := scanBid(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &contracts.NotFoundError{Kind: "bid", ID: contractID + "/" + agentID}
	}
	return b, err
}

func scanBid(row rowScanner) (*contracts.Bid, error) {
	var (
		b           contracts.Bid
		latencyNs   int64
		submittedAt string
	)
	err := row.Scan(&b.ID, &b.ContractID, &b.AgentID, &b.Price, &latencyNs,
		&b.Confidence, &submittedAt, &b.Signature)
	if err != nil {
		return nil, err
	}
	b.PromisedLatency = time.Duration(latencyNs)
	if b.SubmittedAt, err = parseTime(submittedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

// SQLiteDeliveryStore persists deliveries, one active per contract.
type SQLiteDeliveryStore struct {
	db *sql.DB
}

func NewSQLiteDeliveryStore(db *sql.DB) (*SQLiteDeliveryStore, error) {
	s := &SQLiteDeliveryStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteDeliveryStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS deliveries (
		contract_id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		payload_ref TEXT NOT NULL,
		submitted_at DATETIME NOT NULL,
		outcome TEXT NOT NULL,
		validated_at DATETIME,
		reason TEXT NOT NULL DEFAULT ''
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteDeliveryStore) Put(ctx context.Context, d *contracts.Delivery) error {
	// Replace only a pending delivery; a validated one is immutable.
	query := `INSERT INTO deliveries (contract_id, agent_id, payload_ref, submitted_at, outcome, validated_at, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (contract_id) DO UPDATE SET
			agent_id = excluded.agent_id,
			payload_ref = excluded.payload_ref,
			submitted_at = excluded.submitted_at,
			outcome = excluded.outcome,
			validated_at = excluded.validated_at,
			reason = excluded.reason
		WHERE deliveries.outcome = 'PENDING'`
	res, err := s.db.ExecContext(ctx, query,
		d.ContractID, d.AgentID, d.PayloadRef, formatTime(d.SubmittedAt),
		string(d.Outcome), nullableTime(d.ValidatedAt), d.Reason)
	if err != nil {
		return fmt.Errorf("upsert delivery: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &contracts.StateConflictError{
			ContractID: d.ContractID,
			Operation:  "replace validated delivery",
		}
	}
	return nil
}

func (s *SQLiteDeliveryStore) Get(ctx context.Context, contractID string) (*contracts.Delivery, error) {
	query := `SELECT contract_id, agent_id, payload_ref, submitted_at, outcome, validated_at, reason
		FROM deliveries WHERE contract_id = ?`
	row := s.db.QueryRowContext(ctx, query, contractID)

	var (
		d           contracts.Delivery
		submittedAt string
		outcome     string
		validatedAt sql.NullString
	)
	err := row.Scan(&d.ContractID, &d.AgentID, &d.PayloadRef, &submittedAt, &outcome, &validatedAt, &d.Reason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &contracts.NotFoundError{Kind: "delivery", ID: contractID}
	}
	if err != nil {
		return nil, err
	}
	d.Outcome = contracts.ValidationOutcome(outcome)
	if d.SubmittedAt, err = parseTime(submittedAt); err != nil {
		return nil, err
	}
	if d.ValidatedAt, err = parseNullableTime(validatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

// SQLitePerformanceStore is the append-only performance history.
type SQLitePerformanceStore struct {
	db *sql.DB
}

func NewSQLitePerformanceStore(db *sql.DB) (*SQLitePerformanceStore, error) {
	s := &SQLitePerformanceStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLitePerformanceStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS performance_records (
		agent_id TEXT NOT NULL,
		contract_id TEXT NOT NULL,
		success INTEGER NOT NULL,
		actual_latency_ns INTEGER NOT NULL,
		promised_latency_ns INTEGER NOT NULL,
		rating INTEGER,
		reward REAL NOT NULL DEFAULT 0,
		recorded_at DATETIME NOT NULL,
		PRIMARY KEY (agent_id, contract_id)
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLitePerformanceStore) Append(ctx context.Context, rec *contracts.PerformanceRecord) error {
	// Written exactly once per concluded contract; a duplicate write is a
	// no-op rather than a second row.
	query := `INSERT INTO performance_records
		(agent_id, contract_id, success, actual_latency_ns, promised_latency_ns, rating, reward, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (agent_id, contract_id) DO NOTHING`
	var rating any
	if rec.Rating != nil {
		rating = *rec.Rating
	}
	_, err := s.db.ExecContext(ctx, query,
		rec.AgentID, rec.ContractID, rec.Success, int64(rec.ActualLatency),
		int64(rec.PromisedLatency), rating, rec.Reward, formatTime(rec.RecordedAt))
	if err != nil {
		return fmt.Errorf("append performance record: %w", err)
	}
	return nil
}

func (s *SQLitePerformanceStore) ListByAgent(ctx context.Context, agentID string) ([]contracts.PerformanceRecord, error) {
	query := `SELECT agent_id, contract_id, success, actual_latency_ns, promised_latency_ns, rating, reward, recorded_at
		FROM performance_records WHERE agent_id = ? ORDER BY recorded_at ASC`
	rows, err := s.db.QueryContext(ctx, query, agentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []contracts.PerformanceRecord
	for rows.Next() {
		var (
			rec        contracts.PerformanceRecord
			actualNs   int64
			promisedNs int64
			rating     sql.NullInt64
			recordedAt string
		)
		if err := rows.Scan(&rec.AgentID, &rec.ContractID, &rec.Success, &actualNs,
			&promisedNs, &rating, &rec.Reward, &recordedAt); err != nil {
			return nil, err
		}
		rec.ActualLatency = time.Duration(actualNs)
		rec.PromisedLatency = time.Duration(promisedNs)
		if rating.Valid {
			r := int(rating.Int64)
			rec.Rating = &r
		}
		if rec.RecordedAt, err = parseTime(recordedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLitePerformanceStore) ListAgents(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT agent_id FROM performance_records ORDER BY agent_id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var agentID string
		if err := rows.Scan(&agentID); err != nil {
			return nil, err
		}
		out = append(out, agentID)
	}
	return out, rows.Err()
}

func (s *SQLitePerformanceStore) TotalReward(ctx context.Context, agentID string) (float64, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(reward), 0) FROM performance_records WHERE agent_id = ?`, agentID)
	var total float64
	if err := row.Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// timeLayout keeps fractional seconds fixed width so lexicographic order
// over the stored TEXT equals chronological order. The bid upsert and the
// submitted_at ORDER BY compare these values as strings; RFC3339Nano trims
// trailing zeros and breaks that equivalence.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseNullableTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
