package registry

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/agora/pkg/contracts"
)

func TestValidateAgent(t *testing.T) {
	valid := &Agent{ID: "agent-1", PublicKey: "aabb", Version: "1.2.0"}
	assert.NoError(t, ValidateAgent(valid))

	cases := []struct {
		name  string
		agent *Agent
		field string
	}{
		{"missing id", &Agent{PublicKey: "aabb"}, "id"},
		{"missing key", &Agent{ID: "agent-1"}, "public_key"},
		{"bad semver", &Agent{ID: "agent-1", PublicKey: "aabb", Version: "nope"}, "version"},
		{"incompatible major", &Agent{ID: "agent-1", PublicKey: "aabb", Version: "2.0.0"}, "version"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateAgent(tc.agent)
			var verr *contracts.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}

	// Version is optional at registration.
	assert.NoError(t, ValidateAgent(&Agent{ID: "agent-1", PublicKey: "aabb"}))
}

func TestPostgresRegistryRegister(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	reg := NewPostgresRegistry(db)

	mock.ExpectExec("INSERT INTO agents").
		WithArgs("agent-1", "Alpha", "aabb", []byte(`["translate"]`), "1.0.0", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = reg.Register(context.Background(), &Agent{
		ID:           "agent-1",
		Name:         "Alpha",
		PublicKey:    "aabb",
		Capabilities: []string{"translate"},
		Version:      "1.0.0",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRegistryGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	reg := NewPostgresRegistry(db)
	registeredAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "name", "public_key", "capabilities", "version", "registered_at"}).
		AddRow("agent-1", "Alpha", "aabb", []byte(`["translate","summarize"]`), "1.0.0", registeredAt)
	mock.ExpectQuery("SELECT id, name, public_key, capabilities, version, registered_at FROM agents").
		WithArgs("agent-1").
		WillReturnRows(rows)

	a, err := reg.Get(context.Background(), "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "agent-1", a.ID)
	assert.Equal(t, []string{"translate", "summarize"}, a.Capabilities)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRegistryGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	reg := NewPostgresRegistry(db)
	mock.ExpectQuery("SELECT id, name, public_key, capabilities, version, registered_at FROM agents").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "public_key", "capabilities", "version", "registered_at"}))

	_, err = reg.Get(context.Background(), "ghost")
	var nf *contracts.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "agent", nf.Kind)
}

func TestPostgresRegistryListByCapability(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	reg := NewPostgresRegistry(db)
	registeredAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "name", "public_key", "capabilities", "version", "registered_at"}).
		AddRow("agent-1", "Alpha", "aabb", []byte(`["translate"]`), "1.0.0", registeredAt).
		AddRow("agent-2", "Beta", "ccdd", []byte(`["translate","ocr"]`), "1.1.0", registeredAt)
	mock.ExpectQuery("SELECT id, name, public_key, capabilities, version, registered_at").
		WithArgs([]byte(`["translate"]`)).
		WillReturnRows(rows)

	agents, err := reg.ListByCapability(context.Background(), "translate")
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, "agent-1", agents[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
