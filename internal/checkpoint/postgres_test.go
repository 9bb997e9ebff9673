package checkpoint

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riq-labs/faculty-pipeline/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return &PostgresStore{pool: mock}, mock
}

func TestPostgres_SavePhase(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	snap := testSnapshot("MIT", model.PhaseRoster)
	mock.ExpectExec(`INSERT INTO checkpoints`).
		WithArgs("MIT", "phase1_roster", "complete", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SavePhase(context.Background(), snap))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SavePhase_UnknownPhase(t *testing.T) {
	s, _ := newMockPostgresStore(t)
	snap := testSnapshot("MIT", model.PhaseID("bogus"))
	assert.Error(t, s.SavePhase(context.Background(), snap))
}

func TestPostgres_LoadPhase_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT snapshot FROM checkpoints WHERE institution = \$1 AND phase = \$2`).
		WithArgs("MIT", "phase1_roster").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.LoadPhase(context.Background(), "MIT", model.PhaseRoster)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_LoadPhase_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	snap := testSnapshot("MIT", model.PhaseEmails)
	data, err := json.Marshal(snap)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT snapshot FROM checkpoints`).
		WithArgs("MIT", "phase3b_emails").
		WillReturnRows(pgxmock.NewRows([]string{"snapshot"}).AddRow(data))

	got, err := s.LoadPhase(context.Background(), "MIT", model.PhaseEmails)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.PhaseEmails, got.Phase)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Latest_PicksFurthestPhase(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	first, err := json.Marshal(testSnapshot("MIT", model.PhaseRoster))
	require.NoError(t, err)
	second, err := json.Marshal(testSnapshot("MIT", model.PhaseWebsites))
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT snapshot FROM checkpoints WHERE institution = \$1`).
		WithArgs("MIT").
		WillReturnRows(pgxmock.NewRows([]string{"snapshot"}).AddRow(second).AddRow(first))

	got, err := s.Latest(context.Background(), "MIT")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.PhaseWebsites, got.Phase)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Clear(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM checkpoints WHERE institution = \$1`).
		WithArgs("MIT").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	require.NoError(t, s.Clear(context.Background(), "MIT"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveFinal(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	result := &model.RunResult{
		Metadata: model.RunMetadata{
			RunID:       "run-1",
			Institution: "MIT",
			StartedAt:   time.Now().UTC(),
		},
		Faculty: []model.FacultyRecord{
			{ID: "A1", DisplayName: "Jane Smith", HIndex: 45},
		},
	}
	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs("run-1", "MIT", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`DELETE FROM faculty WHERE institution = \$1`).
		WithArgs("MIT").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"faculty"}, facultyColumns).
		WillReturnResult(1)

	require.NoError(t, s.SaveFinal(context.Background(), result))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_LoadFinal_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT result FROM runs WHERE institution = \$1`).
		WithArgs("MIT").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.LoadFinal(context.Background(), "MIT")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
