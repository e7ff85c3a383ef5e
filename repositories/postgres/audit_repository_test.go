package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/oci-onboarding/models"
	"go.uber.org/zap"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return Wrap(sqlDB, zap.NewNop()), mock
}

func TestAuditRepository_Insert(t *testing.T) {
	customer := &models.Customer{Username: "alice", Email: "alice@acme.io", CompanyName: "acme"}

	t.Run("successful onboarding", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewAuditRepository(db, zap.NewNop())

		log := models.NewAuditLog(customer).
			WithRequest("req-1", "10.0.0.1", "curl/8.0").
			WithResources(&models.Provisioned{
				Compartment: &models.Compartment{ID: "cmp-1"},
				Group:       &models.Group{ID: "grp-1"},
				Policy:      &models.Policy{ID: "pol-1"},
			}).
			Succeeded(1500 * time.Millisecond)

		mock.ExpectExec("INSERT INTO onboarding_audit_logs").
			WithArgs(
				log.ID, "req-1", "alice", "acme", "completed", "succeeded",
				"cmp-1", "grp-1", "pol-1", nil, []byte("{}"),
				"10.0.0.1", "curl/8.0", 1500, log.Timestamp,
			).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Insert(context.Background(), log))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed onboarding keeps partial resources", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewAuditRepository(db, zap.NewNop())

		log := models.NewAuditLog(customer).
			WithResources(&models.Provisioned{Compartment: &models.Compartment{ID: "cmp-1"}}).
			WithDetails(map[string]interface{}{"status_code": 409}).
			Failed(models.StageGroup, "failed to create group: Conflict", 200*time.Millisecond)

		mock.ExpectExec("INSERT INTO onboarding_audit_logs").
			WithArgs(
				log.ID, "", "alice", "acme", "group", "failed",
				"cmp-1", nil, nil, "failed to create group: Conflict", []byte(`{"status_code":409}`),
				"", "", 200, sqlmock.AnyArg(),
			).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Insert(context.Background(), log))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty details stored as empty object", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewAuditRepository(db, zap.NewNop())

		log := models.NewAuditLog(customer).Succeeded(0)
		log.Details = nil

		mock.ExpectExec("INSERT INTO onboarding_audit_logs").
			WithArgs(
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), []byte("{}"),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Insert(context.Background(), log))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error is wrapped", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewAuditRepository(db, zap.NewNop())

		mock.ExpectExec("INSERT INTO onboarding_audit_logs").
			WillReturnError(errors.New("connection reset"))

		err := repo.Insert(context.Background(), models.NewAuditLog(customer).Succeeded(0))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to insert audit log")
		assert.Contains(t, err.Error(), "connection reset")
	})
}

func TestDB_HealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

		assert.NoError(t, db.HealthCheck(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unreachable", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("connection refused"))

		err := db.HealthCheck(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database health check failed")
	})
}

func TestDB_InitSchema(t *testing.T) {
	t.Run("creates audit table", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS onboarding_audit_logs").
			WillReturnResult(sqlmock.NewResult(0, 0))

		require.NoError(t, db.InitSchema(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("propagates failure", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))

		err := db.InitSchema(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to initialize schema")
	})
}

func TestRepositoryFactory(t *testing.T) {
	db, mock := newMockDB(t)
	factory := NewRepositoryFactoryFromDB(db, zap.NewNop())

	repos := factory.NewRepositories()
	require.NotNil(t, repos.AuditLogs)
	assert.Same(t, db, factory.GetDB())

	mock.ExpectClose()
	require.NoError(t, factory.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
