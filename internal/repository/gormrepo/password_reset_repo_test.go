package gormrepo_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dom/neighbor-group/internal/domain"
	"github.com/dom/neighbor-group/internal/repository/gormrepo"
	"github.com/dom/neighbor-group/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestPasswordResetRepository_Claim(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repo := gormrepo.NewPasswordResetRepository(testDB.DB)
	ctx := context.Background()

	user, _ := testutil.NewUserBuilder().Build(t, testDB.DB)
	reset := &domain.PasswordReset{ID: "ticket-1", UserID: user.ID, Code: "123456", Status: domain.ResetUnclaimed}
	require.NoError(t, repo.Create(ctx, reset))

	claimed, err := repo.Claim(ctx, "ticket-1")
	require.NoError(t, err)
	assert.True(t, claimed)

	got, err := repo.GetByID(ctx, "ticket-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ResetClaimed, got.Status)

	claimed, err = repo.Claim(ctx, "ticket-1")
	require.NoError(t, err)
	assert.False(t, claimed, "a ticket is claimed once")

	claimed, err = repo.Claim(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, claimed)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPasswordResetRepository_ConcurrentClaim(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repo := gormrepo.NewPasswordResetRepository(testDB.DB)
	ctx := context.Background()

	user, _ := testutil.NewUserBuilder().Build(t, testDB.DB)
	require.NoError(t, repo.Create(ctx, &domain.PasswordReset{
		ID: "ticket-race", UserID: user.ID, Code: "654321", Status: domain.ResetUnclaimed,
	}))

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.Claim(ctx, "ticket-race")
			if err == nil && ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("gorm.Open error: %v", err)
	}
	return db, mock
}

func TestPasswordResetRepository_ClaimSQL(t *testing.T) {
	tests := []struct {
		name      string
		expect    func(sqlmock.Sqlmock)
		wantClaim bool
		wantErr   bool
	}{
		{
			name: "one row updated",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`(?s)^UPDATE "password_resets" SET .*WHERE \(?id = \$\d+ AND status = \$\d+\)?`).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			wantClaim: true,
		},
		{
			name: "already claimed",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`(?s)^UPDATE "password_resets" SET`).
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
		},
		{
			name: "database error",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`(?s)^UPDATE "password_resets" SET`).
					WillReturnError(errors.New("db down"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			tt.expect(mock)

			claimed, err := gormrepo.NewPasswordResetRepository(db).Claim(context.Background(), "ticket")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantClaim, claimed)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAuthLogRepository_ListSinceError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`(?s)^SELECT \* FROM "auth_logs" WHERE`).
		WillReturnError(errors.New("db down"))

	events, err := gormrepo.NewAuthLogRepository(db).ListSince(context.Background(), "10.0.0.1", "login error", time.Now().UTC())
	assert.Error(t, err)
	assert.Nil(t, events)
	assert.NoError(t, mock.ExpectationsWereMet())
}
