package gormrepo_test

import (
	"context"
	"testing"
	"time"

	"github.com/dom/neighbor-group/internal/domain"
	"github.com/dom/neighbor-group/internal/repository/gormrepo"
	"github.com/dom/neighbor-group/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestAuthLogRepository_ListSince(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repo := gormrepo.NewAuthLogRepository(testDB.DB)
	ctx := context.Background()

	dayStart := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	loginError := domain.ErrorKind(domain.EventLogin)

	testutil.NewAuthEventBuilder("10.0.0.1", loginError).At(dayStart.Add(-time.Second)).Build(t, testDB.DB)
	testutil.NewAuthEventBuilder("10.0.0.1", loginError).At(dayStart).Build(t, testDB.DB)
	testutil.NewAuthEventBuilder("10.0.0.1", loginError).At(dayStart.Add(90 * time.Minute)).Build(t, testDB.DB)
	testutil.NewAuthEventBuilder("10.0.0.1", domain.EventLogin).At(dayStart.Add(time.Hour)).Build(t, testDB.DB)
	testutil.NewAuthEventBuilder("10.0.0.2", loginError).At(dayStart.Add(time.Hour)).Build(t, testDB.DB)

	tests := []struct {
		name      string
		ip        string
		event     string
		wantCount int
	}{
		{name: "errors for ip since midnight", ip: "10.0.0.1", event: loginError, wantCount: 2},
		{name: "successes are a separate kind", ip: "10.0.0.1", event: domain.EventLogin, wantCount: 1},
		{name: "other ip", ip: "10.0.0.2", event: loginError, wantCount: 1},
		{name: "no rows", ip: "10.0.0.3", event: loginError, wantCount: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := repo.ListSince(ctx, tt.ip, tt.event, dayStart)
			require.NoError(t, err)
			assert.Len(t, events, tt.wantCount)
		})
	}

	t.Run("newest first", func(t *testing.T) {
		events, err := repo.ListSince(ctx, "10.0.0.1", loginError, dayStart)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.True(t, events[0].CreatedAt.After(events[1].CreatedAt))
	})
}

func TestAuthLogRepository_CreateKeepsMetadata(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repo := gormrepo.NewAuthLogRepository(testDB.DB)
	ctx := context.Background()

	now := time.Now().UTC()
	event := &domain.AuthEvent{
		IPAddress:   "10.0.0.9",
		Event:       domain.EventSignup,
		Description: "Signup: Ann <ann@example.com> (1)",
		Metadata:    datatypes.JSONMap{"user_agent": "test-agent"},
		CreatedAt:   now,
	}
	require.NoError(t, repo.Create(ctx, event))
	assert.NotZero(t, event.ID)

	events, err := repo.ListSince(ctx, "10.0.0.9", domain.EventSignup, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "test-agent", events[0].Metadata["user_agent"])
	assert.Equal(t, event.Description, events[0].Description)
}
