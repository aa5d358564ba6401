package postgresql_test

import (
	"context"
	"testing"
	"time"

	"github.com/cmlabs-hris/biometric-attendance/internal/domain/notification"
	"github.com/cmlabs-hris/biometric-attendance/internal/repository/postgresql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationRepository_CreateBatchAndListRecent(t *testing.T) {
	db := newTestDB(t)
	repo := postgresql.NewNotificationRepository(db)
	ctx := context.Background()

	personID := "p1"
	now := time.Now().UTC().Truncate(time.Millisecond)
	err := repo.CreateBatch(ctx, []*notification.Notification{
		{ID: uuid.New().String(), Event: notification.EventNewRecord, PersonID: &personID, Data: map[string]interface{}{"type": "check_in"}, CreatedAt: now},
		{Event: notification.EventUnknownUser, Data: map[string]interface{}{"cedula": "5555"}, CreatedAt: now.Add(time.Second)},
	})
	require.NoError(t, err)

	got, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, notification.EventUnknownUser, got[0].Event)
	assert.Nil(t, got[0].PersonID)
	assert.Equal(t, "5555", got[0].Data["cedula"])
	assert.Equal(t, notification.EventNewRecord, got[1].Event)
	require.NotNil(t, got[1].PersonID)
	assert.Equal(t, "p1", *got[1].PersonID)
}
