package outbox

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/repairdesk-backend/pkg/db/dbtest"
	"github.com/angelmondragon/repairdesk-backend/pkg/db/models"
	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
)

func TestDLQListFiltersNewestFirst(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewDLQRepository(conn)
	ctx := context.Background()
	base := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	ticket := uuid.New()

	older := deadLetter(enums.EventNotificationRequested, enums.OutboxDLQReasonExpired, ticket, base)
	newer := deadLetter(enums.EventNotificationRequested, enums.OutboxDLQReasonNonRetryable, ticket, base.Add(time.Hour))
	other := deadLetter(enums.EventRequestCreated, enums.OutboxDLQReasonMaxAttempts, uuid.New(), base.Add(2*time.Hour))
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		for _, entry := range []models.OutboxDLQ{older, newer, other} {
			if err := repo.InsertTx(tx, entry); err != nil {
				return err
			}
		}
		return nil
	}))

	all, err := repo.List(ctx, DLQFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, other.EventID, all[0].EventID)
	assert.Equal(t, older.EventID, all[2].EventID)

	forTicket, err := repo.List(ctx, DLQFilter{AggregateID: &ticket})
	require.NoError(t, err)
	require.Len(t, forTicket, 2)
	assert.Equal(t, newer.EventID, forTicket[0].EventID)

	expired, err := repo.List(ctx, DLQFilter{EventType: enums.EventNotificationRequested, Reason: enums.OutboxDLQReasonExpired})
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, older.EventID, expired[0].EventID)

	limited, err := repo.List(ctx, DLQFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestDLQInsertTruncatesLongErrors(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewDLQRepository(conn)
	entry := deadLetter(enums.EventQuoteReminder, enums.OutboxDLQReasonMaxAttempts, uuid.New(), time.Now().UTC())
	long := strings.Repeat("x", maxDLQErrorLen+10)
	entry.ErrorMessage = &long

	require.Error(t, repo.InsertTx(nil, entry))
	require.NoError(t, repo.InsertTx(conn, entry))

	rows, err := repo.List(context.Background(), DLQFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].ErrorMessage)
	assert.Len(t, *rows[0].ErrorMessage, maxDLQErrorLen)
}

func deadLetter(eventType enums.OutboxEventType, reason enums.OutboxDLQErrorReason, aggregateID uuid.UUID, failedAt time.Time) models.OutboxDLQ {
	message := string(reason)
	return models.OutboxDLQ{
		EventID:       uuid.New(),
		EventType:     eventType,
		AggregateType: enums.AggregateRepairRequest,
		AggregateID:   aggregateID,
		Payload:       json.RawMessage(`{"version":1,"data":{}}`),
		ErrorReason:   reason,
		ErrorMessage:  &message,
		AttemptCount:  3,
		FailedAt:      failedAt,
	}
}
