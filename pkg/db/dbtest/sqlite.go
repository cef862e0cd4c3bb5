// Package dbtest opens isolated in-memory SQLite databases for repository and service tests.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/repairdesk-backend/pkg/db/models"
	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
)

// Open returns a fresh database migrated with every domain table. The pool is
// pinned to one connection so concurrent transactions serialize instead of
// failing with SQLITE_LOCKED.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:repairdesk_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, conn.AutoMigrate(
		&models.RepairRequest{},
		&models.StatusHistoryEntry{},
		&models.Assignment{},
		&models.Invoice{},
		&models.InvoiceItem{},
		&models.TicketSequence{},
		&models.OutboxEvent{},
		&models.OutboxDLQ{},
	))
	return conn
}

// SeedRequest inserts a Received dropoff request; opts adjust fields before insert.
func SeedRequest(t *testing.T, conn *gorm.DB, opts ...func(*models.RepairRequest)) *models.RepairRequest {
	t.Helper()
	req := &models.RepairRequest{
		TicketCode:       "241029LTD" + uuid.NewString()[:6],
		CustomerID:       uuid.New(),
		DeviceType:       "laptop",
		Brand:            "Lenovo",
		Model:            "T14",
		IssueDescription: "does not power on",
		ServiceType:      enums.ServiceTypeDropoff,
		Priority:         enums.PriorityNormal,
		Status:           enums.RequestStatusReceived,
		Version:          1,
	}
	for _, opt := range opts {
		opt(req)
	}
	require.NoError(t, conn.Create(req).Error)
	return req
}
