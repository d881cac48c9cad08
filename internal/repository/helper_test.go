package repository

import (
	"fmt"
	"strings"
	"testing"

	"github.com/gSa1fe/isusP-sub000/internal/infrastructure/database"
	"github.com/gSa1fe/isusP-sub000/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func newPendingTopup(no string, userID int64) *model.TopupRequest {
	return &model.TopupRequest{
		TopupNo:     no,
		UserID:      userID,
		Amount:      decimal.NewFromInt(100),
		CoinsAmount: 1000,
		Status:      model.TopupStatusPending,
	}
}
