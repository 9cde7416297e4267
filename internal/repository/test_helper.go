package repository

import (
	"fmt"
	"testing"

	"github.com/nimasrn/intake-gateway/internal/model"
	"github.com/nimasrn/intake-gateway/pkg/pg"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testDB struct {
	*pg.DB
	rawDB *gorm.DB
}

func setupTestDB(t *testing.T) *testDB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&SubmissionEntity{}))

	return &testDB{
		DB:    pg.Wrap(db, db),
		rawDB: db,
	}
}

// row reads a submission directly, bypassing the soft-delete filter.
func (db *testDB) row(t *testing.T, id string) *model.Submission {
	t.Helper()
	var e SubmissionEntity
	require.NoError(t, db.rawDB.Where("id = ?", id).Take(&e).Error)
	return toSubmissionModel(&e)
}
