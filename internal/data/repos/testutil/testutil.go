package testutil

import (
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	types "github.com/krushibheru/agromonitor-backend/internal/domain"
	"github.com/krushibheru/agromonitor-backend/internal/platform/logger"
)

var (
	dbOnce sync.Once
	db     *gorm.DB
	dbErr  error

	logOnce sync.Once
	logg    *logger.Logger
	logErr  error
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

// DB opens the shared test database. With TEST_POSTGRES_DSN set the tests run
// against postgres; otherwise they fall back to in-memory sqlite, which the
// service supports as a first-class driver.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	dbOnce.Do(func() {
		cfg := &gorm.Config{
			DisableForeignKeyConstraintWhenMigrating: true,
			Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
		}

		dsn := os.Getenv("TEST_POSTGRES_DSN")
		if dsn != "" {
			db, dbErr = gorm.Open(postgres.Open(dsn), cfg)
			if dbErr != nil {
				return
			}
			if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
				dbErr = err
				return
			}
		} else {
			db, dbErr = gorm.Open(sqlite.Open("file::memory:?cache=shared"), cfg)
			if dbErr != nil {
				return
			}
		}

		dbErr = autoMigrateAll(db)
	})

	if dbErr != nil {
		tb.Fatalf("failed to init test db: %v", dbErr)
	}
	return db
}

func Tx(tb testing.TB, db *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := db.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() {
		_ = tx.Rollback().Error
	})
	return tx
}

func autoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.User{},
		&types.Field{},
		&types.SatelliteMetric{},
		&types.Advisory{},
		&types.JobRun{},
	)
}

// SeedUser inserts a user with unique contact and email.
func SeedUser(tb testing.TB, tx *gorm.DB) *types.User {
	tb.Helper()
	id := uuid.New()
	u := &types.User{
		ID:           id,
		Name:         "Test Farmer",
		ContactNo:    fmt.Sprintf("+91%010d", id.ID()),
		Email:        fmt.Sprintf("farmer-%s@example.com", id.String()[:8]),
		PasswordHash: "x",
		State:        "Maharashtra",
		District:     "Nashik",
	}
	if err := tx.Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

// SeedField inserts a field owned by userID with workable defaults.
func SeedField(tb testing.TB, tx *gorm.DB, userID uuid.UUID) *types.Field {
	tb.Helper()
	f := &types.Field{
		ID:       uuid.New(),
		UserID:   userID,
		Name:     "Test Field",
		Boundary: []byte(`{"type":"Polygon","coordinates":[[[73.78,19.99],[73.79,19.99],[73.79,20.0],[73.78,20.0],[73.78,19.99]]]}`),
		AreaHa:   1.2,
		Corners:  4,
		CropType: types.CropWheat,
		Season:   types.SeasonRabi,
		State:    "Maharashtra",
		District: "Nashik",
	}
	if err := tx.Create(f).Error; err != nil {
		tb.Fatalf("seed field: %v", err)
	}
	return f
}

// SeedMetric inserts a metric row for fieldID on the given day. Mutators run
// before insert so callers can shape individual readings.
func SeedMetric(tb testing.TB, tx *gorm.DB, fieldID uuid.UUID, date time.Time, mutators ...func(*types.SatelliteMetric)) *types.SatelliteMetric {
	tb.Helper()
	m := &types.SatelliteMetric{
		ID:         uuid.New(),
		FieldID:    fieldID,
		Date:       types.DateOnly(date),
		DataSource: "test",
	}
	for _, mutate := range mutators {
		mutate(m)
	}
	if err := tx.Create(m).Error; err != nil {
		tb.Fatalf("seed metric: %v", err)
	}
	return m
}

func Float(v float64) *float64 { return &v }

func Int(v int) *int { return &v }
