package repos

import (
	"gorm.io/gorm"

	"github.com/krushibheru/agromonitor-backend/internal/data/repos/advisory"
	"github.com/krushibheru/agromonitor-backend/internal/data/repos/field"
	"github.com/krushibheru/agromonitor-backend/internal/data/repos/jobs"
	"github.com/krushibheru/agromonitor-backend/internal/data/repos/metric"
	"github.com/krushibheru/agromonitor-backend/internal/data/repos/user"
	"github.com/krushibheru/agromonitor-backend/internal/platform/logger"
)

type UserRepo = user.UserRepo
type FieldRepo = field.FieldRepo
type MetricRepo = metric.MetricRepo
type AdvisoryRepo = advisory.AdvisoryRepo
type JobRunRepo = jobs.JobRunRepo

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo { return user.NewUserRepo(db, baseLog) }

func NewFieldRepo(db *gorm.DB, baseLog *logger.Logger) FieldRepo {
	return field.NewFieldRepo(db, baseLog)
}

func NewMetricRepo(db *gorm.DB, baseLog *logger.Logger) MetricRepo {
	return metric.NewMetricRepo(db, baseLog)
}

func NewAdvisoryRepo(db *gorm.DB, baseLog *logger.Logger) AdvisoryRepo {
	return advisory.NewAdvisoryRepo(db, baseLog)
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return jobs.NewJobRunRepo(db, baseLog)
}
