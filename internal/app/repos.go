package app

import (
	"gorm.io/gorm"

	"github.com/krushibheru/agromonitor-backend/internal/data/repos"
	"github.com/krushibheru/agromonitor-backend/internal/platform/logger"
)

type Repos struct {
	User     repos.UserRepo
	Field    repos.FieldRepo
	Metric   repos.MetricRepo
	Advisory repos.AdvisoryRepo
	JobRun   repos.JobRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		User:     repos.NewUserRepo(db, log),
		Field:    repos.NewFieldRepo(db, log),
		Metric:   repos.NewMetricRepo(db, log),
		Advisory: repos.NewAdvisoryRepo(db, log),
		JobRun:   repos.NewJobRunRepo(db, log),
	}
}
