package domain

import (
	"github.com/krushibheru/agromonitor-backend/internal/domain/advisory"
	"github.com/krushibheru/agromonitor-backend/internal/domain/field"
	"github.com/krushibheru/agromonitor-backend/internal/domain/jobs"
	"github.com/krushibheru/agromonitor-backend/internal/domain/metric"
	"github.com/krushibheru/agromonitor-backend/internal/domain/user"
)

type User = user.User

type Field = field.Field

const (
	CropWheat     = field.CropWheat
	CropRice      = field.CropRice
	CropCotton    = field.CropCotton
	CropSugarcane = field.CropSugarcane
	CropMaize     = field.CropMaize

	SeasonKharif = field.SeasonKharif
	SeasonRabi   = field.SeasonRabi
	SeasonZaid   = field.SeasonZaid

	HealthExcellent = field.HealthExcellent
	HealthGood      = field.HealthGood
	HealthModerate  = field.HealthModerate
	HealthPoor      = field.HealthPoor
	HealthUnknown   = field.HealthUnknown
)

type SatelliteMetric = metric.SatelliteMetric
type MetricWindow = metric.Window
type MetricPoint = metric.Point

// DateOnly truncates to the UTC calendar day every metric key uses.
var DateOnly = metric.DateOnly

type Advisory = advisory.Advisory
type AlertLevel = advisory.AlertLevel

const (
	LevelLow      = advisory.LevelLow
	LevelMedium   = advisory.LevelMedium
	LevelHigh     = advisory.LevelHigh
	LevelCritical = advisory.LevelCritical

	AdvisoryStatusActive   = advisory.StatusActive
	AdvisoryStatusResolved = advisory.StatusResolved
)

// AdvisoryLess is the display ordering: level desc, priority asc,
// earliest first trigger asc.
var AdvisoryLess = advisory.Less

type ReconcileDecision = advisory.Decision
type ReconcileBatch = advisory.Batch
type DecisionAction = advisory.DecisionAction

const (
	DecisionCreate   = advisory.DecisionCreate
	DecisionEscalate = advisory.DecisionEscalate
	DecisionSuppress = advisory.DecisionSuppress
	DecisionClear    = advisory.DecisionClear
	DecisionResolve  = advisory.DecisionResolve
)

type JobRun = jobs.JobRun

const (
	JobTypeAdvisorySweep = jobs.JobTypeAdvisorySweep
	JobTypeFieldEvaluate = jobs.JobTypeFieldEvaluate

	JobStatusQueued    = jobs.StatusQueued
	JobStatusRunning   = jobs.StatusRunning
	JobStatusSucceeded = jobs.StatusSucceeded
	JobStatusFailed    = jobs.StatusFailed
)
