package advisory

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AlertLevel is the ordered advisory severity.
type AlertLevel string

const (
	LevelLow      AlertLevel = "LOW"
	LevelMedium   AlertLevel = "MEDIUM"
	LevelHigh     AlertLevel = "HIGH"
	LevelCritical AlertLevel = "CRITICAL"
)

// Rank maps levels onto their ordering, LOW < MEDIUM < HIGH < CRITICAL.
// Unknown strings rank below LOW so malformed rows can never outrank
// real alerts.
func (l AlertLevel) Rank() int {
	switch l {
	case LevelLow:
		return 1
	case LevelMedium:
		return 2
	case LevelHigh:
		return 3
	case LevelCritical:
		return 4
	default:
		return 0
	}
}

func (l AlertLevel) Valid() bool { return l.Rank() > 0 }

const (
	StatusActive   = "active"
	StatusResolved = "resolved"
)

type Advisory struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	FieldID uuid.UUID `gorm:"type:uuid;not null;index" json:"field_id"`

	// MetricID points at the record that (last) triggered the advisory.
	// Nulled when that metric is purged; the advisory outlives its evidence.
	MetricID *uuid.UUID `gorm:"type:uuid;column:metric_id;index" json:"metric_id,omitempty"`

	AdvisoryType string     `gorm:"column:advisory_type;not null;index" json:"advisory_type"`
	AdvisoryText string     `gorm:"column:advisory_text;not null" json:"advisory_text"`
	AlertLevel   AlertLevel `gorm:"column:alert_level;not null;default:'LOW'" json:"alert_level"`
	Priority     int        `gorm:"column:priority;not null;default:1" json:"priority"`

	Status string `gorm:"column:status;not null;default:'active';index" json:"status"`

	// FirstTriggerDate stays fixed across escalations so display ordering
	// cannot be reshuffled by a severity bump.
	FirstTriggerDate time.Time `gorm:"column:first_trigger_date;not null" json:"first_trigger_date"`
	LastTriggerDate  time.Time `gorm:"column:last_trigger_date;not null" json:"last_trigger_date"`

	// ClearStreak counts consecutive data-sufficient evaluations in which
	// the advisory's condition did not re-fire. Resolution is explicit:
	// the streak reaching the configured count closes the advisory.
	ClearStreak int        `gorm:"column:clear_streak;not null;default:0" json:"clear_streak"`
	ResolvedAt  *time.Time `gorm:"column:resolved_at" json:"resolved_at,omitempty"`

	LockVersion int `gorm:"column:lock_version;not null;default:0" json:"-"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Advisory) TableName() string { return "advisory" }

func (a *Advisory) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = StatusActive
	}
	if a.AlertLevel == "" {
		a.AlertLevel = LevelLow
	}
	return nil
}

func (a *Advisory) Active() bool { return a != nil && a.Status == StatusActive }

// Less orders advisories for display: alert level descending, then
// priority ascending (lower = more urgent), then earliest first trigger.
func Less(a, b *Advisory) bool {
	if ar, br := a.AlertLevel.Rank(), b.AlertLevel.Rank(); ar != br {
		return ar > br
	}
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if !a.FirstTriggerDate.Equal(b.FirstTriggerDate) {
		return a.FirstTriggerDate.Before(b.FirstTriggerDate)
	}
	return a.AdvisoryType < b.AdvisoryType
}
