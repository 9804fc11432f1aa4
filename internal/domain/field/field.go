package field

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Crop types the rule set knows thresholds for. Free-form values are
// accepted; rules with a crop filter simply never match them.
const (
	CropWheat     = "wheat"
	CropRice      = "rice"
	CropCotton    = "cotton"
	CropSugarcane = "sugarcane"
	CropMaize     = "maize"
)

const (
	SeasonKharif = "kharif"
	SeasonRabi   = "rabi"
	SeasonZaid   = "zaid"
)

// Health classifications derived from NDVI bands by the report service.
const (
	HealthExcellent = "Excellent"
	HealthGood      = "Good"
	HealthModerate  = "Moderate"
	HealthPoor      = "Poor"
	HealthUnknown   = "Unknown"
)

type Field struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Name   string    `gorm:"not null;column:name" json:"name"`

	// Boundary is the submitted GeoJSON polygon, opaque to the engine.
	// Area/perimeter arrive precomputed from the geometry collaborator.
	Boundary    datatypes.JSON `gorm:"column:boundary;type:jsonb" json:"boundary,omitempty"`
	AreaHa      float64        `gorm:"column:area_ha;not null;default:0" json:"area_ha"`
	PerimeterKm float64        `gorm:"column:perimeter_km;not null;default:0" json:"perimeter_km"`
	Corners     int            `gorm:"column:corners;not null;default:0" json:"corners"`

	CropType   string `gorm:"column:crop_type;index" json:"crop_type"`
	CropStatus string `gorm:"column:crop_status" json:"crop_status"`
	Season     string `gorm:"column:season;index" json:"season"`

	Latitude  *float64 `gorm:"column:latitude" json:"latitude,omitempty"`
	Longitude *float64 `gorm:"column:longitude" json:"longitude,omitempty"`
	State     string   `gorm:"column:state" json:"state"`
	District  string   `gorm:"column:district" json:"district"`

	Status string `gorm:"column:status;not null;default:'Unknown'" json:"status"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Field) TableName() string { return "field" }

func (f *Field) BeforeCreate(*gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.Status == "" {
		f.Status = HealthUnknown
	}
	return nil
}
