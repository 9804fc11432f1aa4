package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/krushibheru/agromonitor-backend/internal/data/repos"
	types "github.com/krushibheru/agromonitor-backend/internal/domain"
	pkgerrors "github.com/krushibheru/agromonitor-backend/internal/pkg/errors"
	"github.com/krushibheru/agromonitor-backend/internal/platform/logger"
)

type CreateFieldInput struct {
	UserID      uuid.UUID       `json:"user_id"`
	Name        string          `json:"name"`
	Boundary    json.RawMessage `json:"boundary,omitempty"`
	AreaHa      float64         `json:"area_ha"`
	PerimeterKm float64         `json:"perimeter_km"`
	CropType    string          `json:"crop_type"`
	CropStatus  string          `json:"crop_status"`
	Season      string          `json:"season"`
	Latitude    *float64        `json:"latitude,omitempty"`
	Longitude   *float64        `json:"longitude,omitempty"`
	State       string          `json:"state"`
	District    string          `json:"district"`
}

type UpdateCroppingInput struct {
	CropType   string `json:"crop_type"`
	CropStatus string `json:"crop_status"`
	Season     string `json:"season"`
}

type FieldService interface {
	Create(ctx context.Context, input CreateFieldInput) (*types.Field, error)
	Get(ctx context.Context, id uuid.UUID) (*types.Field, error)
	List(ctx context.Context, userID *uuid.UUID) ([]*types.Field, error)
	UpdateCropping(ctx context.Context, id uuid.UUID, input UpdateCroppingInput) (*types.Field, error)
	Advisories(ctx context.Context, id uuid.UUID, includeResolved bool) ([]*types.Advisory, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type fieldService struct {
	db           *gorm.DB
	log          *logger.Logger
	userRepo     repos.UserRepo
	fieldRepo    repos.FieldRepo
	metricRepo   repos.MetricRepo
	advisoryRepo repos.AdvisoryRepo
}

func NewFieldService(
	db *gorm.DB,
	baseLog *logger.Logger,
	userRepo repos.UserRepo,
	fieldRepo repos.FieldRepo,
	metricRepo repos.MetricRepo,
	advisoryRepo repos.AdvisoryRepo,
) FieldService {
	serviceLog := baseLog.With("service", "FieldService")
	return &fieldService{
		db:           db,
		log:          serviceLog,
		userRepo:     userRepo,
		fieldRepo:    fieldRepo,
		metricRepo:   metricRepo,
		advisoryRepo: advisoryRepo,
	}
}

func (fs *fieldService) Create(ctx context.Context, input CreateFieldInput) (*types.Field, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.NewValidation("user_id", "required")
	}
	if input.Name == "" {
		return nil, pkgerrors.NewValidation("name", "required")
	}
	if input.AreaHa < 0 {
		return nil, pkgerrors.NewValidationf("area_ha", "%.4f below minimum 0", input.AreaHa)
	}
	if input.PerimeterKm < 0 {
		return nil, pkgerrors.NewValidationf("perimeter_km", "%.4f below minimum 0", input.PerimeterKm)
	}

	corners := 0
	var centroid *[2]float64
	if len(input.Boundary) > 0 {
		ring, err := parsePolygonRing(input.Boundary)
		if err != nil {
			return nil, err
		}
		corners = len(ring)
		centroid = ringCentroid(ring)
	}

	var created *types.Field
	err := fs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owner, gErr := fs.userRepo.GetByID(ctx, tx, input.UserID)
		if gErr != nil {
			return fmt.Errorf("fetch owner: %w", gErr)
		}
		if owner == nil {
			return pkgerrors.NewConflict("user", input.UserID.String())
		}
		row := &types.Field{
			ID:          uuid.New(),
			UserID:      input.UserID,
			Name:        input.Name,
			Boundary:    datatypes.JSON(input.Boundary),
			AreaHa:      input.AreaHa,
			PerimeterKm: input.PerimeterKm,
			Corners:     corners,
			CropType:    strings.ToLower(strings.TrimSpace(input.CropType)),
			CropStatus:  strings.TrimSpace(input.CropStatus),
			Season:      strings.ToLower(strings.TrimSpace(input.Season)),
			Latitude:    input.Latitude,
			Longitude:   input.Longitude,
			State:       strings.TrimSpace(input.State),
			District:    strings.TrimSpace(input.District),
		}
		if row.Latitude == nil && centroid != nil {
			lat, lon := centroid[0], centroid[1]
			row.Latitude = &lat
			row.Longitude = &lon
		}
		rows, cErr := fs.fieldRepo.Create(ctx, tx, []*types.Field{row})
		if cErr != nil {
			return fmt.Errorf("create field: %w", cErr)
		}
		created = rows[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	fs.log.Info("field created", "field_id", created.ID, "user_id", created.UserID, "corners", created.Corners)
	return created, nil
}

func (fs *fieldService) Get(ctx context.Context, id uuid.UUID) (*types.Field, error) {
	row, err := fs.fieldRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("field %s: %w", id, pkgerrors.ErrNotFound)
	}
	return row, nil
}

func (fs *fieldService) List(ctx context.Context, userID *uuid.UUID) ([]*types.Field, error) {
	if userID != nil && *userID != uuid.Nil {
		return fs.fieldRepo.ListByUser(ctx, nil, *userID)
	}
	return fs.fieldRepo.List(ctx, nil)
}

func (fs *fieldService) UpdateCropping(ctx context.Context, id uuid.UUID, input UpdateCroppingInput) (*types.Field, error) {
	var updated *types.Field
	err := fs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, gErr := fs.fieldRepo.GetByID(ctx, tx, id)
		if gErr != nil {
			return gErr
		}
		if row == nil {
			return fmt.Errorf("field %s: %w", id, pkgerrors.ErrNotFound)
		}
		cropType := strings.ToLower(strings.TrimSpace(input.CropType))
		season := strings.ToLower(strings.TrimSpace(input.Season))
		if uErr := fs.fieldRepo.UpdateCropping(ctx, tx, id, cropType, strings.TrimSpace(input.CropStatus), season); uErr != nil {
			return fmt.Errorf("update cropping: %w", uErr)
		}
		fresh, gErr := fs.fieldRepo.GetByID(ctx, tx, id)
		if gErr != nil {
			return gErr
		}
		updated = fresh
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Advisories lists the field's advisory set in display order, active rows
// only unless includeResolved asks for the full history.
func (fs *fieldService) Advisories(ctx context.Context, id uuid.UUID, includeResolved bool) ([]*types.Advisory, error) {
	row, err := fs.fieldRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, fmt.Errorf("fetch field %s: %w", id, err)
	}
	if row == nil {
		return nil, fmt.Errorf("field %s: %w", id, pkgerrors.ErrNotFound)
	}
	if includeResolved {
		return fs.advisoryRepo.ListByField(ctx, nil, id, true)
	}
	return fs.advisoryRepo.ListActiveByField(ctx, nil, id)
}

// Delete removes the field together with its metrics and advisories in one
// transaction.
func (fs *fieldService) Delete(ctx context.Context, id uuid.UUID) error {
	err := fs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, gErr := fs.fieldRepo.GetByID(ctx, tx, id)
		if gErr != nil {
			return fmt.Errorf("fetch field %s: %w", id, gErr)
		}
		if row == nil {
			return fmt.Errorf("field %s: %w", id, pkgerrors.ErrNotFound)
		}
		ids := []uuid.UUID{id}
		if dErr := fs.metricRepo.DeleteByFieldIDs(ctx, tx, ids); dErr != nil {
			return fmt.Errorf("delete metrics: %w", dErr)
		}
		if dErr := fs.advisoryRepo.DeleteByFieldIDs(ctx, tx, ids); dErr != nil {
			return fmt.Errorf("delete advisories: %w", dErr)
		}
		return fs.fieldRepo.DeleteByIDs(ctx, tx, ids)
	})
	if err != nil {
		return err
	}
	fs.log.Info("field deleted", "field_id", id)
	return nil
}

type geoPolygon struct {
	Type        string        `json:"type"`
	Coordinates [][][]float64 `json:"coordinates"`
}

// parsePolygonRing validates the submitted boundary as a closed GeoJSON
// polygon and returns its distinct outer-ring vertices. The geometry itself
// stays opaque past this point; only closure and vertex count are enforced.
func parsePolygonRing(raw []byte) ([][2]float64, error) {
	var poly geoPolygon
	if err := json.Unmarshal(raw, &poly); err != nil {
		return nil, pkgerrors.NewValidationf("boundary", "not valid GeoJSON: %v", err)
	}
	if !strings.EqualFold(poly.Type, "Polygon") {
		return nil, pkgerrors.NewValidationf("boundary", "geometry type %q, want Polygon", poly.Type)
	}
	if len(poly.Coordinates) == 0 {
		return nil, pkgerrors.NewValidation("boundary", "polygon has no rings")
	}
	ring := poly.Coordinates[0]
	if len(ring) < 4 {
		return nil, pkgerrors.NewValidationf("boundary", "ring has %d coordinates, want at least 4", len(ring))
	}
	for i, pt := range ring {
		if len(pt) < 2 {
			return nil, pkgerrors.NewValidationf("boundary", "coordinate %d is not a [lon, lat] pair", i)
		}
	}
	first, last := ring[0], ring[len(ring)-1]
	if first[0] != last[0] || first[1] != last[1] {
		return nil, pkgerrors.NewValidation("boundary", "polygon ring is not closed")
	}

	seen := make(map[[2]float64]struct{}, len(ring))
	distinct := make([][2]float64, 0, len(ring)-1)
	for _, pt := range ring[:len(ring)-1] {
		key := [2]float64{pt[0], pt[1]}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		distinct = append(distinct, key)
	}
	if len(distinct) < 3 {
		return nil, pkgerrors.NewValidationf("boundary", "ring has %d distinct vertices, want at least 3", len(distinct))
	}
	return distinct, nil
}

// ringCentroid is the vertex mean as (lat, lon), good enough for placing a
// marker; it is not an area-weighted centroid.
func ringCentroid(ring [][2]float64) *[2]float64 {
	if len(ring) == 0 {
		return nil
	}
	var sumLon, sumLat float64
	for _, pt := range ring {
		sumLon += pt[0]
		sumLat += pt[1]
	}
	n := float64(len(ring))
	return &[2]float64{sumLat / n, sumLon / n}
}
