package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/krushibheru/agromonitor-backend/internal/data/repos"
	types "github.com/krushibheru/agromonitor-backend/internal/domain"
	pkgerrors "github.com/krushibheru/agromonitor-backend/internal/pkg/errors"
	"github.com/krushibheru/agromonitor-backend/internal/platform/logger"
)

type CreateUserInput struct {
	Name      string `json:"name"`
	ContactNo string `json:"contact_no"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	State     string `json:"state"`
	District  string `json:"district"`
}

type UserService interface {
	Create(ctx context.Context, input CreateUserInput) (*types.User, error)
	Get(ctx context.Context, id uuid.UUID) (*types.User, error)
	List(ctx context.Context) ([]*types.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type userService struct {
	db           *gorm.DB
	log          *logger.Logger
	userRepo     repos.UserRepo
	fieldRepo    repos.FieldRepo
	metricRepo   repos.MetricRepo
	advisoryRepo repos.AdvisoryRepo
}

func NewUserService(
	db *gorm.DB,
	baseLog *logger.Logger,
	userRepo repos.UserRepo,
	fieldRepo repos.FieldRepo,
	metricRepo repos.MetricRepo,
	advisoryRepo repos.AdvisoryRepo,
) UserService {
	serviceLog := baseLog.With("service", "UserService")
	return &userService{
		db:           db,
		log:          serviceLog,
		userRepo:     userRepo,
		fieldRepo:    fieldRepo,
		metricRepo:   metricRepo,
		advisoryRepo: advisoryRepo,
	}
}

func (us *userService) Create(ctx context.Context, input CreateUserInput) (*types.User, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.ContactNo = strings.TrimSpace(input.ContactNo)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))

	if input.Name == "" {
		return nil, pkgerrors.NewValidation("name", "required")
	}
	if digitCount(input.ContactNo) < 10 {
		return nil, pkgerrors.NewValidation("contact_no", "must carry at least 10 digits")
	}
	if !strings.Contains(input.Email, "@") {
		return nil, pkgerrors.NewValidation("email", "not a valid address")
	}
	if len(input.Password) < 8 {
		return nil, pkgerrors.NewValidation("password", "must be at least 8 characters")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var created *types.User
	err = us.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		emailTaken, exErr := us.userRepo.EmailExists(ctx, tx, input.Email)
		if exErr != nil {
			return fmt.Errorf("check email: %w", exErr)
		}
		if emailTaken {
			return pkgerrors.NewValidation("email", "already in use")
		}
		contactTaken, exErr := us.userRepo.ContactExists(ctx, tx, input.ContactNo)
		if exErr != nil {
			return fmt.Errorf("check contact: %w", exErr)
		}
		if contactTaken {
			return pkgerrors.NewValidation("contact_no", "already in use")
		}
		row := &types.User{
			ID:           uuid.New(),
			Name:         input.Name,
			ContactNo:    input.ContactNo,
			Email:        input.Email,
			PasswordHash: string(hashed),
			State:        strings.TrimSpace(input.State),
			District:     strings.TrimSpace(input.District),
		}
		if _, cErr := us.userRepo.Create(ctx, tx, []*types.User{row}); cErr != nil {
			// The existence pre-checks race with concurrent registrations;
			// the unique indexes are the backstop.
			if pkgerrors.IsDuplicateKey(cErr) {
				return pkgerrors.NewValidation("user", "contact or email already in use")
			}
			return fmt.Errorf("create user: %w", cErr)
		}
		created = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	us.log.Info("user created", "user_id", created.ID)
	return created, nil
}

func (us *userService) Get(ctx context.Context, id uuid.UUID) (*types.User, error) {
	row, err := us.userRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("user %s: %w", id, pkgerrors.ErrNotFound)
	}
	return row, nil
}

func (us *userService) List(ctx context.Context) ([]*types.User, error) {
	return us.userRepo.List(ctx, nil)
}

// Delete removes the user and everything hanging off them. The cascade is
// engine-owned: fields, then each field's metrics and advisories, all
// inside one transaction so a failure leaves nothing orphaned.
func (us *userService) Delete(ctx context.Context, id uuid.UUID) error {
	err := us.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, gErr := us.userRepo.GetByID(ctx, tx, id)
		if gErr != nil {
			return fmt.Errorf("fetch user %s: %w", id, gErr)
		}
		if row == nil {
			return fmt.Errorf("user %s: %w", id, pkgerrors.ErrNotFound)
		}
		fieldIDs, fErr := us.fieldRepo.ListIDsByUser(ctx, tx, id)
		if fErr != nil {
			return fmt.Errorf("list fields for user %s: %w", id, fErr)
		}
		if len(fieldIDs) > 0 {
			if dErr := us.metricRepo.DeleteByFieldIDs(ctx, tx, fieldIDs); dErr != nil {
				return fmt.Errorf("delete metrics: %w", dErr)
			}
			if dErr := us.advisoryRepo.DeleteByFieldIDs(ctx, tx, fieldIDs); dErr != nil {
				return fmt.Errorf("delete advisories: %w", dErr)
			}
			if dErr := us.fieldRepo.DeleteByIDs(ctx, tx, fieldIDs); dErr != nil {
				return fmt.Errorf("delete fields: %w", dErr)
			}
		}
		return us.userRepo.DeleteByID(ctx, tx, id)
	})
	if err != nil {
		return err
	}
	us.log.Info("user deleted", "user_id", id)
	return nil
}

func digitCount(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
