package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/codfulfillment-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/codfulfillment-backend/pkg/errors"
	"github.com/angelmondragon/codfulfillment-backend/pkg/phone"
)

// Service is the customer directory.
type Service interface {
	// FindOrCreate upserts a customer by phone inside tx. Non-empty contact
	// fields on input overwrite the stored ones.
	FindOrCreate(ctx context.Context, tx *gorm.DB, input ContactInput) (*models.Customer, error)
	// Get loads a customer inside tx.
	Get(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Customer, error)
	NormalizePhone(raw string) (string, error)
}

type ContactInput struct {
	Name    string
	Phone   string
	Address string
	City    string
}

type service struct {
	repo   *Repository
	region string
}

func NewService(repo *Repository, region string) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("customer repository required")
	}
	return &service{repo: repo, region: region}, nil
}

func (s *service) Get(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Customer, error) {
	customer, err := s.repo.WithTx(tx).FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "customer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
	}
	return customer, nil
}

func (s *service) NormalizePhone(raw string) (string, error) {
	return phone.Normalize(raw, s.region)
}

func (s *service) FindOrCreate(ctx context.Context, tx *gorm.DB, input ContactInput) (*models.Customer, error) {
	normalized, err := s.NormalizePhone(input.Phone)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer name is required")
	}
	repo := s.repo.WithTx(tx)

	existing, err := repo.FindByPhone(ctx, normalized)
	switch {
	case err == nil:
		return s.refresh(ctx, repo, existing, input)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
	}

	customer := &models.Customer{
		Name:    name,
		Phone:   normalized,
		Address: strings.TrimSpace(input.Address),
		City:    strings.TrimSpace(input.City),
	}
	inserted, err := repo.InsertIgnoreConflict(ctx, customer)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create customer")
	}
	if inserted {
		return customer, nil
	}

	// a concurrent request created the same phone first
	existing, err = repo.FindByPhone(ctx, normalized)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload customer")
	}
	return s.refresh(ctx, repo, existing, input)
}

func (s *service) refresh(ctx context.Context, repo *Repository, customer *models.Customer, input ContactInput) (*models.Customer, error) {
	changed := false
	if v := strings.TrimSpace(input.Name); v != "" && v != customer.Name {
		customer.Name = v
		changed = true
	}
	if v := strings.TrimSpace(input.Address); v != "" && v != customer.Address {
		customer.Address = v
		changed = true
	}
	if v := strings.TrimSpace(input.City); v != "" && v != customer.City {
		customer.City = v
		changed = true
	}
	if !changed {
		return customer, nil
	}
	if err := repo.UpdateContact(ctx, customer); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update customer")
	}
	return customer, nil
}
