package service

import (
	"context"
	"fmt"

	"library-ledger-backend/internal/clock"
	"library-ledger-backend/internal/domain"
	"library-ledger-backend/internal/logger"
	"library-ledger-backend/internal/repository"
)

type registryService struct {
	unitRepo repository.ResourceRepository
	clock    clock.Clock
}

func NewRegistryService(unitRepo repository.ResourceRepository, clk clock.Clock) RegistryService {
	return &registryService{unitRepo: unitRepo, clock: clk}
}

func (s *registryService) RegisterUnit(ctx context.Context, actor domain.Identity, unit *domain.ResourceUnit) error {
	if !actor.IsAdmin() {
		return domain.ErrUnauthorized
	}
	if err := validateUnit(unit); err != nil {
		return err
	}
	unit.CreatedOn = s.clock.Now()
	unit.DecommissionedOn = nil
	if err := s.unitRepo.Register(ctx, unit); err != nil {
		return err
	}
	logger.InfoContext(ctx, "Unit registered", "unit_id", unit.ID, "kind", unit.Kind, "label", unit.Label)
	return nil
}

func validateUnit(u *domain.ResourceUnit) error {
	if !u.Kind.Valid() {
		return fmt.Errorf("unknown unit kind %q: %w", u.Kind, domain.ErrNotEligible)
	}
	switch u.Kind {
	case domain.UnitKindBookCopy:
		if u.Attr(domain.AttrBookID) == "" {
			return fmt.Errorf("book copies need a %s attribute: %w", domain.AttrBookID, domain.ErrNotEligible)
		}
	case domain.UnitKindParkingSpot:
		if st := u.Attr(domain.AttrSpotType); st != "" && !domain.SpotType(st).Valid() {
			return fmt.Errorf("unknown spot type %q: %w", st, domain.ErrNotEligible)
		}
	}
	return nil
}

func (s *registryService) GetUnit(ctx context.Context, id string) (*domain.ResourceUnit, error) {
	return s.unitRepo.GetByID(ctx, id)
}

func (s *registryService) ListUnits(ctx context.Context, filter domain.UnitFilter) ([]domain.ResourceUnit, error) {
	return s.unitRepo.List(ctx, filter)
}

func (s *registryService) DecommissionUnit(ctx context.Context, actor domain.Identity, id string) error {
	if !actor.IsAdmin() {
		return domain.ErrUnauthorized
	}
	if err := s.unitRepo.Decommission(ctx, id, s.clock.Now()); err != nil {
		return err
	}
	logger.InfoContext(ctx, "Unit decommissioned", "unit_id", id, "actor_id", actor.ID)
	return nil
}
