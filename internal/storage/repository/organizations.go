package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/licensing-reconciler/internal/errs"
	"github.com/magabrotheeeer/licensing-reconciler/internal/models"
)

// CreateOrganization сохраняет новую организацию и возвращает её UID.
func (s *Storage) CreateOrganization(ctx context.Context, org models.Organization) (string, error) {
	const op = "storage.CreateOrganization"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var newUID string
	query := `INSERT INTO organizations (name, owner_uid, tier)
			  VALUES ($1, $2, $3)
			  RETURNING uid`
	if err := s.DB.QueryRowContext(ctx, query,
		org.Name, org.OwnerUID, org.Tier).Scan(&newUID); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return newUID, nil
}

// GetOrganization возвращает организацию по её UID.
func (s *Storage) GetOrganization(ctx context.Context, orgUID string) (*models.Organization, error) {
	const op = "storage.GetOrganization"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT uid, name, owner_uid, tier, created_at, updated_at
			  FROM organizations
			  WHERE uid = $1`
	org := &models.Organization{}
	row := s.DB.QueryRowContext(ctx, query, orgUID)
	if err := row.Scan(&org.UID, &org.Name, &org.OwnerUID, &org.Tier,
		&org.CreatedAt, &org.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, errs.NotFound("organizations", orgUID))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return org, nil
}

// GetOrganizationByOwner возвращает организацию по UID её владельца.
// Именно этот поиск перед созданием обеспечивает инвариант
// "не более одной организации на владельца".
func (s *Storage) GetOrganizationByOwner(ctx context.Context, ownerUID string) (*models.Organization, error) {
	const op = "storage.GetOrganizationByOwner"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT uid, name, owner_uid, tier, created_at, updated_at
			  FROM organizations
			  WHERE owner_uid = $1
			  ORDER BY created_at
			  LIMIT 1`
	org := &models.Organization{}
	row := s.DB.QueryRowContext(ctx, query, ownerUID)
	if err := row.Scan(&org.UID, &org.Name, &org.OwnerUID, &org.Tier,
		&org.CreatedAt, &org.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, errs.NotFound("organizations", ownerUID))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return org, nil
}

// OrganizationExists проверяет наличие организации по UID.
func (s *Storage) OrganizationExists(ctx context.Context, orgUID string) (bool, error) {
	const op = "storage.OrganizationExists"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT EXISTS (SELECT 1 FROM organizations WHERE uid = $1)`
	var exists bool
	if err := s.DB.QueryRowContext(ctx, query, orgUID).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}
