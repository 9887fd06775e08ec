package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/licensing-reconciler/internal/errs"
	"github.com/magabrotheeeer/licensing-reconciler/internal/models"
)

// CreateMember сохраняет нового участника организации и возвращает его UID.
func (s *Storage) CreateMember(ctx context.Context, m models.OrgMember) (string, error) {
	const op = "storage.CreateMember"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var newUID string
	query := `INSERT INTO org_members (org_uid, email, user_uid, role, status,
			      seat_reserved, invited_by, invited_at, joined_at)
			  VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9)
			  RETURNING uid`
	var joinedAt sql.NullTime
	if m.JoinedAt != nil {
		joinedAt = sql.NullTime{Time: *m.JoinedAt, Valid: true}
	}
	if err := s.DB.QueryRowContext(ctx, query,
		m.OrgUID, m.Email, m.UserUID, m.Role, m.Status,
		m.SeatReserved, m.InvitedBy, m.InvitedAt, joinedAt).Scan(&newUID); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return newUID, nil
}

// GetMemberByNaturalKey возвращает участника по естественному ключу (организация, email).
func (s *Storage) GetMemberByNaturalKey(ctx context.Context, orgUID, email string) (*models.OrgMember, error) {
	const op = "storage.GetMemberByNaturalKey"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT uid, org_uid, email, user_uid, role, status, seat_reserved,
			      invited_by, invited_at, joined_at, created_at, updated_at
			  FROM org_members
			  WHERE org_uid = $1 AND email = $2
			  ORDER BY created_at
			  LIMIT 1`
	row := s.DB.QueryRowContext(ctx, query, orgUID, email)
	m, err := scanMember(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, errs.NotFound("org_members", orgUID+"/"+email))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return m, nil
}

// PromoteMember переводит существующего участника в активное состояние
// по месту: привязывает пользователя, резервирует место и проставляет
// дату присоединения. Дубликат при этом не создаётся.
func (s *Storage) PromoteMember(ctx context.Context, memberUID, userUID string) (int, error) {
	const op = "storage.PromoteMember"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE org_members
			  SET user_uid = NULLIF($1, ''), status = $2, seat_reserved = true,
			      joined_at = NOW(), updated_at = NOW()
			  WHERE uid = $3`
	result, err := s.DB.ExecContext(ctx, query, userUID, models.MemberStatusActive, memberUID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// ListMembers возвращает список участников всех организаций с пагинацией.
func (s *Storage) ListMembers(ctx context.Context, limit, offset int) ([]*models.OrgMember, error) {
	const op = "storage.ListMembers"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT uid, org_uid, email, user_uid, role, status, seat_reserved,
			      invited_by, invited_at, joined_at, created_at, updated_at
			  FROM org_members
			  ORDER BY created_at
			  LIMIT $1 OFFSET $2`
	rows, err := s.DB.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.OrgMember
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// DeleteMember удаляет запись участника и возвращает количество удалённых строк.
// Используется только деструктивным режимом аудитора для осиротевших записей.
func (s *Storage) DeleteMember(ctx context.Context, memberUID string) (int, error) {
	const op = "storage.DeleteMember"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `DELETE FROM org_members WHERE uid = $1`
	result, err := s.DB.ExecContext(ctx, query, memberUID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(sc rowScanner) (*models.OrgMember, error) {
	var m models.OrgMember
	var userUID sql.NullString
	var joinedAt sql.NullTime
	if err := sc.Scan(&m.UID, &m.OrgUID, &m.Email, &userUID, &m.Role, &m.Status,
		&m.SeatReserved, &m.InvitedBy, &m.InvitedAt, &joinedAt,
		&m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	if userUID.Valid {
		m.UserUID = userUID.String
	}
	if joinedAt.Valid {
		m.JoinedAt = &joinedAt.Time
	}
	return &m, nil
}
