// Package services содержит бизнес-логику реестра пользователей.
//
// Реестр — канонический источник идентичности: операция EnsureUser
// идемпотентно создаёт или обновляет пользователя по естественному
// ключу email, заранее согласовав учётку с внешним провайдером
// идентификации. При сбое провайдера локальная запись не фиксируется.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/licensing-reconciler/internal/errs"
	"github.com/magabrotheeeer/licensing-reconciler/internal/identity"
	"github.com/magabrotheeeer/licensing-reconciler/internal/lib/password"
	"github.com/magabrotheeeer/licensing-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/licensing-reconciler/internal/models"
)

// UserRepository определяет методы для работы с пользователями в хранилище.
type UserRepository interface {
	// CreateUser сохраняет нового пользователя и возвращает его UID.
	CreateUser(ctx context.Context, user models.User) (string, error)
	// UpdateUser обновляет изменяемые поля пользователя по UID.
	UpdateUser(ctx context.Context, user models.User) (int, error)
	// GetUserByEmail возвращает пользователя по email.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// GetUser возвращает пользователя по UID.
	GetUser(ctx context.Context, userUID string) (*models.User, error)
}

// IdentityProvider описывает внешнего провайдера идентификации.
type IdentityProvider interface {
	// CreateIdentity создаёт внешнюю учётку и возвращает её идентификатор.
	CreateIdentity(ctx context.Context, email, pass, displayName string) (string, error)
	// UpdateIdentity обновляет поля внешней учётки.
	UpdateIdentity(ctx context.Context, externalID string, fields identity.UpdateIdentityRequest) error
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	// Get пытается получить значение из кеша по ключу.
	Get(key string, result any) (bool, error)
	// Set сохраняет значение в кеш с временем жизни.
	Set(key string, value any, expiration time.Duration) error
	// Invalidate удаляет значение из кеша по ключу.
	Invalidate(key string) error
}

// UserRegistryService реализует идемпотентные операции реестра пользователей.
type UserRegistryService struct {
	repo     UserRepository
	provider IdentityProvider
	cache    Cache
	log      *slog.Logger
}

// NewUserRegistryService создает новый экземпляр UserRegistryService.
func NewUserRegistryService(repo UserRepository, provider IdentityProvider, cache Cache, log *slog.Logger) *UserRegistryService {
	return &UserRegistryService{
		repo:     repo,
		provider: provider,
		cache:    cache,
		log:      log,
	}
}

// EnsureUser идемпотентно создаёт или обновляет пользователя по email.
//
// Сначала согласует учётку с внешним провайдером: если провайдер
// недоступен, локальная запись не пишется вовсе (всё или ничего для
// одной записи). Существующему пользователю обновляются только
// изменяемые поля, идентификатор никогда не меняется.
func (s *UserRegistryService) EnsureUser(ctx context.Context, email, displayName, role, pass string) (string, error) {
	const op = "userregistry.EnsureUser"

	existing, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	hash, err := password.GetHash(pass)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if existing == nil {
		externalID, err := s.provider.CreateIdentity(ctx, email, pass, displayName)
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}

		uid, err := s.repo.CreateUser(ctx, models.User{
			Email:         email,
			DisplayName:   displayName,
			PasswordHash:  hash,
			Role:          role,
			EmailVerified: true,
			ExternalID:    externalID,
		})
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		s.log.Info("created user", slog.String("email", email), slog.String("uid", uid))
		s.invalidate(email)
		return uid, nil
	}

	externalID := existing.ExternalID
	if externalID == "" {
		externalID, err = s.provider.CreateIdentity(ctx, email, pass, displayName)
	} else {
		err = s.provider.UpdateIdentity(ctx, externalID, identity.UpdateIdentityRequest{
			Password:    pass,
			DisplayName: displayName,
		})
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	updated := *existing
	updated.DisplayName = displayName
	updated.Role = role
	updated.PasswordHash = hash
	updated.ExternalID = externalID
	if _, err := s.repo.UpdateUser(ctx, updated); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("updated user", slog.String("email", email), slog.String("uid", existing.UID))
	s.invalidate(email)
	return existing.UID, nil
}

// GetByEmail возвращает пользователя по email, используя кеш или хранилище.
func (s *UserRegistryService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var result *models.User
	cacheKey := cacheKeyByEmail(email)
	found, err := s.cache.Get(cacheKey, &result)
	if err != nil {
		s.log.Warn("failed to read user from cache", slog.String("key", cacheKey), sl.Err(err))
	}
	if found {
		return result, nil
	}
	result, err = s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(cacheKey, result, time.Hour); err != nil {
		s.log.Warn("failed to cache user", slog.String("key", cacheKey), sl.Err(err))
	}
	return result, nil
}

// GetByUID возвращает пользователя по его UID.
func (s *UserRegistryService) GetByUID(ctx context.Context, userUID string) (*models.User, error) {
	return s.repo.GetUser(ctx, userUID)
}

func (s *UserRegistryService) invalidate(email string) {
	cacheKey := cacheKeyByEmail(email)
	if err := s.cache.Invalidate(cacheKey); err != nil {
		s.log.Warn("failed to invalidate user cache", slog.String("key", cacheKey), sl.Err(err))
	}
}

func cacheKeyByEmail(email string) string {
	return fmt.Sprintf("user:email:%s", email)
}
