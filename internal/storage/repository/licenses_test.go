package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/licensing-reconciler/internal/models"
)

func TestCreateLicense_ReturnsNewUID(t *testing.T) {
	storage, mock := newMockStorage(t)
	newUID := uuid.New().String()
	userUID := uuid.New().String()
	subUID := uuid.New().String()
	expiresAt := time.Now().AddDate(1, 0, 0)

	mock.ExpectQuery(`INSERT INTO licenses`).
		WithArgs(userUID, subUID, "LIC-BASIC-0A1B2C3D", models.TierBasic, models.LicenseStatusActive,
			nil, sqlmock.AnyArg(), 0, 1).
		WillReturnRows(sqlmock.NewRows([]string{"uid"}).AddRow(newUID))

	uid, err := storage.CreateLicense(context.Background(), models.License{
		UserUID:         userUID,
		SubscriptionUID: subUID,
		Key:             "LIC-BASIC-0A1B2C3D",
		Tier:            models.TierBasic,
		Status:          models.LicenseStatusActive,
		ExpiresAt:       &expiresAt,
		MaxActivations:  1,
	})
	require.NoError(t, err)
	assert.Equal(t, newUID, uid)
}

func TestUpdateLicenseStatus_SkipsSameStatus(t *testing.T) {
	storage, mock := newMockStorage(t)
	uid := uuid.New().String()

	// Запись уже в нужном статусе: условие status <> $1 не пропускает её.
	mock.ExpectExec(`UPDATE licenses`).
		WithArgs(models.LicenseStatusRevoked, uid).
		WillReturnResult(sqlmock.NewResult(0, 0))

	rows, err := storage.UpdateLicenseStatus(context.Background(), uid, models.LicenseStatusRevoked)
	require.NoError(t, err)
	assert.Equal(t, 0, rows)
}

func TestMakeLicenseKeeper_UpdatesStatusAndExpiry(t *testing.T) {
	storage, mock := newMockStorage(t)
	uid := uuid.New().String()
	expiresAt := time.Now().Add(365 * 24 * time.Hour)

	mock.ExpectExec(`UPDATE licenses`).
		WithArgs(models.LicenseStatusActive, expiresAt, uid).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rows, err := storage.MakeLicenseKeeper(context.Background(), uid, expiresAt)
	require.NoError(t, err)
	assert.Equal(t, 1, rows)
}

func TestLicenseKeyExists(t *testing.T) {
	storage, mock := newMockStorage(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("LIC-PRO-DEADBEEF").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := storage.LicenseKeyExists(context.Background(), "LIC-PRO-DEADBEEF")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCountNonRevokedLicenses(t *testing.T) {
	storage, mock := newMockStorage(t)
	subUID := uuid.New().String()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM licenses`).
		WithArgs(subUID, models.LicenseStatusRevoked).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := storage.CountNonRevokedLicenses(context.Background(), subUID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestListLicensesByUser_ScansNullDates(t *testing.T) {
	storage, mock := newMockStorage(t)
	userUID := uuid.New().String()
	now := time.Now()
	expiresAt := now.AddDate(1, 0, 0)

	columns := []string{"uid", "user_uid", "subscription_uid", "license_key", "tier", "status",
		"activated_at", "expires_at", "activation_count", "max_activations", "created_at", "updated_at"}
	mock.ExpectQuery(`FROM licenses\s+WHERE user_uid`).
		WithArgs(userUID).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(uuid.New().String(), userUID, uuid.New().String(), "LIC-BASIC-00000001",
				models.TierBasic, models.LicenseStatusPending, nil, nil, 0, 1, now, now).
			AddRow(uuid.New().String(), userUID, uuid.New().String(), "LIC-BASIC-00000002",
				models.TierBasic, models.LicenseStatusActive, now, expiresAt, 1, 1, now, now))

	licenses, err := storage.ListLicensesByUser(context.Background(), userUID)
	require.NoError(t, err)
	require.Len(t, licenses, 2)
	assert.Nil(t, licenses[0].ExpiresAt)
	require.NotNil(t, licenses[1].ExpiresAt)
	assert.WithinDuration(t, expiresAt, *licenses[1].ExpiresAt, time.Second)
}

func TestDeleteLicense(t *testing.T) {
	storage, mock := newMockStorage(t)
	uid := uuid.New().String()

	mock.ExpectExec(`DELETE FROM licenses`).
		WithArgs(uid).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rows, err := storage.DeleteLicense(context.Background(), uid)
	require.NoError(t, err)
	assert.Equal(t, 1, rows)
}
