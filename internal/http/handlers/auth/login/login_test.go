package login

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/licensing-reconciler/internal/errs"
	"github.com/magabrotheeeer/licensing-reconciler/internal/lib/jwt"
	"github.com/magabrotheeeer/licensing-reconciler/internal/lib/password"
	"github.com/magabrotheeeer/licensing-reconciler/internal/models"
)

type RegistryMock struct {
	mock.Mock
}

func (m *RegistryMock) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestLoginHandler_ServeHTTP(t *testing.T) {
	passwordHash, err := password.GetHash("password123")
	require.NoError(t, err)
	adminUser := &models.User{
		UID:          "user-1",
		Email:        "admin@example.com",
		PasswordHash: passwordHash,
		Role:         models.RoleAdmin,
	}

	tests := []struct {
		name           string
		requestBody    any
		mockUser       *models.User
		mockErr        error
		wantStatusCode int
		wantData       map[string]any
		wantError      string
		wantStatus     string
	}{
		{
			name:           "valid login",
			requestBody:    Request{Email: "admin@example.com", Password: "password123"},
			mockUser:       adminUser,
			wantStatusCode: http.StatusOK,
			wantData: map[string]any{
				"role":  models.RoleAdmin,
				"email": "admin@example.com",
			},
			wantStatus: "OK",
		},
		{
			name:           "invalid json body",
			requestBody:    "not a json",
			wantStatusCode: http.StatusBadRequest,
			wantError:      "invalid request body",
			wantStatus:     "Error",
		},
		{
			name:           "validation error - missing password",
			requestBody:    Request{Email: "admin@example.com"},
			wantStatusCode: http.StatusUnprocessableEntity,
			wantError:      "field Password is a required field",
			wantStatus:     "Error",
		},
		{
			name:           "validation error - malformed email",
			requestBody:    Request{Email: "not-an-email", Password: "password123"},
			wantStatusCode: http.StatusUnprocessableEntity,
			wantError:      "field Email must be a valid email",
			wantStatus:     "Error",
		},
		{
			name:           "unknown user",
			requestBody:    Request{Email: "ghost@example.com", Password: "password123"},
			mockErr:        errs.NotFound("users", "ghost@example.com"),
			wantStatusCode: http.StatusUnauthorized,
			wantError:      "invalid credentials",
			wantStatus:     "Error",
		},
		{
			name:           "wrong password",
			requestBody:    Request{Email: "admin@example.com", Password: "wrong_password"},
			mockUser:       adminUser,
			wantStatusCode: http.StatusUnauthorized,
			wantError:      "invalid credentials",
			wantStatus:     "Error",
		},
		{
			name:        "non-staff role rejected",
			requestBody: Request{Email: "bob@example.com", Password: "password123"},
			mockUser: &models.User{
				UID:          "user-2",
				Email:        "bob@example.com",
				PasswordHash: passwordHash,
				Role:         models.RoleUser,
			},
			wantStatusCode: http.StatusForbidden,
			wantError:      "insufficient role",
			wantStatus:     "Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registryMock := new(RegistryMock)
			if tt.mockUser != nil || tt.mockErr != nil {
				registryMock.On("GetByEmail", mock.Anything, tt.requestBody.(Request).Email).
					Return(tt.mockUser, tt.mockErr).Once()
			}

			maker := jwt.NewMaker("test_secret_key", time.Hour)
			handler := New(newNoopLogger(), registryMock, maker)

			var bodyBytes []byte
			switch v := tt.requestBody.(type) {
			case string:
				bodyBytes = []byte(v)
			default:
				var err error
				bodyBytes, err = json.Marshal(tt.requestBody)
				require.NoError(t, err)
			}

			req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(bodyBytes))
			req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, "reqid123"))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatusCode, rec.Code)

			var got map[string]any
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
			assert.Equal(t, tt.wantStatus, got["status"])

			if tt.wantError != "" {
				errStr, ok := got["error"].(string)
				assert.True(t, ok)
				assert.Equal(t, tt.wantError, errStr)
			} else {
				assert.Nil(t, got["error"])
			}

			if tt.wantData != nil {
				data, ok := got["data"].(map[string]any)
				assert.True(t, ok)
				for k, v := range tt.wantData {
					assert.Equal(t, v, data[k])
				}
				token, ok := data["token"].(string)
				assert.True(t, ok)

				claims, err := maker.ParseToken(token)
				require.NoError(t, err)
				assert.Equal(t, "admin@example.com", claims.Email)
				assert.Equal(t, models.RoleAdmin, claims.Role)
			}

			registryMock.AssertExpectations(t)
		})
	}
}
