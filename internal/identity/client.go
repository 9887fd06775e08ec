// Package identity реализует клиента внешнего провайдера идентификации.
//
// Провайдер авторитетен для учётных данных входа и непрозрачен во всём
// остальном: ядро хранит только ссылку на внешнюю учётку. Сбои клиента
// поднимаются как errs.IdentityProviderError и прерывают операцию
// только для одной записи пользователя.
package identity

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/magabrotheeeer/licensing-reconciler/internal/errs"
)

// Client — HTTP клиент провайдера идентификации.
type Client struct {
	apiKey     string
	apiSecret  string
	apiURL     string
	httpClient *http.Client
}

// NewClient создаёт нового клиента провайдера идентификации.
func NewClient(apiURL, apiKey, apiSecret string) *Client {
	return &Client{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	url := c.apiURL + path
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return nil, err
	}
	auth := base64.StdEncoding.EncodeToString([]byte(c.apiKey + ":" + c.apiSecret))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// CreateIdentity создаёт учётку во внешнем провайдере и возвращает её идентификатор.
func (c *Client) CreateIdentity(ctx context.Context, email, pass, displayName string) (string, error) {
	req, err := c.newRequest(ctx, "POST", "/accounts", CreateIdentityRequest{
		Email:         email,
		Password:      pass,
		DisplayName:   displayName,
		EmailVerified: true,
	})
	if err != nil {
		return "", &errs.IdentityProviderError{Op: "create", Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &errs.IdentityProviderError{Op: "create", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", &errs.IdentityProviderError{Op: "create", Err: errors.New("unexpected status: " + resp.Status)}
	}

	var created CreateIdentityResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", &errs.IdentityProviderError{Op: "create", Err: err}
	}
	return created.ID, nil
}

// UpdateIdentity обновляет поля учётки во внешнем провайдере.
func (c *Client) UpdateIdentity(ctx context.Context, externalID string, fields UpdateIdentityRequest) error {
	req, err := c.newRequest(ctx, "PATCH", "/accounts/"+externalID, fields)
	if err != nil {
		return &errs.IdentityProviderError{Op: "update", Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &errs.IdentityProviderError{Op: "update", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &errs.IdentityProviderError{Op: "update", Err: errors.New("unexpected status: " + resp.Status)}
	}
	return nil
}
