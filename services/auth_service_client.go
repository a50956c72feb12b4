// services/auth_service_client.go
package services

import (
	"context"
	"net/http"
	"time"
)

// AuthServiceClient validates end-user access tokens for routes the gateway
// cannot front, such as SSE streams opened by browsers.
type AuthServiceClient struct {
	client serviceClient
}

type ValidateResponse struct {
	UserID   string   `json:"user_id"`
	DeviceID string   `json:"device_id"`
	Roles    []string `json:"roles"`
}

func NewAuthServiceClient(baseURL, token string, httpClient *http.Client) *AuthServiceClient {
	return &AuthServiceClient{client: serviceClient{
		Name:          "auth",
		BaseURL:       baseURL,
		Token:         token,
		HTTPClient:    httpClient,
		MaxRetries:    1,
		RetryInterval: 200 * time.Millisecond,
	}}
}

// ValidateToken calls /auth/validate on the auth service.
func (c *AuthServiceClient) ValidateToken(ctx context.Context, accessToken, deviceID string) (*ValidateResponse, error) {
	body := map[string]string{
		"access_token": accessToken,
		"device_id":    deviceID,
	}
	var out ValidateResponse
	if err := c.client.do(ctx, http.MethodPost, "/auth/validate", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
