// internal/clients/auth_client.go
package clients

import (
	"bookshare/internal/catalog"
	"context"
	"net/http"
)

// AuthClient resolves the identity behind the caller's credentials.
type AuthClient struct {
	api *apiClient
}

func NewAuthClient(baseURL string, opts Options) *AuthClient {
	return &AuthClient{api: newAPIClient(baseURL, opts)}
}

// Me returns the user the credentials in ctx belong to.
func (c *AuthClient) Me(ctx context.Context) (*catalog.User, error) {
	var user catalog.User
	err := c.api.do(ctx, call{
		op:     "me",
		method: http.MethodGet,
		path:   "/auth/me",
		out:    &user,
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}
