// internal/web/middleware.go
package web

import (
	"bookshare/internal/apierror"
	"bookshare/internal/catalog"
	"bookshare/internal/clients"
	"context"
	"errors"
	"log/slog"
	"net/http"
)

// Authenticator resolves the user behind the credentials carried by ctx.
type Authenticator interface {
	Me(ctx context.Context) (*catalog.User, error)
}

type userKey struct{}

func withUser(ctx context.Context, u *catalog.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFrom returns the acting user stored by Identity.
func UserFrom(ctx context.Context) (*catalog.User, bool) {
	u, ok := ctx.Value(userKey{}).(*catalog.User)
	return u, ok && u != nil
}

// Identity forwards the caller's credentials to the backend and rejects
// callers the backend does not recognize.
func Identity(auth Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds := clients.CredentialsFromRequest(r)
			if creds.Authorization == "" && creds.Cookie == "" {
				writeDetail(w, http.StatusUnauthorized, "Not authenticated")
				return
			}
			ctx := clients.WithCredentials(r.Context(), creds)

			user, err := auth.Me(ctx)
			if err != nil {
				var rf *apierror.RequestFailure
				if errors.As(err, &rf) && rf.Unauthorized() {
					writeDetail(w, http.StatusUnauthorized, rf.Info.Message)
					return
				}
				logger.WarnContext(ctx, "identity lookup failed", "error", err)
				writeDetail(w, http.StatusBadGateway, apierror.GenericReason)
				return
			}

			next.ServeHTTP(w, r.WithContext(withUser(ctx, user)))
		})
	}
}
