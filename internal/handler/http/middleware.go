package http

import (
	"context"
	"mime"
	"net/http"

	"github.com/elparchetipk/asiste-app-be-fast/internal/domain"
	"github.com/elparchetipk/asiste-app-be-fast/pkg/httputil"
	"github.com/elparchetipk/asiste-app-be-fast/pkg/middleware"
)

// ContentTypeJSON rejects request bodies declared as anything but JSON.
// Requests without a Content-Type header are let through and fail decoding
// if the body is not JSON.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "" {
			mediaType, _, err := mime.ParseMediaType(ct)
			if err != nil || mediaType != "application/json" {
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.Response{
					Error: &httputil.ErrorResponse{
						Code:    "UNSUPPORTED_MEDIA_TYPE",
						Message: "Content-Type must be application/json",
					},
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// TokenAuthenticator resolves an access token into the account it belongs
// to. *service.AuthService implements it.
type TokenAuthenticator interface {
	ValidateToken(ctx context.Context, token string) (*domain.UserSnapshot, error)
}

// PrincipalResolver adapts a TokenAuthenticator to middleware.Authenticate.
func PrincipalResolver(a TokenAuthenticator) middleware.TokenValidator {
	return func(ctx context.Context, token string) (*middleware.Principal, error) {
		user, err := a.ValidateToken(ctx, token)
		if err != nil {
			return nil, err
		}
		return &middleware.Principal{UserID: user.ID, Role: user.Role}, nil
	}
}
