package http

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"
	"workshop-enrollment/common/constant"
	"workshop-enrollment/common/errs"
	"workshop-enrollment/model"

	"github.com/google/uuid"
)

func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, "request timeout")
	}
}

func CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type ownerCtxKey struct{}

// SessionMiddleware resolves the request owner. Anonymous visitors get a session
// cookie on first contact; the account id comes from the authenticating gateway.
func SessionMiddleware(ttl time.Duration, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			owner := model.Owner{UserID: r.Header.Get(constant.UserIDHeader)}

			if cookie, err := r.Cookie(constant.SessionCookieName); err == nil && uuid.Validate(cookie.Value) == nil {
				owner.SessionID = cookie.Value
			} else {
				owner.SessionID = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     constant.SessionCookieName,
					Value:    owner.SessionID,
					Path:     "/",
					MaxAge:   int(ttl.Seconds()),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerCtxKey{}, owner)))
		})
	}
}

func ownerFromContext(ctx context.Context) model.Owner {
	owner, _ := ctx.Value(ownerCtxKey{}).(model.Owner)
	return owner
}

// AdminMiddleware rejects requests without the configured admin key. An empty key
// disables the admin routes entirely.
func AdminMiddleware(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			given := r.Header.Get(constant.AdminKeyHeader)
			if key == "" || subtle.ConstantTimeCompare([]byte(given), []byte(key)) != 1 {
				writeErrorResponse(w, &errs.HttpError{Code: http.StatusUnauthorized, Message: "Unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
