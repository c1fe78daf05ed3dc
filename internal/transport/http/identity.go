package http

import (
	"net/http"
	"strconv"

	"datalab-quiz-service/internal/domain"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserName = "X-User-Name"
)

// RequireIdentity resolves the acting user from the identity headers, or from
// the userId/name query parameters for clients that cannot set headers
// (browser websockets). Requests without a positive user id get a 401.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawID := r.Header.Get(HeaderUserID)
		name := r.Header.Get(HeaderUserName)
		if rawID == "" {
			rawID = r.URL.Query().Get("userId")
			name = r.URL.Query().Get("name")
		}

		userID, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil || userID <= 0 {
			writeJSON(w, http.StatusUnauthorized, errorPayload{Message: "missing or invalid " + HeaderUserID})
			return
		}

		ctx := domain.WithIdentity(r.Context(), domain.Identity{UserID: userID, Username: name})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
