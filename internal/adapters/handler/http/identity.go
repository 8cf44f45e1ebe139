package http

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const ParticipantIDKey contextKey = "participant_id"

const (
	participantCookie = "participant_id"
	participantHeader = "X-Participant-ID"
)

// Identity gives every caller a stable anonymous participant id. API
// clients may send it in a header; browsers get it as a cookie on first
// contact.
func Identity(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(participantHeader)
			if _, err := uuid.Parse(id); err != nil {
				id = ""
			}

			if id == "" {
				if cookie, err := r.Cookie(participantCookie); err == nil {
					if _, err := uuid.Parse(cookie.Value); err == nil {
						id = cookie.Value
					}
				}
			}

			if id == "" {
				id = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     participantCookie,
					Value:    id,
					Path:     "/",
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
					MaxAge:   365 * 24 * 60 * 60, // 1 year
				})
			}

			ctx := context.WithValue(r.Context(), ParticipantIDKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func participantFrom(r *http.Request) (string, bool) {
	id, ok := r.Context().Value(ParticipantIDKey).(string)
	return id, ok && id != ""
}
