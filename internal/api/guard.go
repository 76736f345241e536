package api

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/org/dealership/internal/auth"
)

// guardMiddleware lets exempt and authorized requests through and answers
// 403 to everything else without invoking any handler. The rejection reason
// is logged and counted but not disclosed.
func guardMiddleware(g *auth.Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := g.Check(r)
			if info := requestInfoFromCtx(r.Context()); info != nil {
				info.decision = d
			}
			guardDecisions.WithLabelValues(d.State.String(), d.Reason).Inc()

			switch d.State {
			case auth.StateExempt:
				next.ServeHTTP(w, r)
			case auth.StateAuthorized:
				next.ServeHTTP(w, r.WithContext(withSession(r.Context(), d.Session)))
			default:
				log.Info().
					Str("request_id", requestIDFromCtx(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("reason", d.Reason).
					Msg("request rejected by guard")
				writeError(w, http.StatusForbidden, "forbidden")
			}
		})
	}
}
