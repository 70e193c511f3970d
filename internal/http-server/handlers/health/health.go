package health

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"PledgePay/internal/lib/api/response"
)

// Check reports service liveness.
func Check(_ *slog.Logger, env string) http.HandlerFunc {
	started := time.Now()

	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, response.Ok(map[string]any{
			"service": "pledgepay",
			"env":     env,
			"uptime":  time.Since(started).Round(time.Second).String(),
		}))
	}
}
