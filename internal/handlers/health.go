package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/waitlist/internal/store"
	"github.com/charlesng35/waitlist/pkg/logger"
)

const healthProbeKey = "health:probe"

// Health reports whether the store answers a read. It returns 503 when it
// does not.
func Health(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, code := "ok", http.StatusOK
		if st == nil {
			status, code = "unavailable", http.StatusServiceUnavailable
		} else if err := st.View(c.Request.Context(), func(tx *store.Tx) error {
			_, err := tx.Exists(healthProbeKey)
			return err
		}); err != nil {
			logger.WithModule("http").Warn("health probe failed", zap.Error(err))
			status, code = "unavailable", http.StatusServiceUnavailable
		}

		backend := ""
		if st != nil {
			backend = st.Backend()
		}
		c.JSON(code, gin.H{
			"success":    code == http.StatusOK,
			"status":     status,
			"backend":    backend,
			"checked_at": time.Now().UTC(),
		})
	}
}
