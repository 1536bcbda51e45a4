package http

import (
	"net/http"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/eventpay/payment-events/internal/worker"
)

// retryRunHandler is the scheduling trigger: an external timer POSTs here
// and one dead-letter pass runs synchronously. Safe to overlap with the
// worker loop since all mutation goes through the processor's claim.
func retryRunHandler(w *worker.RetryWorker) echo.HandlerFunc {
	return func(c echo.Context) error {
		rep, err := w.RunOnce(c.Request().Context())
		if err != nil {
			log.Errorf("retry pass failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "retry scan failed"})
		}
		return c.JSON(http.StatusOK, rep)
	}
}
