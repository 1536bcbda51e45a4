package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/eventpay/payment-events/internal/model"
	"github.com/eventpay/payment-events/internal/processor"
	"github.com/eventpay/payment-events/internal/worker"
)

// webhookHandler receives provider event notifications and drives the
// idempotent processor. Delivery is at-least-once on the provider's side,
// so duplicate ids are expected and answered from the cached result.
func webhookHandler(proc *processor.Processor, handlerFor worker.HandlerFor) echo.HandlerFunc {
	return func(c echo.Context) error {
		var ev model.ProviderEvent
		if err := c.Bind(&ev); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		ev.ID = strings.TrimSpace(ev.ID)
		ev.Type = strings.TrimSpace(ev.Type)
		if ev.ID == "" || ev.Type == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing event id or type"})
		}

		var meta json.RawMessage
		if ev.Account != "" {
			meta, _ = json.Marshal(map[string]string{"account": ev.Account})
		}

		outcome, err := proc.Process(
			c.Request().Context(),
			ev.ID,
			ev.Type,
			handlerFor(ev),
			processor.Options{Metadata: meta},
		)
		if err != nil {
			if errors.Is(err, processor.ErrInProgress) {
				// a concurrent delivery holds the claim; nothing to redo here
				return c.JSON(http.StatusAccepted, map[string]any{
					"event_id": ev.ID,
					"status":   "in_progress",
				})
			}
			log.Errorf("webhook %s failed: %v", ev.ID, err)
			// non-2xx so the provider redelivers; the dead-letter worker
			// covers the case where it gives up
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "processing failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"event_id":          ev.ID,
			"already_processed": outcome.AlreadyProcessed,
			"result":            outcome.Result,
		})
	}
}
