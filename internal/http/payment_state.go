package http

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"

	"github.com/eventpay/payment-events/internal/model"
	"github.com/eventpay/payment-events/internal/payment"
	"github.com/eventpay/payment-events/internal/repository"
)

// paymentStateHandler returns the canonical payment for an attendance,
// resolved over whatever duplicate rows provider retries have left behind.
func paymentStateHandler(payments repository.PaymentsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		attendanceID := strings.TrimSpace(c.Param("id"))
		if attendanceID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing attendance id"})
		}

		rows, err := payments.ListByAttendance(c.Request().Context(), attendanceID)
		if err != nil {
			c.Logger().Errorf("list payments failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		canonical := payment.ResolveCanonical(rows, model.TerminalPaymentStatuses)
		if canonical == nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "no payment found"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"attendance_id": attendanceID,
			"payment": map[string]any{
				"id":      canonical.ID,
				"method":  canonical.Method,
				"status":  canonical.Status,
				"amount":  canonical.Amount,
				"paid_at": canonical.PaidAt,
			},
			"records": len(rows),
		})
	}
}
