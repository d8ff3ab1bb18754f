package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"classroom-occupancy-backend/internal/realtime"
)

type reservationNotifyRequest struct {
	ReservationID string `json:"reservationId" binding:"required"`
	ClassroomID   string `json:"classroomId"`
	UserID        string `json:"userId"`
	Status        string `json:"status" binding:"required"`
}

// PostReservationNotify relays a reservation change from the booking system
// to live subscribers. The payload is forwarded, not interpreted.
func (h *Handler) PostReservationNotify(c *gin.Context) {
	var req reservationNotifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	delivered := h.notifier.NotifyReservationChange(realtime.ReservationChangedPayload{
		ReservationID: req.ReservationID,
		ClassroomID:   req.ClassroomID,
		UserID:        req.UserID,
		Status:        req.Status,
	})

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"delivered": delivered,
	})
}

// GetWSStats reports live hub statistics.
func (h *Handler) GetWSStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.Stats())
}
