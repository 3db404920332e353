package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"parking-bridge-backend/internal/reservation"
)

// GetAvailability handles GET /api/availability.
func (h *Handler) GetAvailability(c *gin.Context) {
	av, err := h.engine.Availability(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, av)
}

type reservationRequest struct {
	PlateNumber   string `json:"plate_number" binding:"required"`
	VehicleType   string `json:"vehicle_type"`
	PaymentMethod string `json:"payment_method" binding:"required"`
}

// PostReservation handles POST /api/reservation: the gated hold-payment
// submission flow. The step that failed is reported verbatim so the caller
// sees the specific upstream error, not a generic one.
func (h *Handler) PostReservation(c *gin.Context) {
	var req reservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.engine.Submit(c.Request.Context(), reservation.SubmissionRequest{
		PlateNumber:   req.PlateNumber,
		VehicleType:   req.VehicleType,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		if errors.Is(err, reservation.ErrNoCapacity) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, result)
}
