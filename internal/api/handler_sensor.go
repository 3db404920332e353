package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetLatestReadings handles GET /api/sensor: the last raw readings held in
// process memory, not the data store's view.
func (h *Handler) GetLatestReadings(c *gin.Context) {
	c.JSON(http.StatusOK, h.readings.Latest())
}

// RefreshMapping handles GET /api/refresh-mapping: rebuilds the IP-to-sensor
// mapping synchronously and returns it.
func (h *Handler) RefreshMapping(c *gin.Context) {
	c.JSON(http.StatusOK, h.resolver.Refresh(c.Request.Context()))
}
