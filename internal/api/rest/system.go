package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GET /api/v1/status
func (s *Server) getSystemStatus(c *gin.Context) {
	status := s.lm.GetCurrentStatus()
	c.JSON(http.StatusOK, status)
}

// GET /api/v1/channels
func (s *Server) listChannels(c *gin.Context) {
	channels := s.lm.DeviceManager().Channels()

	response := make([]gin.H, 0, len(channels))
	for _, ch := range channels {
		entry := gin.H{
			"name":     ch.Name(),
			"readback": ch.MeasureName(),
			"unit":     ch.Unit(),
		}
		if r := ch.Range(); r.Min != nil || r.Max != nil {
			entry["range"] = r
		}
		response = append(response, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"channels": response,
		"count":    len(response),
	})
}
