package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tanglechat/rtc-signaling/internal/media"
	"github.com/tanglechat/rtc-signaling/internal/registry"
)

// Metrics exposes the media backend mode and live room/transport counters.
// Mode reflects the backend actually constructed, not the configured
// intent, so a misconfigured deployment shows up here.
func Metrics(ctl media.Controller, reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"media": ctl.Metrics(),
			"rooms": reg.Snapshot(),
		})
	}
}
