package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/webrtc-collab/internal/room"
)

// GetRoom reports the live participants of a room and the size of its
// stroke log. Rooms nobody is in are reported empty.
func GetRoom(coord *room.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID := c.Param("roomId")

		info, err := coord.RoomInfo(c.Request.Context(), roomID)
		if err != nil {
			log.Printf("Failed to load room %s: %v", roomID, err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to load room"})
			return
		}

		c.JSON(http.StatusOK, info)
	}
}
