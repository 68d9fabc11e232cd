package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/judgegodwins/chess-relay/http_utils"
	"github.com/judgegodwins/chess-relay/util"
)

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, http_utils.NewBaseResponse(true, "ok"))
}

type getRoomRequest struct {
	RoomID string `uri:"room_id" validate:"required,roomid"`
}

// GetRoom returns the in-memory state of a room. Rooms that were never
// joined or were evicted report 404 even if the store has a record.
func (s *Server) GetRoom(c *gin.Context) {
	var data getRoomRequest

	if err := c.ShouldBindUri(&data); err != nil {
		c.JSON(http.StatusUnprocessableEntity, errorResponse(err.Error()))
		return
	}

	if res, ok := http_utils.ValidateStruct(util.Validate, data); !ok {
		c.JSON(http.StatusUnprocessableEntity, res)
		return
	}

	snap, ok := s.registry.Snapshot(data.RoomID)
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse("room not found"))
		return
	}

	c.JSON(http.StatusOK, successResponse("room data", snap))
}
