package util

import "fmt"

// Field names of the redis hash holding a room.
const (
	RoomIDKey          = "id"
	RoomPositionKey    = "position"
	RoomTurnKey        = "turn"
	RoomPlayerWhiteKey = "player_white"
	RoomPlayerBlackKey = "player_black"
	RoomUpdatedAtKey   = "updated_at"
)

const DefaultFEN string = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

const MaxRoomIDLength = 128

func GetRoomKey(room string) string {
	return fmt.Sprintf("room:%v", room)
}
