// internal/room/errors.go
package room

import "github.com/jason-s-yu/quizboard/internal/game"

var (
	ErrRoomNotFound   = game.NewError(game.KindNotFound, "room_not_found")
	ErrPlayerNotFound = game.NewError(game.KindNotFound, "player_not_found")
	ErrWrongPassword  = game.NewError(game.KindForbidden, "wrong_password")
	ErrBadIdentity    = game.NewError(game.KindValidation, "bad_identity")
	ErrCreateFailed   = game.NewError(game.KindInternal, "create_failed")
)
