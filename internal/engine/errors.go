package engine

import "errors"

// Sentinel errors returned by engine operations. The wsgateway boundary
// translates these to wire error codes and sends the error's text as
// the error frame's message.
var (
	ErrWrongPhase     = errors.New("engine: wrong phase for this operation")
	ErrNotHakem       = errors.New("engine: caller is not the hakem")
	ErrInvalidSuit    = errors.New("engine: invalid suit")
	ErrNotYourTurn    = errors.New("engine: not your turn")
	ErrCardNotInHand  = errors.New("engine: card not in hand")
	ErrMustFollowSuit = errors.New("engine: must follow led suit")
	ErrRoomFull       = errors.New("engine: room is full")
	ErrAlreadySeated  = errors.New("engine: player already seated")
	ErrNotSeated      = errors.New("engine: player not seated")
)
