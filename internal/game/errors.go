// internal/game/errors.go
package game

import "errors"

// Kind groups error codes into the classes callers branch on.
type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindForbidden  Kind = "forbidden"
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindInternal   Kind = "internal"
)

// Error is a failure with a stable wire code. Sentinels below are compared with errors.Is;
// wrap them with fmt.Errorf("%w: ...") to add detail without losing the code.
type Error struct {
	Kind Kind
	Code string
}

func (e *Error) Error() string { return e.Code }

func newError(kind Kind, code string) *Error { return &Error{Kind: kind, Code: code} }

// NewError builds an error for codes owned by other packages (rooms, gateway).
func NewError(kind Kind, code string) *Error { return newError(kind, code) }

var (
	ErrForbidden     = newError(KindForbidden, "forbidden")
	ErrUnknownAction = newError(KindValidation, "unknown_action")
	ErrBadArgs       = newError(KindValidation, "bad_args")
	ErrBadCell       = newError(KindValidation, "bad_cell")
	ErrBadCol        = newError(KindValidation, "bad_col")
	ErrBadName       = newError(KindValidation, "bad_name")
	ErrBadValue      = newError(KindValidation, "bad_value")
	ErrBadScores     = newError(KindValidation, "bad_scores")
	ErrBadQuiz       = newError(KindValidation, "bad_quiz")
	ErrTeamNotFound  = newError(KindNotFound, "team_not_found")
	ErrNotInLobby    = newError(KindConflict, "not_in_lobby")
	ErrNotInGame     = newError(KindConflict, "not_in_game")
	ErrUsed          = newError(KindConflict, "used")
	ErrAlreadyOpen   = newError(KindConflict, "already_open")
	ErrNoCurrent     = newError(KindConflict, "no_current")
	ErrActionFailed  = newError(KindInternal, "action_failed")
)

// CodeOf extracts the wire code of err, falling back to action_failed.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrActionFailed.Code
}

// KindOf extracts the error class of err, falling back to internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
