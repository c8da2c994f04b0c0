package logging

import (
	"errors"
	"strings"
)

var (
	ErrInvalidLevel       = errors.New("invalid log level")
	ErrInvalidLine        = errors.New("invalid line number")
	ErrMaxSubscriptions   = errors.New("max subscriptions reached")
	ErrInvalidStreamID    = errors.New("invalid stream id")
	ErrNoSuchSubscription = errors.New("no such subscription")
	ErrClosed             = errors.New("broadcaster closed")
)

// levelError carries the level names the table accepts.
type levelError struct {
	valid []string
}

func (e *levelError) Error() string {
	return "invalid log level, valid levels are " + strings.Join(e.valid, ", ")
}

func (e *levelError) Is(target error) bool {
	return target == ErrInvalidLevel
}

// responseMessage renders err as the "error" field of an admin response.
func responseMessage(err error) string {
	var le *levelError
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &le):
		return "The provided log level is invalid, please specify one of [" + strings.Join(le.valid, ", ") + "]"
	case errors.Is(err, ErrInvalidLine):
		return "Invalid line number, must be greater than or equal to 1"
	case errors.Is(err, ErrMaxSubscriptions):
		return "Max subscription count reached."
	case errors.Is(err, ErrInvalidStreamID):
		return "Invalid streamId."
	case errors.Is(err, ErrNoSuchSubscription):
		return "No such subscription."
	default:
		return err.Error()
	}
}
