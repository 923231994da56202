package bridge

import (
	"context"
	"errors"
)

// Protocol errors. The texts are sent to clients verbatim.
var (
	ErrNotConnected   = errors.New("Not connected")
	ErrAlreadyActive  = errors.New("Already connected or connecting")
	ErrInvalidURL     = errors.New("Invalid access URL")
	ErrUnknownCommand = errors.New("Unknown command")
	ErrInvalidArgs    = errors.New("Invalid arguments")
)

// abandoned reports a command cut short by shutdown or client hang-up. No
// response is written for it.
func abandoned(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
