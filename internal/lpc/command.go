// Package lpc stands for "Local Procedure Call": a typed request/response over Go channels, for talking to a
// goroutine that owns some state.
package lpc

import (
	"errors"

	"github.com/alanbriolat/lecture-archiver/generic"
	sync_ "github.com/alanbriolat/lecture-archiver/internal/sync"
)

var (
	ErrClosed     = errors.New("command response already sent")
	ErrNoResponse = errors.New("no response")
)

// Command is created by the caller with New, sent to the owning goroutine, and answered exactly once.
type Command[Arg any, Response any] struct {
	initialized bool
	arg         Arg
	response    generic.Result[Response]
	done        sync_.Event
}

func (*Command[Arg, Response]) New(arg Arg) *Command[Arg, Response] {
	return &Command[Arg, Response]{
		initialized: true,
		arg:         arg,
		response:    generic.Err[Response](ErrNoResponse),
	}
}

func (c *Command[Arg, Response]) mustBeInitialized(method string) {
	if c == nil || !c.initialized {
		panic("lpc: ." + method + "() called on a Command not created with .New()")
	}
}

func (c *Command[Arg, Response]) Arg() Arg {
	return c.arg
}

func (c *Command[Arg, Response]) respond(result generic.Result[Response]) error {
	if c.done.IsSet() {
		return ErrClosed
	}
	c.response = result
	c.done.Set()
	return nil
}

func (c *Command[Arg, Response]) Respond(response Response) error {
	c.mustBeInitialized("Respond")
	return c.respond(generic.Ok(response))
}

func (c *Command[Arg, Response]) RespondError(err error) error {
	c.mustBeInitialized("RespondError")
	return c.respond(generic.Err[Response](err))
}

// Wait blocks until the command is answered or closed.
func (c *Command[Arg, Response]) Wait() (Response, error) {
	c.mustBeInitialized("Wait")
	<-c.done.Wait()
	return c.response.Parts()
}

// Close ends the command without a response; Wait then returns ErrNoResponse.
func (c *Command[Arg, Response]) Close() {
	c.mustBeInitialized("Close")
	c.done.Set()
}
