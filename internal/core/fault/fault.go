// Package fault carries the fatal assertions of the runtime: operations on dead
// handles, exhausted budgets and unregistered types. They surface as panics so no
// caller observes the shared state past the failing operation.
package fault

import (
	"errors"
	"strings"

	"github.com/talaub/lowzero/internal/core/handle"
)

// Fault describes a fatal condition raised by operation Op on type Type.
type Fault struct {
	Op     string
	Type   string
	Handle handle.Handle
	Err    error
}

func (f *Fault) Error() string {
	var b strings.Builder

	b.WriteString("lowzero: ")
	b.WriteString(f.Op)
	if f.Type != "" {
		b.WriteString(" on type ")
		b.WriteString(f.Type)
	}
	if !f.Handle.IsDead() {
		b.WriteString(" (")
		b.WriteString(f.Handle.String())
		b.WriteByte(')')
	}
	if f.Err != nil {
		b.WriteString(": ")
		b.WriteString(f.Err.Error())
	}

	return b.String()
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// Raise panics with a Fault.
func Raise(op, typ string, err error) {
	panic(&Fault{Op: op, Type: typ, Err: err})
}

// RaiseHandle panics with a Fault naming the offending handle.
func RaiseHandle(op, typ string, h handle.Handle, err error) {
	panic(&Fault{Op: op, Type: typ, Handle: h, Err: err})
}

// Catch runs fn and converts a Fault panic into a returned value. Other panics
// propagate unchanged.
func Catch(fn func()) (f *Fault) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if err, ok := r.(error); ok {
			var target *Fault
			if errors.As(err, &target) {
				f = target
				return
			}
		}
		panic(r)
	}()
	fn()
	return nil
}
