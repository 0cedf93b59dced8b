// Package errs describes errors with an operation trail and a kind, so callers
// can decide how to react without matching on strings.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Op is the name of the operation that produced an error, usually
// "package.Function" or "type.Method".
type Op string

// Parameter names the input that was at fault.
type Parameter string

// UserName is the user the operation ran on behalf of.
type UserName string

type Kind uint8

const (
	Other Kind = iota
	Invalid
	IO
	NotExist
	Internal
	InvalidRequest
	Unauthenticated
	Unauthorized
	Validation
)

func (k Kind) String() string {
	switch k {
	case Other:
		return "other error"
	case Invalid:
		return "invalid operation"
	case IO:
		return "I/O error"
	case NotExist:
		return "item does not exist"
	case Internal:
		return "internal error"
	case InvalidRequest:
		return "invalid request"
	case Unauthenticated:
		return "unauthenticated request"
	case Unauthorized:
		return "unauthorized request"
	case Validation:
		return "input validation error"
	}

	return "unknown error kind"
}

type Error struct {
	Op    Op
	Kind  Kind
	Param Parameter
	User  UserName
	Err   error
}

// E builds an *Error from its arguments. The type of each argument decides
// what it sets; an unknown type panics, it is always a programming error.
func E(args ...any) error {
	if len(args) == 0 {
		panic("call to errs.E with no arguments")
	}

	e := &Error{}

	for _, arg := range args {
		switch a := arg.(type) {
		case Op:
			e.Op = a
		case Kind:
			e.Kind = a
		case Parameter:
			e.Param = a
		case UserName:
			e.User = a
		case string:
			e.Err = errors.New(a)
		case *Error:
			cp := *a
			e.Err = &cp
		case error:
			e.Err = a
		case nil:
		default:
			panic(fmt.Sprintf("errs.E: bad call with argument type %T", arg))
		}
	}

	prev, ok := e.Err.(*Error)
	if !ok {
		return e
	}

	if prev.Kind == e.Kind {
		prev.Kind = Other
	}

	if e.Kind == Other {
		e.Kind = prev.Kind
		prev.Kind = Other
	}

	if e.Param == "" {
		e.Param = prev.Param
	}

	if e.User == "" {
		e.User = prev.User
	}

	return e
}

func (e *Error) Error() string {
	b := &strings.Builder{}

	if e.Op != "" {
		b.WriteString(string(e.Op))
	}

	if e.Param != "" {
		pad(b, ": ")
		b.WriteString("parameter ")
		b.WriteString(string(e.Param))
	}

	if e.Kind != Other {
		pad(b, ": ")
		b.WriteString(e.Kind.String())
	}

	if e.Err != nil {
		pad(b, ": ")
		b.WriteString(e.Err.Error())
	}

	if b.Len() == 0 {
		return "no error"
	}

	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func pad(b *strings.Builder, str string) {
	if b.Len() == 0 {
		return
	}

	b.WriteString(str)
}

// Str returns an error that formats as the given text.
func Str(text string) error {
	return errors.New(text)
}

// KindIs reports whether the outermost *Error in the chain has the given kind.
func KindIs(kind Kind, err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	if e.Kind != Other {
		return e.Kind == kind
	}

	if e.Err != nil {
		return KindIs(kind, e.Err)
	}

	return false
}

// OpStack returns the operations an error passed through, outermost first.
func OpStack(err error) []string {
	var ops []string

	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			break
		}

		if e.Op != "" {
			ops = append(ops, string(e.Op))
		}

		err = e.Err
	}

	return ops
}
