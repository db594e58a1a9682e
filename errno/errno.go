// Package errno gives internal APIs a small typed error that carries a
// POSIX errno value, so the boundary described in spec.md section 7 (error
// handling design) has a concrete Go shape: internal validation failures
// return an *errno.Errno synchronously, and fuseadapter is the only place
// that turns one into the negative-errno bazil.org/fuse expects.
package errno

import (
	"fmt"
	"syscall"
)

// Errno wraps a syscall errno value (e.g. syscall.ENOENT) with an optional
// message giving the caller context a plain errno number wouldn't carry.
type Errno struct {
	Num int
	Msg string
}

func (e *Errno) Error() string {
	if e.Msg == "" {
		return errName(e.Num)
	}
	return fmt.Sprintf("%s: %s", errName(e.Num), e.Msg)
}

// Syscall returns the underlying syscall.Errno value. fuseadapter
// relies on this (rather than importing this package's Num field
// directly) to satisfy bazil.org/fuse's ErrorNumber interface without
// this package needing to import bazil.org/fuse itself -- the same
// separation the teacher repo's fuse/error.go keeps between its
// generic IOerror and the FUSE-specific Errno() method.
func (e *Errno) Syscall() syscall.Errno {
	return syscall.Errno(e.Num)
}

// New constructs an Errno with no extra message.
func New(num int) *Errno { return &Errno{Num: num} }

// Newf constructs an Errno with a formatted message.
func Newf(num int, format string, args ...interface{}) *Errno {
	return &Errno{Num: num, Msg: fmt.Sprintf(format, args...)}
}

// Is reports whether err is an *Errno carrying num.
func Is(err error, num int) bool {
	e, ok := err.(*Errno)
	return ok && e.Num == num
}

// Number extracts the errno value from err, or 0 (no error) if err is not
// an *Errno.
func Number(err error) int {
	if e, ok := err.(*Errno); ok {
		return e.Num
	}
	return 0
}
