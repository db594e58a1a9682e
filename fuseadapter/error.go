package fuseadapter

import (
	"bazil.org/fuse"

	"github.com/tcmur/tcmur/errno"
)

// fuseError lets an *errno.Errno satisfy bazil.org/fuse's ErrorNumber
// interface without package errno importing bazil.org/fuse itself,
// mirroring the split the teacher repo keeps between its generic
// IOerror and its FUSE-specific Errno() method (fuse/error.go).
type fuseError struct {
	*errno.Errno
}

func (e fuseError) Errno() fuse.Errno {
	return fuse.Errno(e.Syscall())
}

// wrapErrno adapts err for return from a Node method: an *errno.Errno
// becomes a fuseError so bazil.org/fuse maps it to the right -errno;
// anything else (including nil) passes through unchanged.
func wrapErrno(err error) error {
	if e, ok := err.(*errno.Errno); ok {
		return fuseError{e}
	}
	return err
}
