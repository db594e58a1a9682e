package errno

import "syscall"

// errName renders the errno constants spec.md's error table (section 7)
// actually uses as readable names, falling back to the numeric value for
// anything outside that set.
func errName(num int) string {
	switch syscall.Errno(num) {
	case syscall.ENODEV:
		return "ENODEV"
	case syscall.ENXIO:
		return "ENXIO"
	case syscall.EEXIST:
		return "EEXIST"
	case syscall.ENOSPC:
		return "ENOSPC"
	case syscall.EBUSY:
		return "EBUSY"
	case syscall.ENOTEMPTY:
		return "ENOTEMPTY"
	case syscall.ENOENT:
		return "ENOENT"
	case syscall.EISDIR:
		return "EISDIR"
	case syscall.ENOTDIR:
		return "ENOTDIR"
	case syscall.EINVAL:
		return "EINVAL"
	case syscall.EIO:
		return "EIO"
	case syscall.ENOMEM:
		return "ENOMEM"
	case syscall.EBADF:
		return "EBADF"
	default:
		return syscall.Errno(num).Error()
	}
}
