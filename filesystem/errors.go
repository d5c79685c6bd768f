package filesystem

import (
	"errors"
	iofs "io/fs"
	"syscall"

	"github.com/brettbedarf/memfs/pathname"
)

// pathError wraps err the way the os package reports failed path operations
func pathError(op, path string, err error) error {
	return &iofs.PathError{Op: op, Path: path, Err: err}
}

// Errno extracts the syscall errno carried by err, defaulting to EIO
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	if errors.Is(err, pathname.ErrInvalidPath) {
		return syscall.EINVAL
	}
	return syscall.EIO
}
