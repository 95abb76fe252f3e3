//go:build unix

package rawfile

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

func sysOpen(path string, writable bool) (int, error) {
	flags := unix.O_RDONLY | unix.O_CLOEXEC
	if writable {
		flags = unix.O_RDWR | unix.O_CLOEXEC
	}
	fd, err := unix.Open(path, flags, 0)
	if err != nil {
		return -1, &os.PathError{Op: "open", Path: path, Err: err}
	}
	return fd, nil
}

func sysCreate(path string, truncate bool) (int, error) {
	flags := unix.O_WRONLY | unix.O_CREAT | unix.O_CLOEXEC
	if truncate {
		flags |= unix.O_TRUNC
	}
	fd, err := unix.Open(path, flags, DataFilePerm)
	if err != nil {
		return -1, &os.PathError{Op: "open", Path: path, Err: err}
	}
	return fd, nil
}

func sysClose(fd int) error {
	if err := unix.Close(fd); err != nil {
		return os.NewSyscallError("close", err)
	}
	return nil
}

func sysRead(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Read(fd, p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, os.NewSyscallError("read", err)
		}
		return n, nil
	}
}

func sysWrite(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Write(fd, p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, os.NewSyscallError("write", err)
		}
		return n, nil
	}
}

// sysPread uses pread, which does not touch the kernel file position, so
// concurrent positional reads need no lock around the syscall.
func sysPread(fd int, p []byte, off int64) (int, error) {
	for {
		n, err := unix.Pread(fd, p, off)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, os.NewSyscallError("pread", err)
		}
		return n, nil
	}
}

func sysPwrite(fd int, p []byte, off int64) (int, error) {
	for {
		n, err := unix.Pwrite(fd, p, off)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, os.NewSyscallError("pwrite", err)
		}
		return n, nil
	}
}

func sysSeek(fd int, offset int64, whence int) (int64, error) {
	var w int
	switch whence {
	case io.SeekStart:
		w = unix.SEEK_SET
	case io.SeekCurrent:
		w = unix.SEEK_CUR
	case io.SeekEnd:
		w = unix.SEEK_END
	}
	pos, err := unix.Seek(fd, offset, w)
	if err != nil {
		return 0, os.NewSyscallError("lseek", err)
	}
	return pos, nil
}

func sysSize(fd int) (int64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return 0, os.NewSyscallError("fstat", err)
	}
	return st.Size, nil
}

func sysTruncate(fd int, length int64) error {
	if err := unix.Ftruncate(fd, length); err != nil {
		return os.NewSyscallError("ftruncate", err)
	}
	return nil
}

func sysSync(fd int) error {
	if err := unix.Fsync(fd); err != nil {
		return os.NewSyscallError("fsync", err)
	}
	return nil
}

// Pipe creates a unidirectional pipe and returns the read and write
// descriptors.
func Pipe() (int, int, error) {
	fds := make([]int, 2)
	if err := unix.Pipe(fds); err != nil {
		return -1, -1, os.NewSyscallError("pipe", err)
	}
	return fds[0], fds[1], nil
}
