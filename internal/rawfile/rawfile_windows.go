//go:build windows

package rawfile

import (
	"io"
	"os"

	"golang.org/x/sys/windows"
)

func sysOpen(path string, writable bool) (int, error) {
	name, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return -1, &os.PathError{Op: "open", Path: path, Err: err}
	}
	access := uint32(windows.GENERIC_READ)
	if writable {
		access |= windows.GENERIC_WRITE
	}
	share := uint32(windows.FILE_SHARE_READ | windows.FILE_SHARE_WRITE)
	h, err := windows.CreateFile(name, access, share, nil, windows.OPEN_EXISTING, windows.FILE_ATTRIBUTE_NORMAL, 0)
	if err != nil {
		return -1, &os.PathError{Op: "open", Path: path, Err: err}
	}
	return int(h), nil
}

func sysCreate(path string, truncate bool) (int, error) {
	name, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return -1, &os.PathError{Op: "open", Path: path, Err: err}
	}
	disposition := uint32(windows.OPEN_ALWAYS)
	if truncate {
		disposition = windows.CREATE_ALWAYS
	}
	share := uint32(windows.FILE_SHARE_READ | windows.FILE_SHARE_WRITE)
	h, err := windows.CreateFile(name, windows.GENERIC_WRITE, share, nil, disposition, windows.FILE_ATTRIBUTE_NORMAL, 0)
	if err != nil {
		return -1, &os.PathError{Op: "open", Path: path, Err: err}
	}
	return int(h), nil
}

func sysClose(fd int) error {
	if err := windows.CloseHandle(windows.Handle(fd)); err != nil {
		return os.NewSyscallError("CloseHandle", err)
	}
	return nil
}

func sysRead(fd int, p []byte) (int, error) {
	var done uint32
	err := windows.ReadFile(windows.Handle(fd), p, &done, nil)
	if err != nil {
		if err == windows.ERROR_BROKEN_PIPE || err == windows.ERROR_HANDLE_EOF {
			return int(done), nil
		}
		return int(done), os.NewSyscallError("ReadFile", err)
	}
	return int(done), nil
}

func sysWrite(fd int, p []byte) (int, error) {
	var done uint32
	if err := windows.WriteFile(windows.Handle(fd), p, &done, nil); err != nil {
		return int(done), os.NewSyscallError("WriteFile", err)
	}
	return int(done), nil
}

// sysPread has no pread equivalent on Windows; an overlapped read with an
// explicit offset is the atomic positional primitive, but it still advances
// the handle's file position, so callers must not interleave it with
// position-relative reads without an intervening seek.
func sysPread(fd int, p []byte, off int64) (int, error) {
	ov := windows.Overlapped{
		Offset:     uint32(off),
		OffsetHigh: uint32(off >> 32),
	}
	var done uint32
	err := windows.ReadFile(windows.Handle(fd), p, &done, &ov)
	if err != nil {
		if err == windows.ERROR_HANDLE_EOF {
			return int(done), nil
		}
		return int(done), os.NewSyscallError("ReadFile", err)
	}
	return int(done), nil
}

func sysPwrite(fd int, p []byte, off int64) (int, error) {
	ov := windows.Overlapped{
		Offset:     uint32(off),
		OffsetHigh: uint32(off >> 32),
	}
	var done uint32
	if err := windows.WriteFile(windows.Handle(fd), p, &done, &ov); err != nil {
		return int(done), os.NewSyscallError("WriteFile", err)
	}
	return int(done), nil
}

func sysSeek(fd int, offset int64, whence int) (int64, error) {
	var w int
	switch whence {
	case io.SeekStart:
		w = windows.FILE_BEGIN
	case io.SeekCurrent:
		w = windows.FILE_CURRENT
	case io.SeekEnd:
		w = windows.FILE_END
	}
	pos, err := windows.Seek(windows.Handle(fd), offset, w)
	if err != nil {
		return 0, os.NewSyscallError("SetFilePointerEx", err)
	}
	return pos, nil
}

func sysSize(fd int) (int64, error) {
	var size int64
	if err := windows.GetFileSizeEx(windows.Handle(fd), &size); err != nil {
		return 0, os.NewSyscallError("GetFileSizeEx", err)
	}
	return size, nil
}

func sysTruncate(fd int, length int64) error {
	h := windows.Handle(fd)
	cur, err := windows.Seek(h, 0, windows.FILE_CURRENT)
	if err != nil {
		return os.NewSyscallError("SetFilePointerEx", err)
	}
	if _, err := windows.Seek(h, length, windows.FILE_BEGIN); err != nil {
		return os.NewSyscallError("SetFilePointerEx", err)
	}
	if err := windows.SetEndOfFile(h); err != nil {
		return os.NewSyscallError("SetEndOfFile", err)
	}
	if _, err := windows.Seek(h, cur, windows.FILE_BEGIN); err != nil {
		return os.NewSyscallError("SetFilePointerEx", err)
	}
	return nil
}

func sysSync(fd int) error {
	if err := windows.FlushFileBuffers(windows.Handle(fd)); err != nil {
		return os.NewSyscallError("FlushFileBuffers", err)
	}
	return nil
}

// Pipe creates a unidirectional pipe and returns the read and write
// descriptors.
func Pipe() (int, int, error) {
	var r, w windows.Handle
	if err := windows.CreatePipe(&r, &w, nil, 0); err != nil {
		return -1, -1, os.NewSyscallError("CreatePipe", err)
	}
	return int(r), int(w), nil
}
