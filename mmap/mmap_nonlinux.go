//go:build unix && !linux

package mmap

import "errors"

// tryMremap is Linux-only; always return an error to trigger the
// unmap-and-remap fallback.
func (m *Map) tryMremap(newSize int) ([]byte, error) {
	return nil, errors.New("mremap not available")
}
