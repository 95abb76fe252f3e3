// Command fiobench exercises the fileio layer end to end: it writes a
// pattern file through the sequential writer, reads it back through the
// plain reader and the memory-mapped handle, verifies the round trips and
// reports timings.
package main

import (
	"bytes"
	"flag"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"fileio"
)

var (
	sizeMiB = flag.Int("size", 64, "size of the test file in MiB")
	path    = flag.String("path", "", "test file path (default: under the system temp dir)")
	keep    = flag.Bool("keep", false, "keep the test file instead of deleting it")
)

const chunkSize = 1 << 20

func main() {
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	target := *path
	if target == "" {
		target = filepath.Join(os.TempDir(), "fiobench.dat")
	}
	if !*keep {
		defer os.Remove(target)
		defer os.Remove(target + ".lock")
	}

	total := int64(*sizeMiB) << 20
	chunk := make([]byte, chunkSize)
	for i := range chunk {
		chunk[i] = byte(i % 251)
	}

	logger.Info("starting benchmark",
		zap.String("version", fileio.Version()),
		zap.String("path", target),
		zap.Int64("bytes", total),
	)

	start := time.Now()
	w, err := fileio.OpenWriterExclusive(target, false)
	if err != nil {
		logger.Fatal("open writer", zap.Error(err))
	}
	for written := int64(0); written < total; written += chunkSize {
		if _, err := w.Write(chunk); err != nil {
			logger.Fatal("sequential write", zap.Error(err))
		}
	}
	if err := w.Sync(); err != nil {
		logger.Fatal("sync", zap.Error(err))
	}
	if err := w.Close(); err != nil {
		logger.Fatal("close writer", zap.Error(err))
	}
	logger.Info("sequential write done", zap.Duration("elapsed", time.Since(start)))

	start = time.Now()
	r, err := fileio.OpenReader(target)
	if err != nil {
		logger.Fatal("open reader", zap.Error(err))
	}
	for off := int64(0); off < total; off += chunkSize {
		buf, err := r.ReadBufferAt(off, chunkSize)
		if err != nil {
			logger.Fatal("positional read", zap.Error(err), zap.Int64("offset", off))
		}
		if !bytes.Equal(buf.Bytes(), chunk) {
			logger.Fatal("read mismatch", zap.Int64("offset", off))
		}
		buf.Release()
	}
	if err := r.Close(); err != nil {
		logger.Fatal("close reader", zap.Error(err))
	}
	logger.Info("buffered read done", zap.Duration("elapsed", time.Since(start)))

	start = time.Now()
	m, err := fileio.OpenMapped(target, fileio.ModeRead)
	if err != nil {
		logger.Fatal("open mapped", zap.Error(err))
	}
	if err := m.WillNeed(); err != nil {
		logger.Warn("prefetch hint", zap.Error(err))
	}
	for off := int64(0); off < total; off += chunkSize {
		buf, err := m.ReadBufferAt(off, chunkSize)
		if err != nil {
			logger.Fatal("zero-copy read", zap.Error(err), zap.Int64("offset", off))
		}
		if !bytes.Equal(buf.Bytes(), chunk) {
			logger.Fatal("mapped read mismatch", zap.Int64("offset", off))
		}
		buf.Release()
	}
	if err := m.Close(); err != nil {
		logger.Fatal("close mapped", zap.Error(err))
	}
	logger.Info("zero-copy read done", zap.Duration("elapsed", time.Since(start)))
}
