package compressor

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const headerComment = "backuppilot dump"

// GzipCompressor compresses dump files. The gzip header keeps the dump's
// file name and modification time.
type GzipCompressor struct {
	level int
}

func NewGzip() *GzipCompressor {
	return &GzipCompressor{level: gzip.BestCompression}
}

// NewGzipLevel accepts any level gzip.NewWriterLevel does; out of range
// values fall back to BestCompression.
func NewGzipLevel(level int) *GzipCompressor {
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		level = gzip.BestCompression
	}
	return &GzipCompressor{level: level}
}

func (g *GzipCompressor) Extension() string {
	return ".gz"
}

// Compress writes destPath only once the whole stream is flushed; a failed
// run leaves nothing behind.
func (g *GzipCompressor) Compress(sourcePath, destPath string) error {
	src, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to open dump: %w", err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat dump: %w", err)
	}

	return writeAtomic(destPath, func(w io.Writer) error {
		zw, err := gzip.NewWriterLevel(w, g.level)
		if err != nil {
			return fmt.Errorf("failed to create gzip writer: %w", err)
		}
		zw.Name = filepath.Base(sourcePath)
		zw.ModTime = info.ModTime()
		zw.Comment = headerComment

		if _, err := io.Copy(zw, src); err != nil {
			zw.Close()
			return fmt.Errorf("failed to compress %s: %w", zw.Name, err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("failed to flush gzip stream: %w", err)
		}
		return nil
	})
}

func (g *GzipCompressor) Decompress(sourcePath, destPath string) error {
	src, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer src.Close()

	zr, err := gzip.NewReader(src)
	if err != nil {
		return fmt.Errorf("failed to read gzip header: %w", err)
	}
	defer zr.Close()

	return writeAtomic(destPath, func(w io.Writer) error {
		if _, err := io.Copy(w, zr); err != nil {
			return fmt.Errorf("failed to decompress %s: %w", filepath.Base(sourcePath), err)
		}
		return nil
	})
}

func writeAtomic(destPath string, fill func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(destPath), "."+filepath.Base(destPath)+".part-*")
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}

	if err := fill(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := os.Rename(tmp.Name(), destPath); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to move output into place: %w", err)
	}
	return nil
}
