// File: internal/device/image.go
package device

import (
	"fmt"
	"os"
)

// ImageDevice serves positioned reads from an NTFS volume image file. It
// backs tests and offline analysis; live volumes use the raw device on
// Windows.
type ImageDevice struct {
	file *os.File
	size int64
}

// OpenImage opens a volume image file read-only.
func OpenImage(path string) (*ImageDevice, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening image file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat image file: %w", err)
	}
	return &ImageDevice{file: file, size: info.Size()}, nil
}

// ReadAt reads len(p) bytes at the absolute offset.
func (d *ImageDevice) ReadAt(p []byte, off int64) (int, error) {
	return d.file.ReadAt(p, off)
}

// Size returns the image length in bytes.
func (d *ImageDevice) Size() int64 { return d.size }

// Close releases the file handle.
func (d *ImageDevice) Close() error { return d.file.Close() }
