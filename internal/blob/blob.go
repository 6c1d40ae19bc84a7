// Package blob defines the attachment-store adapter: binary upload and
// delete with an optional progress callback. Attachments are written before
// the message referencing them is created, so a failed upload never leaves a
// partial message behind.
package blob

import (
	"context"
	"io"
)

// ProgressFunc receives the number of bytes transferred so far.
type ProgressFunc func(transferred, total int64)

type Store interface {
	// Upload writes size bytes from r at path and returns the stable
	// download URL of the stored object.
	Upload(ctx context.Context, path string, r io.Reader, size int64, onProgress ProgressFunc) (string, error)
	Delete(ctx context.Context, path string) error
}

// progressReader wraps an upload source and reports transfer progress.
type progressReader struct {
	r           io.Reader
	total       int64
	transferred int64
	onProgress  ProgressFunc
}

func NewProgressReader(r io.Reader, total int64, onProgress ProgressFunc) io.Reader {
	if onProgress == nil {
		return r
	}
	return &progressReader{r: r, total: total, onProgress: onProgress}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.transferred += int64(n)
		p.onProgress(p.transferred, p.total)
	}
	return n, err
}
