// Package blockstore uploads large files to object storage in fixed-size
// blocks with bounded concurrency. Two backends are provided: Azure style
// block blobs written through a pre-signed URL, and S3 multipart uploads.
// Router picks one from the scheme of the write URL.
package blockstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
)

const (
	MiB = 1 << 20

	DefaultBlockSize   = 4 * MiB
	MinBlockSize       = 2 * MiB
	MaxBlockSize       = 8 * MiB
	DefaultConcurrency = 4
	MaxConcurrency     = 16
)

var ErrUnsupportedTarget = errors.New("unsupported upload target")

// ProgressFunc receives the cumulative number of bytes acknowledged by the
// store. Calls may arrive from several goroutines and, rarely, out of order.
type ProgressFunc func(uploaded int64)

// Uploader writes size bytes read from src to target.
type Uploader interface {
	Upload(ctx context.Context, target string, src io.ReaderAt, size int64, contentType string, progress ProgressFunc) error
}

type Options struct {
	BlockSize   int64
	Concurrency int
}

// Normalized fills in defaults and clamps values to the supported range.
func (o Options) Normalized() Options {
	switch {
	case o.BlockSize <= 0:
		o.BlockSize = DefaultBlockSize
	case o.BlockSize < MinBlockSize:
		o.BlockSize = MinBlockSize
	case o.BlockSize > MaxBlockSize:
		o.BlockSize = MaxBlockSize
	}
	switch {
	case o.Concurrency <= 0:
		o.Concurrency = DefaultConcurrency
	case o.Concurrency > MaxConcurrency:
		o.Concurrency = MaxConcurrency
	}
	return o
}

// block is one [Offset, Offset+Length) slice of the source.
type block struct {
	Index  int
	Offset int64
	Length int64
}

func split(size, blockSize int64) []block {
	if size <= 0 {
		return nil
	}
	n := int((size + blockSize - 1) / blockSize)
	out := make([]block, n)
	for i := range out {
		off := int64(i) * blockSize
		out[i] = block{Index: i, Offset: off, Length: min(blockSize, size-off)}
	}
	return out
}

func report(progress ProgressFunc, uploaded int64) {
	if progress != nil {
		progress(uploaded)
	}
}

// Router dispatches on the target scheme: http and https go to Blob, s3 to
// the uploader built by the S3 factory on first use.
type Router struct {
	Blob Uploader

	newS3  func(ctx context.Context) (Uploader, error)
	s3Once sync.Once
	s3     Uploader
	s3Err  error
}

func NewRouter(blob Uploader, newS3 func(ctx context.Context) (Uploader, error)) *Router {
	return &Router{Blob: blob, newS3: newS3}
}

func (r *Router) Upload(ctx context.Context, target string, src io.ReaderAt, size int64, contentType string, progress ProgressFunc) error {
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedTarget, err)
	}

	switch u.Scheme {
	case "http", "https":
		if r.Blob == nil {
			return fmt.Errorf("%w: no block blob uploader", ErrUnsupportedTarget)
		}
		return r.Blob.Upload(ctx, target, src, size, contentType, progress)
	case "s3":
		if r.newS3 == nil {
			return fmt.Errorf("%w: s3 is not configured", ErrUnsupportedTarget)
		}
		r.s3Once.Do(func() { r.s3, r.s3Err = r.newS3(ctx) })
		if r.s3Err != nil {
			return r.s3Err
		}
		return r.s3.Upload(ctx, target, src, size, contentType, progress)
	}

	return fmt.Errorf("%w: scheme %q", ErrUnsupportedTarget, u.Scheme)
}
