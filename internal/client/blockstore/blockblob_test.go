package blockstore

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/vidloader/internal/client/apierr"
	"github.com/dmitrijs2005/vidloader/internal/client/testbackend"
	"github.com/dmitrijs2005/vidloader/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

// progressLog records progress calls and their running maximum.
type progressLog struct {
	mu    sync.Mutex
	calls int
	max   int64
}

func (p *progressLog) fn(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.max = max(p.max, n)
}

func TestOptions_Normalized(t *testing.T) {
	tests := []struct {
		name string
		in   Options
		want Options
	}{
		{name: "defaults", in: Options{}, want: Options{BlockSize: DefaultBlockSize, Concurrency: DefaultConcurrency}},
		{name: "too small", in: Options{BlockSize: 1024, Concurrency: 1}, want: Options{BlockSize: MinBlockSize, Concurrency: 1}},
		{name: "too large", in: Options{BlockSize: 64 * MiB, Concurrency: 100}, want: Options{BlockSize: MaxBlockSize, Concurrency: MaxConcurrency}},
		{name: "in range", in: Options{BlockSize: 6 * MiB, Concurrency: 8}, want: Options{BlockSize: 6 * MiB, Concurrency: 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalized())
		})
	}
}

func TestSplit(t *testing.T) {
	blocks := split(10*MiB+5, 4*MiB)
	require.Len(t, blocks, 3)
	assert.Equal(t, block{Index: 2, Offset: 8 * MiB, Length: 2*MiB + 5}, blocks[2])
	assert.Nil(t, split(0, 4*MiB))
}

func TestBlockID_FixedLength(t *testing.T) {
	assert.Len(t, blockID(0), len(blockID(99999)))
	assert.NotEqual(t, blockID(1), blockID(2))
}

func TestBlockBlob_UploadsBlocksAndCommits(t *testing.T) {
	b := testbackend.New(t)
	data := randomBytes(t, 10*MiB+123)
	up := NewBlockBlob(nil, Options{BlockSize: 2 * MiB, Concurrency: 3}, logging.Discard())

	var p progressLog
	target := b.URL() + "/blob/videos/clip.mp4?sv=2024&sig=abc"
	require.NoError(t, up.Upload(context.Background(), target, bytes.NewReader(data), int64(len(data)), "video/mp4", p.fn))

	got, ok := b.Blob("videos/clip.mp4")
	require.True(t, ok)
	assert.True(t, bytes.Equal(data, got), "committed blob matches source")
	assert.Equal(t, int32(6), b.BlockPuts.Load())
	assert.Zero(t, b.BlobAuthLeaks.Load())
	assert.Equal(t, int64(len(data)), p.max)
	assert.Equal(t, 6, p.calls)
}

func TestBlockBlob_SmallFileIsSinglePut(t *testing.T) {
	b := testbackend.New(t)
	data := randomBytes(t, 1000)
	up := NewBlockBlob(nil, Options{}, logging.Discard())

	var p progressLog
	require.NoError(t, up.Upload(context.Background(), b.URL()+"/blob/small.webm?sig=x", bytes.NewReader(data), 1000, "", p.fn))

	got, ok := b.Blob("small.webm")
	require.True(t, ok)
	assert.Equal(t, data, got)
	assert.Zero(t, b.BlockPuts.Load())
	assert.Equal(t, int64(1000), p.max)
}

func TestBlockBlob_CancelAbortsOutstandingBlocks(t *testing.T) {
	b := testbackend.New(t)
	b.BlobDelay = 5 * time.Second
	data := randomBytes(t, 9*MiB)
	up := NewBlockBlob(nil, Options{BlockSize: 2 * MiB}, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	err := up.Upload(ctx, b.URL()+"/blob/slow.mp4?sig=x", bytes.NewReader(data), int64(len(data)), "video/mp4", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second)

	_, ok := b.Blob("slow.mp4")
	assert.False(t, ok)
}

func TestBlockBlob_StorageErrorIsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("AuthenticationFailed"))
	}))
	t.Cleanup(srv.Close)

	up := NewBlockBlob(srv.Client(), Options{BlockSize: 2 * MiB}, logging.Discard())
	data := randomBytes(t, 5*MiB)

	err := up.Upload(context.Background(), srv.URL+"/c/x.mp4?sig=expired", bytes.NewReader(data), int64(len(data)), "video/mp4", nil)
	var apiErr *apierr.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.True(t, strings.HasPrefix(apiErr.Message, "Upload failed: storage responded 403"))
}

func TestWithQuery(t *testing.T) {
	assert.Equal(t, "http://h/b?sig=1&comp=block", withQuery("http://h/b?sig=1", "comp=block"))
	assert.Equal(t, "http://h/b?comp=block", withQuery("http://h/b", "comp=block"))
}
