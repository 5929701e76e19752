package blockstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/dmitrijs2005/vidloader/internal/client/apierr"
	"github.com/dmitrijs2005/vidloader/internal/logging"
	"golang.org/x/sync/errgroup"
)

const storageVersion = "2023-11-03"

// BlockBlob writes Azure style block blobs through a pre-signed URL. Files
// that fit in one block go up in a single Put Blob call; larger files are
// staged with Put Block and committed with Put Block List.
//
// No Authorization header is ever sent: the URL carries the grant.
type BlockBlob struct {
	http *http.Client
	opts Options
	log  logging.Logger
}

func NewBlockBlob(httpClient *http.Client, opts Options, log logging.Logger) *BlockBlob {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &BlockBlob{http: httpClient, opts: opts.Normalized(), log: log.With("component", "blockblob")}
}

func (b *BlockBlob) Upload(ctx context.Context, target string, src io.ReaderAt, size int64, contentType string, progress ProgressFunc) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if size <= b.opts.BlockSize {
		h := http.Header{}
		h.Set("x-ms-blob-type", "BlockBlob")
		h.Set("Content-Type", contentType)
		if err := b.put(ctx, target, io.NewSectionReader(src, 0, size), size, h); err != nil {
			return err
		}
		report(progress, size)
		return nil
	}

	blocks := split(size, b.opts.BlockSize)
	ids := make([]string, len(blocks))

	var uploaded atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Concurrency)

	for _, blk := range blocks {
		if gctx.Err() != nil {
			break
		}
		ids[blk.Index] = blockID(blk.Index)
		g.Go(func() error {
			u := withQuery(target, "comp=block&blockid="+url.QueryEscape(ids[blk.Index]))
			if err := b.put(gctx, u, io.NewSectionReader(src, blk.Offset, blk.Length), blk.Length, nil); err != nil {
				return err
			}
			report(progress, uploaded.Add(blk.Length))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := xml.Marshal(blockList{Latest: ids})
	if err != nil {
		return err
	}
	body = append([]byte(xml.Header), body...)

	h := http.Header{}
	h.Set("Content-Type", "application/xml")
	h.Set("x-ms-blob-content-type", contentType)
	if err := b.put(ctx, withQuery(target, "comp=blocklist"), bytes.NewReader(body), int64(len(body)), h); err != nil {
		return err
	}

	b.log.Debug(ctx, "block blob committed", "blocks", len(ids), "size", size)
	return nil
}

func (b *BlockBlob) put(ctx context.Context, target string, body io.Reader, length int64, h http.Header) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, body)
	if err != nil {
		return err
	}
	req.ContentLength = length
	for k, v := range h {
		req.Header[k] = v
	}
	req.Header.Set("x-ms-version", storageVersion)

	resp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &apierr.Error{
			Kind:    apierr.KindServer,
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("Upload failed: storage responded %s", resp.Status),
			Err:     fmt.Errorf("storage: %s", strings.TrimSpace(string(msg))),
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type blockList struct {
	XMLName xml.Name `xml:"BlockList"`
	Latest  []string `xml:"Latest"`
}

// blockID returns a base64 id. All ids of one blob must have equal length.
func blockID(i int) string {
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("block-%08d", i)))
}

func withQuery(target, extra string) string {
	if strings.Contains(target, "?") {
		return target + "&" + extra
	}
	return target + "?" + extra
}
