package testbackend

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
)

type blob struct {
	blocks      map[string][]byte
	blockSizes  map[string]int64
	data        []byte
	size        int64
	committed   bool
	contentType string
}

type blockList struct {
	XMLName xml.Name `xml:"BlockList"`
	Latest  []string `xml:"Latest"`
}

func (b *Backend) handleBlobPut(c echo.Context) error {
	r := c.Request()
	if r.Header.Get(echo.HeaderAuthorization) != "" {
		b.BlobAuthLeaks.Add(1)
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	// the body is drained, so a client disconnect now cancels the context
	if b.BlobDelay > 0 {
		select {
		case <-time.After(b.BlobDelay):
		case <-r.Context().Done():
			return nil
		}
	}

	key := c.Param("*")
	q := r.URL.Query()

	b.mu.Lock()
	defer b.mu.Unlock()

	bl, ok := b.blobs[key]
	if !ok {
		bl = &blob{blocks: make(map[string][]byte), blockSizes: make(map[string]int64)}
		b.blobs[key] = bl
	}

	switch q.Get("comp") {
	case "block":
		id := q.Get("blockid")
		if _, err := base64.StdEncoding.DecodeString(id); err != nil || id == "" {
			return c.String(http.StatusBadRequest, "InvalidQueryParameterValue")
		}
		b.BlockPuts.Add(1)
		bl.blockSizes[id] = int64(len(body))
		if !b.DiscardBlobData {
			bl.blocks[id] = body
		}
		return c.NoContent(http.StatusCreated)

	case "blocklist":
		var list blockList
		if err := xml.Unmarshal(body, &list); err != nil {
			return c.String(http.StatusBadRequest, "InvalidXmlDocument")
		}
		var (
			buf  bytes.Buffer
			size int64
		)
		for _, id := range list.Latest {
			n, ok := bl.blockSizes[id]
			if !ok {
				return c.String(http.StatusBadRequest, "InvalidBlockList")
			}
			size += n
			buf.Write(bl.blocks[id])
		}
		bl.data = buf.Bytes()
		bl.size = size
		bl.committed = true
		bl.contentType = r.Header.Get("x-ms-blob-content-type")
		return c.NoContent(http.StatusCreated)

	case "":
		if r.Header.Get("x-ms-blob-type") != "BlockBlob" {
			return c.String(http.StatusBadRequest, "MissingRequiredHeader")
		}
		bl.data = body
		bl.size = int64(len(body))
		bl.committed = true
		bl.contentType = r.Header.Get(echo.HeaderContentType)
		return c.NoContent(http.StatusCreated)
	}

	return c.String(http.StatusBadRequest, "UnsupportedQueryParameter")
}

// Blob returns the committed content of the object at key.
func (b *Backend) Blob(key string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bl, ok := b.blobs[key]
	if !ok || !bl.committed {
		return nil, false
	}
	return bl.data, true
}

// BlobSize returns the committed size of the object at key, also when
// DiscardBlobData is set.
func (b *Backend) BlobSize(key string) (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bl, ok := b.blobs[key]
	if !ok || !bl.committed {
		return 0, false
	}
	return bl.size, true
}

// CommittedBlobs lists the keys of committed objects.
func (b *Backend) CommittedBlobs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var keys []string
	for k, bl := range b.blobs {
		if bl.committed {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
