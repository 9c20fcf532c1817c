package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
)

// FromMultipart adapts an uploaded form part. Drag-and-drop and the file
// picker both arrive here.
func FromMultipart(h *multipart.FileHeader) RawFile {
	return RawFile{
		Name:        h.Filename,
		ContentType: h.Header.Get("Content-Type"),
		Size:        h.Size,
		Open: func() (io.ReadCloser, error) {
			return h.Open()
		},
	}
}

// FromPath adapts a local file for the CLI.
func FromPath(p string) RawFile {
	size := int64(-1)
	if st, err := os.Stat(p); err == nil {
		size = st.Size()
	}
	return RawFile{
		Name: filepath.Base(p),
		Size: size,
		Open: func() (io.ReadCloser, error) {
			return os.Open(p)
		},
	}
}

// FromBytes wraps content already in memory.
func FromBytes(name, contentType string, data []byte) RawFile {
	return RawFile{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// FromURL downloads rawURL and wraps the body. The download is capped at
// limit+1 bytes so the ingestor can still report it as too large.
func FromURL(ctx context.Context, client *http.Client, rawURL string, limit int64) (RawFile, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return RawFile{}, fmt.Errorf("invalid image URL %q", rawURL)
	}
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return RawFile{}, fmt.Errorf("failed to create download request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return RawFile{}, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return RawFile{}, fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return RawFile{}, fmt.Errorf("failed to read image data: %w", err)
	}

	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		name = "image.jpg"
	}
	return FromBytes(name, resp.Header.Get("Content-Type"), data), nil
}
