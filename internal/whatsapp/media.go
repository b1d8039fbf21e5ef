package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"whatsapp-autoresponder/internal/transport"

	"github.com/gabriel-vasile/mimetype"
)

// MaxMediaBytes bounds a single media download or file read.
const MaxMediaBytes = 64 << 20

// Media is a loaded media payload.
type Media struct {
	Data     []byte
	MIME     string
	Filename string
}

// MediaLoader reads media from disk or over http(s). Anything that cannot be
// found is reported as transport.ErrMediaUnavailable.
type MediaLoader struct {
	HTTP *http.Client
}

func NewMediaLoader(client *http.Client) *MediaLoader {
	if client == nil {
		client = http.DefaultClient
	}
	return &MediaLoader{HTTP: client}
}

func (l *MediaLoader) Load(ctx context.Context, ref string) (*Media, error) {
	if isURL(ref) {
		return l.fetch(ctx, ref)
	}

	f, err := os.Open(ref)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", transport.ErrMediaUnavailable, ref)
		}
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxMediaBytes))
	if err != nil {
		return nil, fmt.Errorf("read media %s: %w", ref, err)
	}
	return newMedia(data, filepath.Base(ref)), nil
}

func (l *MediaLoader) fetch(ctx context.Context, url string) (*Media, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", transport.ErrMediaUnavailable, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: %s: %s", transport.ErrMediaUnavailable, url, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxMediaBytes))
	if err != nil {
		return nil, fmt.Errorf("download media %s: %w", url, err)
	}

	name := path.Base(resp.Request.URL.Path)
	if name == "/" || name == "." {
		name = "media"
	}
	return newMedia(data, name), nil
}

func newMedia(data []byte, filename string) *Media {
	mt := mimetype.Detect(data)
	if filepath.Ext(filename) == "" {
		filename += mt.Extension()
	}
	return &Media{Data: data, MIME: mt.String(), Filename: filename}
}

// baseMIME drops parameters such as "; charset=utf-8".
func baseMIME(m string) string {
	if i := strings.IndexByte(m, ';'); i >= 0 {
		return strings.TrimSpace(m[:i])
	}
	return m
}

func isURL(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
