package nav

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// Page is one fetched document. FinalURL reflects server-side redirects.
type Page struct {
	HTML     string
	FinalURL string
}

// Fetcher retrieves pages for in-place navigation. Cancellation through the
// context must surface as an error, never a panic.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}

// ErrNotNavigable marks responses that cannot be swapped in place: non-2xx
// statuses and non-HTML bodies. The controller answers it with a full browser
// navigation.
var ErrNotNavigable = errors.New("response not navigable in place")

// HTTPFetcher fetches pages over HTTP, decoding the declared charset.
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher wraps a client, defaulting to http.DefaultClient.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{Client: client}
}

// Fetch retrieves one page. Redirects are followed by the underlying client;
// the final URL is reported so history reflects where the user ended up.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build page request: %w", err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d for %s", ErrNotNavigable, resp.StatusCode, url)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !isHTML(mediaType) {
		return nil, fmt.Errorf("%w: content-type %q for %s", ErrNotNavigable, resp.Header.Get("Content-Type"), url)
	}

	body, err := decodeBody(resp.Body, params["charset"])
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}

	finalURL := url
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return &Page{HTML: body, FinalURL: finalURL}, nil
}

func isHTML(mediaType string) bool {
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// decodeBody converts the response to UTF-8 using the declared charset.
func decodeBody(r io.Reader, charset string) (string, error) {
	charset = strings.ToLower(strings.TrimSpace(charset))
	if charset != "" && charset != "utf-8" {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return "", fmt.Errorf("charset %q: %w", charset, err)
		}
		r = transform.NewReader(r, enc.NewDecoder())
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
