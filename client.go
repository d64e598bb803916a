package trawl

import (
	"context"
	"io"
	"net/http"

	"trawl/internal/encoding"
)

// Client executes a single HTTP request. *http.Client satisfies it.
// Implementations must be safe for concurrent use: a Fetcher shares its
// client across every unit.
type Client interface {
	Do(req *http.Request) (*http.Response, error)
}

// do executes one GET against target and returns the status code and the
// decoded payload size.
func (f *Fetcher) do(ctx context.Context, target string) (int, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, 0, err
	}

	// Setting Accept-Encoding by hand keeps the transport from transparently
	// decompressing; bodies are decoded here so the byte count covers the
	// decoded payload no matter which Client is plugged in.
	req.Header.Set("Accept-Encoding", encoding.AcceptEncoding)
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	body := io.Reader(resp.Body)
	if f.maxBodyBytes > 0 {
		body = io.LimitReader(body, f.maxBodyBytes)
	}

	raw, err := io.ReadAll(body)
	if err != nil {
		return resp.StatusCode, 0, err
	}

	if !f.skipStatusCheck && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		return resp.StatusCode, 0, &StatusError{Code: resp.StatusCode}
	}

	decoded, err := encoding.Decode(raw, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return resp.StatusCode, 0, err
	}

	return resp.StatusCode, int64(len(decoded)), nil
}
