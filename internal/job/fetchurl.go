package job

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"kiln/internal/content"
	"kiln/internal/logging"
)

// fetchURL downloads rawURL into c. Redirects follow the client's policy;
// any non-2xx final response becomes an *ErrorResponse.
func (e *Engine) fetchURL(ctx context.Context, rawURL string, c *content.Content) error {
	if strings.HasPrefix(rawURL, "data:") {
		data, err := decodeDataURI(rawURL)
		if err != nil {
			return err
		}
		c.Update(data, nil)
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response from %s: %w", rawURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ErrorResponse{URL: rawURL, Status: resp.StatusCode, Body: string(body)}
	}
	e.logger.Debug("url fetched",
		logging.String("url", rawURL),
		logging.Int("status", resp.StatusCode),
		logging.Int("size", len(body)),
	)

	var meta map[string]any
	if name := urlFilename(rawURL); name != "" {
		if unescaped, err := url.PathUnescape(name); err == nil {
			name = unescaped
		}
		meta = map[string]any{content.MetaName: name}
	}
	c.Update(body, meta)
	return nil
}

// decodeDataURI parses "data:[<mediatype>][;base64],<data>".
func decodeDataURI(raw string) ([]byte, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(raw, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("invalid data uri: missing comma")
	}
	isBase64 := false
	if header != "" {
		mediaType, params, _ := strings.Cut(header, ";")
		if mediaType != "" {
			if _, _, err := mime.ParseMediaType(mediaType); err != nil {
				return nil, fmt.Errorf("invalid data uri media type: %w", err)
			}
		}
		for _, p := range strings.Split(params, ";") {
			if p == "base64" {
				isBase64 = true
			}
		}
	}
	if isBase64 {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("invalid data uri payload: %w", err)
		}
		return data, nil
	}
	data, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid data uri payload: %w", err)
	}
	return []byte(data), nil
}
