// Package effects runs the best-effort side effects of a completed conversation:
// the business API call, lead enrichment, persistence and notification.
package effects

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// DefaultHTTPTimeout bounds a single collaborator request.
const DefaultHTTPTimeout = 10 * time.Second

// maxResponseBody caps how much of a collaborator response is read.
const maxResponseBody = 1 << 20

// ErrNotFound reports a lookup the collaborator answered with "no such record".
var ErrNotFound = errors.New("record not found")

// StatusError is a non-2xx collaborator response.
type StatusError struct {
	URL  string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.URL, e.Code, e.Body)
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultHTTPTimeout}
}

// doJSON sends an optional JSON body and decodes a JSON object response.
// A non-2xx status is returned as *StatusError. An empty or non-object 2xx
// body yields a nil map and no error.
func doJSON(ctx context.Context, client *http.Client, method, url string, payload any) (map[string]any, error) {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode payload: %w", err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", method, url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{URL: url, Code: resp.StatusCode, Body: string(raw)}
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		// Apps Script style webhooks often answer with plain text.
		return nil, nil
	}
	return out, nil
}

// okFlag reports whether body carries a truthy "ok". When the key is absent
// the answer is absentOK. A nil body is never ok.
func okFlag(body map[string]any, absentOK bool) bool {
	if body == nil {
		return false
	}
	v, present := body["ok"]
	if !present {
		return absentOK
	}
	return truthy(v)
}

// truthy follows JSON-API conventions: false, 0, "" and null are false.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	default:
		return true
	}
}

// stringify renders a JSON scalar for display.
func stringify(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(x), true
	case json.Number:
		return x.String(), true
	default:
		return "", false
	}
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
