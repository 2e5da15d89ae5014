package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/zapdesk-io/zapdesk/internal/util"
)

// doRequest performs one vendor HTTP call and decodes the response into a
// Result. The body is parsed as JSON only when the content type says so;
// anything else is kept as raw text.
func doRequest(ctx context.Context, client *http.Client, method, url string, headers map[string]string, body any) (Result, error) {
	var reader io.Reader
	if body != nil {
		encoded, errMarshal := json.Marshal(body)
		if errMarshal != nil {
			return Result{}, fmt.Errorf("gateway: encode request body: %w", errMarshal)
		}
		reader = bytes.NewReader(encoded)
	}

	req, errReq := http.NewRequestWithContext(ctx, method, url, reader)
	if errReq != nil {
		return Result{}, fmt.Errorf("gateway: build request: %w", errReq)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		if value != "" {
			req.Header.Set(key, value)
		}
	}

	if log.IsLevelEnabled(log.DebugLevel) {
		masked := make(map[string]string, len(headers))
		for key, value := range headers {
			masked[key] = util.HideSecret(value)
		}
		log.Debugf("gateway request: %s %s headers=%v", method, url, masked)
	}

	resp, errDo := client.Do(req)
	if errDo != nil {
		return Result{}, fmt.Errorf("gateway: %s %s: %w", method, url, errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, errRead := io.ReadAll(resp.Body)
	if errRead != nil {
		return Result{}, fmt.Errorf("gateway: read response body: %w", errRead)
	}

	result := Result{
		StatusCode: resp.StatusCode,
		OK:         resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices,
	}
	if isJSONContentType(resp.Header.Get("Content-Type")) && len(raw) > 0 {
		var decoded any
		if errDecode := json.Unmarshal(raw, &decoded); errDecode == nil {
			result.Body = decoded
			return result, nil
		}
	}
	result.Body = string(raw)
	return result, nil
}

func isJSONContentType(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "application/json")
}

func httpClientOrDefault(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: defaultRequestTimeout}
}

// Raw payload helpers shared by the vendor normalizers. Raw vendor data is
// loosely typed JSON; all lookups are nil-safe.

// rawString returns the first non-empty string among the given keys.
func rawString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := m[key].(string); ok && strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// rawMap returns the nested object under key, or nil.
func rawMap(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	nested, _ := m[key].(map[string]any)
	return nested
}

// rawBool returns the boolean under key, false when absent or mistyped.
func rawBool(m map[string]any, key string) bool {
	if m == nil {
		return false
	}
	value, _ := m[key].(bool)
	return value
}
