package httpapi

import (
	"encoding/json"
	"strings"
	"time"
)

// Fields that may carry whole images. They are shortened before logging.
var bulkyFields = map[string]bool{
	"reference_image_base64": true,
	"base64_data":            true,
	"meme_url":               true,
}

const maxLoggedValue = 100

func (c *Client) logRequest(method, url, contentType string, body []byte) {
	if !c.verbose {
		return
	}

	event := c.logger.Debug().Str("method", method).Str("url", url)
	if len(body) > 0 {
		if strings.HasPrefix(contentType, "application/json") {
			event = event.RawJSON("body", truncateBulkyJSON(body))
		} else {
			event = event.Int("body_bytes", len(body))
		}
	}
	event.Msg("api request")
}

func (c *Client) logResponse(method, url string, status int, elapsed time.Duration, body []byte) {
	event := c.logger.Debug().
		Str("method", method).
		Str("url", url).
		Int("status", status).
		Dur("elapsed", elapsed)

	if c.verbose && len(body) > 0 {
		event = event.RawJSON("body", truncateBulkyJSON(body))
	}
	event.Msg("api response")
}

// truncateBulkyJSON returns body with large image fields cut short. Input that
// is not JSON is returned as a quoted string so it stays valid for RawJSON.
func truncateBulkyJSON(body []byte) []byte {
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		quoted, _ := json.Marshal(truncate(string(body)))
		return quoted
	}

	truncateFields(data)

	result, err := json.Marshal(data)
	if err != nil {
		return []byte(`null`)
	}
	return result
}

func truncateFields(data any) {
	switch v := data.(type) {
	case map[string]any:
		for key, value := range v {
			if s, ok := value.(string); ok && bulkyFields[key] {
				v[key] = truncate(s)
				continue
			}
			truncateFields(value)
		}
	case []any:
		for _, item := range v {
			truncateFields(item)
		}
	}
}

func truncate(s string) string {
	if len(s) <= maxLoggedValue {
		return s
	}
	return s[:maxLoggedValue] + "... [truncated]"
}
