package stream

import (
	"fmt"
	"net/url"
	"strings"
)

const streamPath = "/live/stream"

// BuildStreamURL resolves the websocket endpoint. An explicit wsURL wins;
// otherwise the endpoint is derived from the REST base URL with the scheme
// upgraded to its websocket variant (https becomes wss). A non-empty token is
// appended as a query parameter.
func BuildStreamURL(baseURL, wsURL, token string) (string, error) {
	raw := wsURL
	if raw == "" {
		if baseURL == "" {
			return "", fmt.Errorf("no stream url or api base url configured")
		}
		raw = baseURL
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid stream url '%s': %w", raw, err)
	}

	switch parsed.Scheme {
	case "ws", "wss":
		// already a websocket url
	case "https":
		parsed.Scheme = "wss"
	case "http", "":
		parsed.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported scheme '%s'", parsed.Scheme)
	}

	if wsURL == "" && !strings.HasSuffix(parsed.Path, streamPath) {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/") + streamPath
	}

	if token != "" {
		q := parsed.Query()
		q.Set("token", token)
		parsed.RawQuery = q.Encode()
	}

	return parsed.String(), nil
}
