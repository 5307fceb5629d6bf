package ratecell

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// KeyExtractor derives a bucket key from an HTTP request, identifying the
// client (IP address, API key, user ID, ...).
type KeyExtractor func(*http.Request) (string, error)

// ExtractIP returns a KeyExtractor that uses the client's IP address from
// r.RemoteAddr.
func ExtractIP() KeyExtractor {
	return func(r *http.Request) (string, error) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if ip == "" {
			return "", fmt.Errorf("%w: empty IP address", ErrKeyExtractionFailed)
		}
		return "ip:" + ip, nil
	}
}

// ExtractIPWithProxy returns a KeyExtractor that prefers proxy headers.
// It checks X-Forwarded-For and X-Real-IP before falling back to RemoteAddr,
// which matters behind a reverse proxy or load balancer.
func ExtractIPWithProxy() KeyExtractor {
	direct := ExtractIP()
	return func(r *http.Request) (string, error) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			// First entry in the list is the original client.
			if ip := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0]); ip != "" {
				return "ip:" + ip, nil
			}
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return "ip:" + xri, nil
		}
		return direct(r)
	}
}

// ExtractHeader returns a KeyExtractor that uses a specific HTTP header.
// Example: ExtractHeader("X-API-Key")
func ExtractHeader(headerName string) KeyExtractor {
	return func(r *http.Request) (string, error) {
		value := r.Header.Get(headerName)
		if value == "" {
			return "", fmt.Errorf("%w: header %s not found or empty", ErrKeyExtractionFailed, headerName)
		}
		return fmt.Sprintf("header:%s:%s", headerName, value), nil
	}
}

// ExtractBearer returns a KeyExtractor that uses the Bearer token from the
// Authorization header.
func ExtractBearer() KeyExtractor {
	return func(r *http.Request) (string, error) {
		auth := r.Header.Get("Authorization")
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
			return "", fmt.Errorf("%w: missing or malformed bearer token", ErrKeyExtractionFailed)
		}
		return "bearer:" + parts[1], nil
	}
}

// ExtractCookie returns a KeyExtractor that uses a specific cookie value.
// Example: ExtractCookie("session_id")
func ExtractCookie(cookieName string) KeyExtractor {
	return func(r *http.Request) (string, error) {
		cookie, err := r.Cookie(cookieName)
		if err != nil || cookie.Value == "" {
			return "", fmt.Errorf("%w: cookie %s not found or empty", ErrKeyExtractionFailed, cookieName)
		}
		return fmt.Sprintf("cookie:%s:%s", cookieName, cookie.Value), nil
	}
}

// ExtractStatic returns a KeyExtractor that always returns the same key,
// giving every client a shared global bucket.
func ExtractStatic(key string) KeyExtractor {
	return func(r *http.Request) (string, error) {
		if key == "" {
			return "", fmt.Errorf("%w: static key is empty", ErrKeyExtractionFailed)
		}
		return key, nil
	}
}

// ExtractComposite returns a KeyExtractor that tries multiple extractors in
// order and returns the first key produced. Useful for fallback behavior
// (e.g., API key first, then client IP).
func ExtractComposite(extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) (string, error) {
		var lastErr error
		for _, extractor := range extractors {
			key, err := extractor(r)
			if err == nil && key != "" {
				return key, nil
			}
			lastErr = err
		}
		if lastErr != nil {
			return "", fmt.Errorf("%w: all extractors failed: %v", ErrKeyExtractionFailed, lastErr)
		}
		return "", fmt.Errorf("%w: no extractors provided", ErrKeyExtractionFailed)
	}
}

// ParseKeyExtractorConfig creates a KeyExtractor from a configuration string.
// Supported formats:
//   - "ip"                 -> ExtractIP()
//   - "ip-proxy"           -> ExtractIPWithProxy()
//   - "header:X-API-Key"   -> ExtractHeader("X-API-Key")
//   - "bearer"             -> ExtractBearer()
//   - "cookie:session_id"  -> ExtractCookie("session_id")
//   - "static:global"      -> ExtractStatic("global")
func ParseKeyExtractorConfig(config string) (KeyExtractor, error) {
	parts := strings.SplitN(config, ":", 2)

	switch parts[0] {
	case "ip":
		return ExtractIP(), nil

	case "ip-proxy":
		return ExtractIPWithProxy(), nil

	case "header":
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: header extractor requires format 'header:HeaderName'", ErrInvalidConfig)
		}
		return ExtractHeader(parts[1]), nil

	case "bearer":
		return ExtractBearer(), nil

	case "cookie":
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: cookie extractor requires format 'cookie:CookieName'", ErrInvalidConfig)
		}
		return ExtractCookie(parts[1]), nil

	case "static":
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: static extractor requires format 'static:key'", ErrInvalidConfig)
		}
		return ExtractStatic(parts[1]), nil

	default:
		return nil, fmt.Errorf("%w: unknown key extractor type: %s", ErrInvalidConfig, parts[0])
	}
}
