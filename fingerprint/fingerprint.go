// Package fingerprint derives a coarse client description from request
// headers. The result is recorded on sessions and audit events for anomaly
// review; it never gates authentication.
package fingerprint

import (
	"net"
	"net/http"
	"strings"
)

// Fingerprint describes the client behind a request. Empty strings mean
// "unknown"; DeviceType is always set.
type Fingerprint struct {
	IPAddress  string `json:"ipAddress,omitempty"`
	UserAgent  string `json:"userAgent,omitempty"`
	DeviceType string `json:"deviceType"`
	Browser    string `json:"browser,omitempty"`
	OS         string `json:"os,omitempty"`
}

const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
	DeviceUnknown = "unknown"
)

// Extract builds a Fingerprint. platformIP is the address already resolved
// by the hosting framework (may be empty); remoteAddr is the raw socket
// address, with or without a port.
func Extract(headers http.Header, platformIP, remoteAddr string) Fingerprint {
	ua := strings.TrimSpace(headers.Get("User-Agent"))
	lower := strings.ToLower(ua)
	return Fingerprint{
		IPAddress:  clientIP(headers, platformIP, remoteAddr),
		UserAgent:  ua,
		DeviceType: deviceType(lower),
		Browser:    browser(lower),
		OS:         operatingSystem(lower),
	}
}

// FromRequest extracts from r without a platform-resolved IP.
func FromRequest(r *http.Request) Fingerprint {
	return Extract(r.Header, "", r.RemoteAddr)
}

func clientIP(headers http.Header, platformIP, remoteAddr string) string {
	if xff := headers.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if real := strings.TrimSpace(headers.Get("X-Real-IP")); real != "" {
		return real
	}
	if platformIP = strings.TrimSpace(platformIP); platformIP != "" {
		return platformIP
	}
	remoteAddr = strings.TrimSpace(remoteAddr)
	if remoteAddr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

func containsAny(s string, tokens ...string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func deviceType(ua string) string {
	switch {
	case ua == "":
		return DeviceUnknown
	case containsAny(ua, "ipad", "tablet", "playbook", "silk", "kindle"),
		strings.Contains(ua, "android") && !strings.Contains(ua, "mobile"):
		return DeviceTablet
	case containsAny(ua, "mobi", "iphone", "ipod", "android", "blackberry", "iemobile", "opera mini", "windows phone"):
		return DeviceMobile
	case containsAny(ua, "windows nt", "macintosh", "mac os x", "linux", "cros ", "x11"):
		return DeviceDesktop
	default:
		return DeviceUnknown
	}
}

func browser(ua string) string {
	edge := containsAny(ua, "edg/", "edge/", "edga/", "edgios/")
	chrome := containsAny(ua, "chrome/", "crios/", "chromium/")
	switch {
	case edge:
		return "Edge"
	case chrome:
		return "Chrome"
	case containsAny(ua, "firefox/", "fxios/"):
		return "Firefox"
	case strings.Contains(ua, "safari/"):
		return "Safari"
	case containsAny(ua, "msie ", "trident/"):
		return "Internet Explorer"
	case containsAny(ua, "opera", "opr/"):
		return "Opera"
	default:
		return ""
	}
}

func operatingSystem(ua string) string {
	ios := containsAny(ua, "iphone", "ipad", "ipod")
	switch {
	case strings.Contains(ua, "windows nt"):
		return "Windows"
	case strings.Contains(ua, "macintosh"), strings.Contains(ua, "mac os x") && !ios:
		return "macOS"
	case strings.Contains(ua, "linux") && !strings.Contains(ua, "android"):
		return "Linux"
	case strings.Contains(ua, "android"):
		return "Android"
	case ios:
		return "iOS"
	case strings.Contains(ua, "cros "):
		return "Chrome OS"
	default:
		return ""
	}
}
