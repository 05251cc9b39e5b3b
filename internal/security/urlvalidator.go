package security

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var (
	ErrPrivateIP      = errors.New("URL resolves to private IP address")
	ErrUntrustedHost  = errors.New("URL host is not trusted")
	ErrInvalidScheme  = errors.New("URL scheme is not allowed")
	ErrInvalidDataURI = errors.New("data URI is not a base64 image")
)

// ArtifactHosts are the hosts artifact URLs are normally served from.
var ArtifactHosts = []string{
	"api.memegen.link",
	"oaidalleapiprodscus.blob.core.windows.net",
	"dalleprodsec.blob.core.windows.net",
}

// URLPolicy decides which remote URLs may be fetched.
type URLPolicy struct {
	// Hosts restricts fetching to these hosts and their subdomains. Empty
	// allows any public host.
	Hosts        []string
	AllowHTTP    bool
	AllowPrivate bool
}

// StrictPolicy only allows HTTPS fetches from ArtifactHosts.
func StrictPolicy() URLPolicy {
	return URLPolicy{Hosts: ArtifactHosts}
}

// Check validates rawURL against the policy. Hostnames are resolved so that
// public names pointing at private addresses are refused too.
func (p URLPolicy) Check(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	switch parsed.Scheme {
	case "https":
	case "http":
		if !p.AllowHTTP {
			return ErrInvalidScheme
		}
	default:
		return ErrInvalidScheme
	}

	host := parsed.Hostname()
	if len(p.Hosts) > 0 && !hostAllowed(host, p.Hosts) {
		return ErrUntrustedHost
	}
	if p.AllowPrivate {
		return nil
	}
	return validateHostIP(host)
}

// CheckArtifactReference validates the shape of an artifact URL without
// touching the network: a base64 image data URI or an absolute http(s) URL.
func CheckArtifactReference(raw string) error {
	if strings.HasPrefix(raw, "data:") {
		header, _, ok := strings.Cut(raw, ",")
		if !ok || !strings.HasPrefix(header, "data:image/") || !strings.HasSuffix(header, ";base64") {
			return ErrInvalidDataURI
		}
		return nil
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return ErrInvalidScheme
	}
	if parsed.Host == "" {
		return fmt.Errorf("invalid URL: missing host")
	}
	return nil
}

func hostAllowed(host string, allowed []string) bool {
	host = strings.ToLower(host)
	for _, a := range allowed {
		if host == a || strings.HasSuffix(host, "."+a) {
			return true
		}
	}
	return false
}

func validateHostIP(host string) error {
	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return ErrPrivateIP
		}
		return nil
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return nil
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return ErrPrivateIP
		}
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsPrivate() || ip.IsUnspecified() || ip.IsMulticast() {
		return true
	}

	if ip4 := ip.To4(); ip4 != nil {
		switch {
		case ip4[0] == 0:
			return true
		case ip4[0] == 100 && ip4[1] >= 64 && ip4[1] <= 127: // CGNAT
			return true
		case ip4[0] == 192 && ip4[1] == 0 && (ip4[2] == 0 || ip4[2] == 2):
			return true
		case ip4[0] == 198 && ip4[1] == 51 && ip4[2] == 100:
			return true
		case ip4[0] == 203 && ip4[1] == 0 && ip4[2] == 113:
			return true
		case ip4[0] >= 240:
			return true
		}
	}
	return false
}
