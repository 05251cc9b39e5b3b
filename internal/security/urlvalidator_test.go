package security

import (
	"errors"
	"net"
	"testing"
)

func TestURLPolicy_Check(t *testing.T) {
	tests := []struct {
		name    string
		policy  URLPolicy
		url     string
		wantErr error
	}{
		{"memegen in strict mode", StrictPolicy(), "https://api.memegen.link/images/drake/a/b.png", nil},
		{"openai blob in strict mode", StrictPolicy(), "https://oaidalleapiprodscus.blob.core.windows.net/x.png", nil},
		{"untrusted host in strict mode", StrictPolicy(), "https://example.com/x.png", ErrUntrustedHost},
		{"http refused by default", URLPolicy{}, "http://example.com/x.png", ErrInvalidScheme},
		{"ftp refused", URLPolicy{AllowHTTP: true}, "ftp://example.com/x.png", ErrInvalidScheme},
		{"localhost refused", URLPolicy{}, "https://localhost/x.png", ErrPrivateIP},
		{"loopback refused", URLPolicy{}, "https://127.0.0.1/x.png", ErrPrivateIP},
		{"metadata endpoint refused", URLPolicy{}, "https://169.254.169.254/x.png", ErrPrivateIP},
		{"ipv6 loopback refused", URLPolicy{}, "https://[::1]/x.png", ErrPrivateIP},
		{"private allowed when configured", URLPolicy{AllowHTTP: true, AllowPrivate: true}, "http://127.0.0.1:8080/x.png", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Check(tt.url)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Check(%q) error = %v, want nil", tt.url, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Check(%q) error = %v, want %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestCheckArtifactReference(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"https", "https://api.memegen.link/images/drake.png", false},
		{"http", "http://localhost:8001/x.png", false},
		{"data uri", "data:image/png;base64,iVBORw0KGgo=", false},
		{"data uri not base64", "data:image/png,raw", true},
		{"data uri not image", "data:text/plain;base64,aGk=", true},
		{"relative", "/images/x.png", true},
		{"javascript", "javascript:alert(1)", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckArtifactReference(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckArtifactReference(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
		})
	}
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip      string
		private bool
	}{
		{"127.0.0.1", true},
		{"10.0.0.1", true},
		{"172.16.0.1", true},
		{"192.168.0.1", true},
		{"169.254.169.254", true},
		{"0.0.0.0", true},
		{"100.64.0.1", true},
		{"192.0.2.1", true},
		{"198.51.100.1", true},
		{"203.0.113.1", true},
		{"224.0.0.1", true},
		{"240.0.0.1", true},
		{"8.8.8.8", false},
		{"1.1.1.1", false},
		{"::1", true},
		{"fe80::1", true},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			ip := net.ParseIP(tt.ip)
			if ip == nil {
				t.Fatalf("failed to parse IP %s", tt.ip)
			}
			if got := isPrivateIP(ip); got != tt.private {
				t.Errorf("isPrivateIP(%s) = %v, want %v", tt.ip, got, tt.private)
			}
		})
	}
}
