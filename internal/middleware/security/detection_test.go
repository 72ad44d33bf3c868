package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDetectSuspiciousRequest(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		userAgent  string
		method     string
		suspicious bool
	}{
		{"plain upload", "/uploads", "Mozilla/5.0", http.MethodPost, false},
		{"curl upload", "/uploads", "curl/8.4.0", http.MethodPost, false},
		{"python script", "/uploads", "python-requests/2.31", http.MethodPost, false},
		{"path traversal", "/../../etc/passwd", "Mozilla/5.0", http.MethodGet, true},
		{"wordpress probe", "/wp-admin/setup.php", "Mozilla/5.0", http.MethodGet, true},
		{"env probe", "/.env", "Mozilla/5.0", http.MethodGet, true},
		{"sqlmap agent", "/uploads", "sqlmap/1.7", http.MethodPost, true},
		{"trace method", "/", "Mozilla/5.0", "TRACE", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDetector()
			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.Header.Set("User-Agent", tt.userAgent)

			if got := d.DetectSuspiciousRequest(req); got != tt.suspicious {
				t.Fatalf("DetectSuspiciousRequest = %v, want %v", got, tt.suspicious)
			}

			wantCount := int64(0)
			if tt.suspicious {
				wantCount = 1
			}
			if got := d.GetMetrics().SuspiciousRequests; got != wantCount {
				t.Fatalf("SuspiciousRequests = %d, want %d", got, wantCount)
			}
		})
	}
}

func TestExtractClientIP(t *testing.T) {
	d := NewDetector()

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		want       string
	}{
		{"direct connection", "203.0.113.7:1234", "", "203.0.113.7"},
		{"trusted proxy forwards", "10.0.0.1:1234", "198.51.100.9", "198.51.100.9"},
		{"trusted proxy chain", "127.0.0.1:1234", "198.51.100.9, 10.0.0.1", "198.51.100.9"},
		{"untrusted proxy ignored", "203.0.113.7:1234", "198.51.100.9", "203.0.113.7"},
		{"garbage forwarded ip", "10.0.0.1:1234", "not-an-ip", "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}

			if got := d.ExtractClientIP(req); got != tt.want {
				t.Fatalf("ExtractClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAddTrustedProxy(t *testing.T) {
	d := NewDetector()

	if err := d.AddTrustedProxy("100.64.0.0/10"); err != nil {
		t.Fatalf("AddTrustedProxy: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "100.64.0.1:1234"
	req.Header.Set("X-Forwarded-For", "198.51.100.9")
	if got := d.ExtractClientIP(req); got != "198.51.100.9" {
		t.Fatalf("ExtractClientIP = %q, want forwarded IP", got)
	}

	if err := d.AddTrustedProxy("not-a-cidr"); err == nil {
		t.Fatal("expected error for invalid CIDR")
	}
}

func TestHeadersMiddleware(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig())
	handler := h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	checks := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}
	for header, want := range checks {
		if got := rr.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	if rr.Header().Get("Content-Security-Policy") == "" {
		t.Error("missing Content-Security-Policy header")
	}
	// HSTS only applies to TLS connections.
	if rr.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS set on plain HTTP response")
	}
}
