package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func serve(t *testing.T, origins []string, origin, method string) *http.Response {
	t.Helper()
	handler := CORS(origins)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(method, "/", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w.Result()
}

func TestCORSExplicitOrigin(t *testing.T) {
	resp := serve(t, []string{"https://app.example.com"}, "https://app.example.com", http.MethodGet)
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Allow-Credentials = %q, want true for explicit origin", got)
	}
}

func TestCORSWildcardNoCredentials(t *testing.T) {
	resp := serve(t, []string{"*"}, "https://anywhere.example.com", http.MethodGet)
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://anywhere.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Credentials"); got != "" {
		t.Errorf("Allow-Credentials = %q, want unset for wildcard match", got)
	}
}

func TestCORSUnlistedOrigin(t *testing.T) {
	resp := serve(t, []string{"https://app.example.com"}, "https://evil.example.com", http.MethodGet)
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q, want unset", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	resp := serve(t, []string{"*"}, "https://app.example.com", http.MethodOptions)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("preflight status = %d, want 200", resp.StatusCode)
	}
}
