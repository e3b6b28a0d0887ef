package wpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"wpfleet/internal/domain"
)

func testSite(baseURL string) domain.Site {
	return domain.Site{
		ID:      "site-1",
		Name:    "Test Site",
		BaseURL: baseURL,
		APIKey:  "0123456789abcdef0123456789abcdef",
	}
}

func TestStatusSendsBothAuthHeaders(t *testing.T) {
	var gotPath, gotCurrent, gotLegacy string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotCurrent = r.Header.Get(HeaderAPIKey)
		gotLegacy = r.Header.Get(HeaderAPIKeyLegacy)
		w.Write([]byte(`{"wordpress_version": "6.6"}`))
	}))
	defer srv.Close()

	c := New(0)
	raw, err := c.Status(context.Background(), testSite(srv.URL))
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(raw) == 0 {
		t.Fatal("empty body")
	}
	if gotPath != "/wp-json/wrms/v1/status" {
		t.Errorf("path = %q", gotPath)
	}
	key := testSite(srv.URL).APIKey
	if gotCurrent != key || gotLegacy != key {
		t.Errorf("auth headers = %q / %q", gotCurrent, gotLegacy)
	}
}

func TestUnauthorizedIsAuthRejected(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad key", code)
		}))

		_, err := New(0).Status(context.Background(), testSite(srv.URL))
		srv.Close()

		var ce *Error
		if !errors.As(err, &ce) {
			t.Fatalf("status %d: want *Error, got %v", code, err)
		}
		if ce.Kind != domain.ErrKindAuthRejected {
			t.Errorf("status %d: kind = %s", code, ce.Kind)
		}
		if ce.Status != code {
			t.Errorf("status %d: Status = %d", code, ce.Status)
		}
	}
}

func TestServerErrorIsRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "database gone", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(0).Status(context.Background(), testSite(srv.URL))
	var ce *Error
	if !errors.As(err, &ce) {
		t.Fatalf("want *Error, got %v", err)
	}
	if ce.Kind != domain.ErrKindRemoteError || ce.Status != http.StatusInternalServerError {
		t.Errorf("kind = %s, status = %d", ce.Kind, ce.Status)
	}
}

func TestInvalidJSONIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>maintenance page</html>`))
	}))
	defer srv.Close()

	_, err := New(0).Status(context.Background(), testSite(srv.URL))
	if KindOf(err) != domain.ErrKindMalformed {
		t.Errorf("kind = %s, want %s", KindOf(err), domain.ErrKindMalformed)
	}
}

func TestTimeoutIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := New(20 * time.Millisecond).Status(context.Background(), testSite(srv.URL))
	if err == nil {
		t.Fatal("want timeout error")
	}
	if KindOf(err) != domain.ErrKindUnreachable {
		t.Errorf("kind = %s, want %s", KindOf(err), domain.ErrKindUnreachable)
	}
}

func TestConnectionRefusedIsUnreachable(t *testing.T) {
	// Reserve a port and close the listener so nothing answers.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(time.Second).Status(context.Background(), testSite(url))
	if KindOf(err) != domain.ErrKindUnreachable {
		t.Errorf("kind = %s, want %s", KindOf(err), domain.ErrKindUnreachable)
	}
}

func TestEmptyAPIKeyRejectedLocally(t *testing.T) {
	site := testSite("https://example.com")
	site.APIKey = ""

	_, err := New(0).Status(context.Background(), site)
	if err == nil {
		t.Fatal("want error for empty api key")
	}
	var ce *Error
	if errors.As(err, &ce) {
		t.Errorf("local validation must not produce a remote *Error, got kind %s", ce.Kind)
	}
}

func TestRelativeBaseURLRejected(t *testing.T) {
	site := testSite("example.com/wp")

	_, err := New(0).Status(context.Background(), site)
	if err == nil {
		t.Fatal("want error for non-absolute base url")
	}
}

func TestPerformUpdatesPostsJSONBody(t *testing.T) {
	var gotMethod, gotCT string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotCT = r.Header.Get("Content-Type")
		buf := make([]byte, 1024)
		n, _ := r.Body.Read(buf)
		gotBody = buf[:n]
		w.Write([]byte(`{"success": true}`))
	}))
	defer srv.Close()

	_, err := New(0).PerformUpdates(context.Background(), testSite(srv.URL), "plugin", []string{"akismet/akismet.php"})
	if err != nil {
		t.Fatalf("PerformUpdates: %v", err)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("method = %s", gotMethod)
	}
	if gotCT != "application/json" {
		t.Errorf("content-type = %q", gotCT)
	}
	for _, want := range []string{`"type":"plugin"`, `"akismet/akismet.php"`} {
		if !strings.Contains(string(gotBody), want) {
			t.Errorf("body %s missing %s", gotBody, want)
		}
	}
}

func TestErrorBodyIsTruncated(t *testing.T) {
	big := make([]byte, 4096)
	for i := range big {
		big[i] = 'x'
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write(big)
	}))
	defer srv.Close()

	_, err := New(0).Status(context.Background(), testSite(srv.URL))
	var ce *Error
	if !errors.As(err, &ce) {
		t.Fatalf("want *Error, got %v", err)
	}
	if len(ce.Body) > errBodyBytes {
		t.Errorf("body length = %d, want <= %d", len(ce.Body), errBodyBytes)
	}
}
