package scraper

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/models"
)

func newTestRenderer() *Renderer {
	return NewRenderer(
		config.BrowserConfig{Headless: true, MaxRenders: 1},
		config.RendererConfig{NavigationTimeout: 5 * time.Second, SettleTimeout: time.Second},
	)
}

func TestRender_FileIsByteExact(t *testing.T) {
	// Odd whitespace, CRLF and non-ASCII must survive untouched.
	content := "<!doctype html>\r\n<html><head><title> Lot 7 </title></head>\n" +
		"<body><div class=\"car\">Civic · 21 000 €</div>\t\n</body></html>\n\n"
	path := filepath.Join(t.TempDir(), "fixture.html")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		source string
	}{
		{"plain path", path},
		{"file url", "file://" + filepath.ToSlash(path)},
	}

	r := newTestRenderer()
	defer r.Close()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := r.Render(context.Background(), models.RenderRequest{
				Source: tt.source,
				// Ignored for files; must not make the render fail or wait.
				Wait: models.SelectorVisible("#never-there"),
			})
			if err != nil {
				t.Fatalf("Render: %v", err)
			}
			if page.HTML != content {
				t.Errorf("HTML differs from file contents:\n got %q\nwant %q", page.HTML, content)
			}
			if page.Title != "Lot 7" {
				t.Errorf("Title = %q, want %q", page.Title, "Lot 7")
			}
			if page.RenderedAt.IsZero() {
				t.Error("RenderedAt not set")
			}
		})
	}

	if r.Stats().Launched {
		t.Error("file renders must not launch a browser")
	}
}

func TestRender_MissingFile(t *testing.T) {
	r := newTestRenderer()
	_, err := r.Render(context.Background(), models.RenderRequest{
		Source: filepath.Join(t.TempDir(), "nope.html"),
	})
	if code := models.CodeOf(err); code != models.ErrCodeNavigation {
		t.Fatalf("code = %q, want %q (err: %v)", code, models.ErrCodeNavigation, err)
	}
}

func TestRender_EmptySource(t *testing.T) {
	r := newTestRenderer()
	_, err := r.Render(context.Background(), models.RenderRequest{Source: "  "})
	if code := models.CodeOf(err); code != models.ErrCodeInvalidInput {
		t.Fatalf("code = %q, want %q", code, models.ErrCodeInvalidInput)
	}
}

func TestRender_HTTPMode(t *testing.T) {
	var gotUA, gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotUA = req.Header.Get("User-Agent")
		gotHeader = req.Header.Get("X-Test")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><head><title>Listings</title></head><body>" +
			strings.Repeat("<p>Honda Civic 2019, 15000 miles, $21000</p>", 10) +
			"</body></html>"))
	}))
	defer srv.Close()

	r := newTestRenderer()
	page, err := r.Render(context.Background(), models.RenderRequest{
		Source:    srv.URL + "/cars",
		Mode:      models.FetchHTTP,
		UserAgent: "harvest-test",
		Headers:   map[string]string{"X-Test": "1"},
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if page.Title != "Listings" {
		t.Errorf("Title = %q", page.Title)
	}
	if !strings.Contains(page.HTML, "Honda Civic") {
		t.Error("body missing from rendered page")
	}
	if page.FinalURL != srv.URL+"/cars" {
		t.Errorf("FinalURL = %q", page.FinalURL)
	}
	if gotUA != "harvest-test" {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if gotHeader != "1" {
		t.Errorf("X-Test = %q", gotHeader)
	}
}

func TestRender_HTTPModeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	r := newTestRenderer()
	_, err := r.Render(context.Background(), models.RenderRequest{
		Source: srv.URL,
		Mode:   models.FetchHTTP,
	})
	if code := models.CodeOf(err); code != models.ErrCodeNavigation {
		t.Fatalf("code = %q, want %q", code, models.ErrCodeNavigation)
	}
}

func TestRender_HTTPModeTLSWithHTTP2Server(t *testing.T) {
	var proto string
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		proto = req.Proto
		_, _ = w.Write([]byte("<html><head><title>ok</title></head><body>listing</body></html>"))
	}))
	srv.EnableHTTP2 = true
	srv.StartTLS()
	defer srv.Close()

	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())
	r := newTestRenderer()
	defer r.Close()
	r.httpFetcher.rootCAs = pool

	page, err := r.Render(context.Background(), models.RenderRequest{
		Source: srv.URL,
		Mode:   models.FetchHTTP,
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if page.Title != "ok" {
		t.Errorf("Title = %q, want %q", page.Title, "ok")
	}
	if proto != "HTTP/1.1" {
		t.Errorf("server saw %q, want HTTP/1.1", proto)
	}
}

func TestRender_HTTPModeBodyTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer srv.Close()

	r := newTestRenderer()
	r.httpFetcher.maxBody = 1024
	_, err := r.Render(context.Background(), models.RenderRequest{
		Source: srv.URL,
		Mode:   models.FetchHTTP,
	})
	if code := models.CodeOf(err); code != models.ErrCodeNavigation {
		t.Fatalf("code = %q, want %q (err: %v)", code, models.ErrCodeNavigation, err)
	}

	r.httpFetcher.maxBody = 2048
	if _, err := r.Render(context.Background(), models.RenderRequest{Source: srv.URL, Mode: models.FetchHTTP}); err != nil {
		t.Fatalf("body at the limit should pass: %v", err)
	}
}

func TestRender_HTTPModeTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	r := NewRenderer(
		config.BrowserConfig{MaxRenders: 1},
		config.RendererConfig{NavigationTimeout: 50 * time.Millisecond},
	)
	_, err := r.Render(context.Background(), models.RenderRequest{
		Source: srv.URL,
		Mode:   models.FetchHTTP,
	})
	if code := models.CodeOf(err); code != models.ErrCodeTimeout {
		t.Fatalf("code = %q, want %q (err: %v)", code, models.ErrCodeTimeout, err)
	}
}

func TestIsAdDomain(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"doubleclick.net", true},
		{"pagead2.googlesyndication.com", true},
		{"WWW.Google-Analytics.com", true},
		{"example.com", false},
		{"notdoubleclick.net", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isAdDomain(tt.host); got != tt.want {
			t.Errorf("isAdDomain(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}
}

func TestShouldBlock(t *testing.T) {
	blocked := map[proto.NetworkResourceType]struct{}{
		proto.NetworkResourceTypeImage: {},
	}
	if !shouldBlock(blocked, false, proto.NetworkResourceTypeImage, "cdn.example.com") {
		t.Error("blocked resource type was allowed")
	}
	if shouldBlock(blocked, false, proto.NetworkResourceTypeScript, "doubleclick.net") {
		t.Error("ad host blocked with blockAds=false")
	}
	if !shouldBlock(blocked, true, proto.NetworkResourceTypeScript, "doubleclick.net") {
		t.Error("ad host allowed with blockAds=true")
	}
}

func TestExtractTitle(t *testing.T) {
	tests := []struct {
		html string
		want string
	}{
		{"<html><head><title>  Reviews </title></head></html>", "Reviews"},
		{"<html><body>no title</body></html>", ""},
		{"<title></title>", ""},
	}
	for _, tt := range tests {
		if got := extractTitle([]byte(tt.html)); got != tt.want {
			t.Errorf("extractTitle(%q) = %q, want %q", tt.html, got, tt.want)
		}
	}
}

func TestNeedsBrowser(t *testing.T) {
	shell := `<html><body><div id="root"></div><script src="app.js"></script></body></html>`
	if !needsBrowser([]byte(shell), inspectHTML([]byte(shell))) {
		t.Error("SPA shell should need a browser")
	}
	full := "<html><body>" + strings.Repeat("<p>Plenty of server rendered text here.</p>", 20) + "</body></html>"
	if needsBrowser([]byte(full), inspectHTML([]byte(full))) {
		t.Error("server-rendered page should not need a browser")
	}
}

func TestForgetBrowser(t *testing.T) {
	r := newTestRenderer()
	dead := rod.New()
	r.browser = dead

	r.forgetBrowser(rod.New())
	if r.browser != dead {
		t.Fatal("a different browser must not clear the current one")
	}
	r.forgetBrowser(dead)
	if r.Stats().Launched {
		t.Error("browser still cached after its connection died")
	}
}

func TestBrowserGone(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"eof", io.EOF, true},
		{"wrapped dial", fmt.Errorf("send: %w", &net.OpError{Op: "write", Err: errors.New("broken pipe")}), true},
		{"protocol error", &cdp.Error{Code: -32000, Message: "Failed to create context"}, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := browserGone(tt.err); got != tt.want {
				t.Errorf("browserGone(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestSleepCtx(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepCtx(ctx, time.Hour); err == nil {
		t.Error("sleepCtx ignored a canceled context")
	}
	if err := sleepCtx(context.Background(), 0); err != nil {
		t.Errorf("zero sleep: %v", err)
	}
}

func TestCategorizeError(t *testing.T) {
	if got := categorizeError(context.DeadlineExceeded, "x").Code; got != models.ErrCodeTimeout {
		t.Errorf("deadline -> %q", got)
	}
	orig := models.NewScrapeError(models.ErrCodeContentNeverSettled, "x", nil)
	if got := categorizeError(orig, "y"); got != orig {
		t.Error("existing ScrapeError should pass through")
	}
}
