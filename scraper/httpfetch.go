package scraper

import (
	"bytes"
	"context"
	"crypto/x509"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	tls2 "github.com/refraction-networking/utls"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// maxBodyBytes caps the size of a fetched page. Larger bodies fail the
// fetch rather than being cut short.
const maxBodyBytes = 10 * 1024 * 1024

// browserHeaders are sent with every plain fetch unless the request
// overrides them.
var browserHeaders = map[string]string{
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.9",
	"Cache-Control":   "no-cache",
}

// httpFetcher performs plain GETs with a Chrome TLS fingerprint (utls). It is
// safe for concurrent use.
type httpFetcher struct {
	client  *http.Client
	maxBody int64

	// rootCAs overrides the system roots when set.
	rootCAs *x509.CertPool
}

type fetchResult struct {
	body       []byte
	finalURL   string
	statusCode int
}

// newHTTPFetcher builds the shared client. An http(s) proxy URL routes every
// fetch through CONNECT; other schemes are ignored.
func newHTTPFetcher(proxy string) *httpFetcher {
	f := &httpFetcher{maxBody: maxBodyBytes}
	transport := &http.Transport{
		DialTLSContext:    f.dialTLSChrome,
		ForceAttemptHTTP2: false,
	}
	if proxy != "" {
		if u, err := url.Parse(proxy); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	f.client = &http.Client{Transport: transport}
	return f
}

// fetch retrieves targetURL. headers override browserHeaders and an empty
// userAgent falls back to chromeUA. Status codes >= 400 are errors.
func (f *httpFetcher) fetch(ctx context.Context, targetURL string, headers map[string]string, userAgent string) (*fetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("httpfetch: build request: %w", err)
	}
	if userAgent == "" {
		userAgent = chromeUA
	}
	req.Header.Set("User-Agent", userAgent)
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpfetch: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, fmt.Errorf("httpfetch: HTTP %d for %s", resp.StatusCode, targetURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("httpfetch: read body: %w", err)
	}
	if int64(len(body)) > f.maxBody {
		return nil, fmt.Errorf("httpfetch: body of %s exceeds %d bytes", targetURL, f.maxBody)
	}

	return &fetchResult{
		body:       body,
		finalURL:   resp.Request.URL.String(),
		statusCode: resp.StatusCode,
	}, nil
}

// close drops idle keep-alive connections.
func (f *httpFetcher) close() {
	f.client.CloseIdleConnections()
}

// chromeH1Spec returns a Chrome ClientHello whose ALPN offers only
// http/1.1. The stock Chrome hello offers h2, which servers accept and the
// HTTP/1 transport then cannot read. A fresh spec is built per connection
// because ApplyPreset keeps references into it.
func chromeH1Spec() (*tls2.ClientHelloSpec, error) {
	spec, err := tls2.UTLSIdToSpec(tls2.HelloChrome_Auto)
	if err != nil {
		return nil, err
	}
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls2.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}
	return &spec, nil
}

// dialTLSChrome opens a TLS connection with a Chrome-like ClientHello. The
// transport only calls it for direct connections; proxied requests tunnel
// through CONNECT first.
func (f *httpFetcher) dialTLSChrome(ctx context.Context, network, addr string) (net.Conn, error) {
	spec, err := chromeH1Spec()
	if err != nil {
		return nil, fmt.Errorf("httpfetch: build tls hello: %w", err)
	}

	var dialer net.Dialer
	rawConn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls2.UClient(rawConn, &tls2.Config{ServerName: host, RootCAs: f.rootCAs}, tls2.HelloCustom)
	if err := tlsConn.ApplyPreset(spec); err != nil {
		rawConn.Close()
		return nil, fmt.Errorf("httpfetch: apply tls hello: %w", err)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}
	return tlsConn, nil
}

// pageInfo is what a plain fetch can tell about a page without running it.
type pageInfo struct {
	title string
	text  string // visible body text, whitespace collapsed
}

// inspectHTML parses body once for its title and visible text. Unparseable
// input yields an empty pageInfo.
func inspectHTML(body []byte) pageInfo {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return pageInfo{}
	}
	info := pageInfo{title: strings.TrimSpace(doc.Find("title").First().Text())}

	main := doc.Find("body")
	main.Find("script, style, noscript, template").Remove()
	info.text = strings.Join(strings.Fields(main.Text()), " ")
	return info
}

// extractTitle returns the first <title> text, or "".
func extractTitle(body []byte) string {
	return inspectHTML(body).title
}

// needsBrowser guesses whether fetched HTML is an unrendered script shell:
// little visible text, an empty SPA mount point, a noscript warning, or many
// scripts around almost no content. info must come from inspectHTML(body).
func needsBrowser(body []byte, info pageInfo) bool {
	text := info.text
	if len(text) < 200 {
		return true
	}

	lower := strings.ToLower(string(body))
	for _, shell := range emptyMountPoints {
		if strings.Contains(lower, shell) {
			return true
		}
	}
	if reNoscript.MatchString(lower) {
		return true
	}
	return strings.Count(lower, "<script") > 10 && len(text) < 500
}

var emptyMountPoints = []string{
	`<div id="root"></div>`,
	`<div id="app"></div>`,
	`<div id="__next"></div>`,
}

var reNoscript = regexp.MustCompile(`<noscript[^>]*>[^<]*(enable|activate|turn on|requires?)\s+javascript`)
