package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	tls "github.com/refraction-networking/utls"
	"golang.org/x/net/proxy"
)

// Status texts of synthetic responses. Failure classification matches on
// StatusTextUnreachable, so it must not change.
const (
	StatusTextUnreachable = "Domain could not be reached"
	StatusTextInternal    = "Internal Error"
)

const (
	defaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	defaultMaxBodyBytes = 32 << 20
)

// Fetcher performs GET requests on behalf of strategies.
type Fetcher interface {
	// Get never returns an error: transport failures come back as a
	// synthetic response with OK false.
	Get(ctx context.Context, url string) *Response
}

// Response is a fully read HTTP response.
type Response struct {
	OK         bool
	Status     int
	StatusText string
	Header     http.Header
	Body       []byte
	URL        string
}

// HTTPClientOptions configures NewHTTPClient.
type HTTPClientOptions struct {
	// Timeout bounds each request including the body read.
	Timeout time.Duration

	// Proxy is an optional http://, https://, socks5:// or socks5h:// URL.
	Proxy string

	// UserAgent overrides the Chrome user agent.
	UserAgent string

	// MaxBodyBytes caps the number of body bytes read per response.
	MaxBodyBytes int64
}

// HTTPClient is the Fetcher used against real storefronts. TLS connections
// present a Chrome ClientHello so stores behind bot filters treat probes
// like browser traffic.
type HTTPClient struct {
	client       *http.Client
	userAgent    string
	maxBodyBytes int64
}

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection. It stays
// nil when utls cannot build the Chrome spec.
var chromeH1Spec *tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		slog.Error("http_client: chrome tls spec unavailable, using go client hello", "error", err)
		return
	}
	// http.Transport cannot speak h2 over a utls connection.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = &spec
}

// newTLSClient wraps conn in a utls client presenting spec. A nil spec falls
// back to Go's own ClientHello, still limited to http/1.1.
func newTLSClient(conn net.Conn, host string, spec *tls.ClientHelloSpec) (*tls.UConn, error) {
	if spec == nil {
		return tls.UClient(conn, &tls.Config{ServerName: host, NextProtos: []string{"http/1.1"}}, tls.HelloGolang), nil
	}
	tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
	if err := tlsConn.ApplyPreset(spec); err != nil {
		return nil, fmt.Errorf("http_client: apply tls spec: %w", err)
	}
	return tlsConn, nil
}

// NewHTTPClient creates an HTTPClient. It fails only on an unusable proxy URL.
func NewHTTPClient(opts HTTPClientOptions) (*HTTPClient, error) {
	dial, err := proxyDialer(opts.Proxy)
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{
		DialContext: dial,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dial(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, _ := net.SplitHostPort(addr)
			tlsConn, err := newTLSClient(conn, host, chromeH1Spec)
			if err != nil {
				conn.Close()
				return nil, err
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
		ForceAttemptHTTP2:   false,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}
	if p := parseProxy(opts.Proxy); p != nil && (p.Scheme == "http" || p.Scheme == "https") {
		transport.Proxy = http.ProxyURL(p)
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	return &HTTPClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		userAgent:    ua,
		maxBodyBytes: maxBody,
	}, nil
}

// Get fetches target and reads the whole body.
func (c *HTTPClient) Get(ctx context.Context, target string) *Response {
	slog.Debug("http get", "url", target)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return failedResponse(target, err, false)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.client.Do(req)
	if err != nil {
		return failedResponse(target, err, isNetworkError(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes))
	if err != nil {
		return failedResponse(target, err, isNetworkError(err))
	}

	finalURL := target
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Response{
		OK:         resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status:     resp.StatusCode,
		StatusText: statusText(resp),
		Header:     resp.Header,
		Body:       body,
		URL:        finalURL,
	}
}

// failedResponse converts a transport error into a synthetic response.
func failedResponse(target string, err error, network bool) *Response {
	slog.Warn("http request failed", "url", target, "error", err)
	if network {
		return &Response{Status: http.StatusServiceUnavailable, StatusText: StatusTextUnreachable, Header: http.Header{}, URL: target}
	}
	return &Response{Status: http.StatusInternalServerError, StatusText: StatusTextInternal, Header: http.Header{}, URL: target}
}

// isNetworkError reports whether err came from reaching or reading the
// remote host. Errors from the client are always wrapped in *url.Error.
func isNetworkError(err error) bool {
	var (
		urlErr *url.Error
		netErr net.Error
		dnsErr *net.DNSError
		opErr  *net.OpError
	)
	switch {
	case errors.As(err, &dnsErr), errors.As(err, &opErr), errors.As(err, &netErr), errors.As(err, &urlErr):
		return true
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return true
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET):
		return true
	case errors.Is(err, context.DeadlineExceeded):
		return true
	}
	return false
}

// statusText returns the reason phrase of resp ("Not Found" for "404 Not Found").
func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// proxyDialer returns the raw TCP dialer, tunnelling through SOCKS5 when
// the proxy URL asks for it.
func proxyDialer(rawProxy string) (dialFunc, error) {
	base := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	if rawProxy == "" {
		return base.DialContext, nil
	}

	p := parseProxy(rawProxy)
	if p == nil {
		return nil, fmt.Errorf("http_client: invalid proxy url %q", rawProxy)
	}
	switch p.Scheme {
	case "http", "https":
		return base.DialContext, nil
	case "socks5", "socks5h":
		d, err := proxy.FromURL(p, base)
		if err != nil {
			return nil, fmt.Errorf("http_client: socks5 proxy: %w", err)
		}
		if cd, ok := d.(proxy.ContextDialer); ok {
			return cd.DialContext, nil
		}
		return func(_ context.Context, network, addr string) (net.Conn, error) {
			return d.Dial(network, addr)
		}, nil
	default:
		return nil, fmt.Errorf("http_client: unsupported proxy scheme %q", p.Scheme)
	}
}

func parseProxy(rawProxy string) *url.URL {
	if rawProxy == "" {
		return nil
	}
	p, err := url.Parse(rawProxy)
	if err != nil || p.Host == "" {
		return nil
	}
	return p
}
