// Package httpprobe implements the lightweight HTTP health probe (the
// non-browser path of spec.md §4.3): a HEAD request with a GET fallback,
// timing, and transport-error classification.
package httpprobe

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/watchvane/sentinel/internal/common/urlutil"
	"github.com/watchvane/sentinel/internal/monitor/classifier"
	"github.com/watchvane/sentinel/pkg/types"
)

// Prober issues HTTP health probes with a shared, pooled fasthttp.Client
// (grounded on sharding.FastHTTPClient's client construction).
type Prober struct {
	client *fasthttp.Client
}

// Request carries everything a probe needs beyond the target URL.
type Request struct {
	URL         string
	TimeoutMs   int64
	BearerToken string // only set when AuthType is BEARER
	APIKeyHeader string
	APIKeyValue  string
	BasicUser    string
	BasicPass    string
}

// Outcome is the HTTP prober's result, already reduced to classifier.RawOutcome
// plus the raw fields the caller needs to build a ProbeResult.
type Outcome struct {
	Raw           classifier.RawOutcome
	HTTPStatus    int
	LatencyMs     int64
	ContentLength int64
	ErrorMessage  string
}

// New builds a Prober with a connection-pooling fasthttp.Client tuned the
// way the teacher's inter-node client is (short idle duration since probe
// targets vary widely and connection reuse across sweeps is opportunistic).
// When ssrfProtection is true, Dial is routed through ssrfSafeDial, the
// same DNS-rebinding guard the teacher's bypass service arms by default
// (bypass_service.go's "SSRFProtection == nil || *SSRFProtection" toggle)
// -- monitored URLs are operator-supplied and must not be a vector for
// reaching internal services.
func New(ssrfProtection bool) *Prober {
	client := &fasthttp.Client{
		MaxIdleConnDuration: 30 * time.Second,
		MaxConnsPerHost:     64,
	}
	if ssrfProtection {
		client.Dial = ssrfSafeDial
	}
	return &Prober{client: client}
}

// ssrfSafeDial resolves the hostname, validates every resolved IP is public,
// then connects to the first one. Blocks DNS rebinding attacks where a
// monitored domain resolves to a private or loopback address after
// registration-time validation already passed.
func ssrfSafeDial(addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", addr, err)
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, fmt.Errorf("DNS resolution failed for %q: %w", host, err)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("no IP addresses found for %q", host)
	}

	for _, ip := range ips {
		if err := urlutil.ValidateResolvedIP(ip); err != nil {
			return nil, fmt.Errorf("SSRF protection for %q: %w", host, err)
		}
	}

	return fasthttp.DialTimeout(net.JoinHostPort(ips[0].String(), port), 10*time.Second)
}

// Probe performs the HEAD-then-GET-on-failure sequence of spec.md §4.3.
func (p *Prober) Probe(ctx context.Context, req Request) Outcome {
	timeout := time.Duration(req.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	status, latency, contentLen, transportErr, errMsg := p.attempt(ctx, req, fasthttp.MethodHead, timeout)
	if transportErr != types.TransportErrorNone || status == fasthttp.StatusMethodNotAllowed {
		status, latency, contentLen, transportErr, errMsg = p.attempt(ctx, req, fasthttp.MethodGet, timeout)
	}

	return Outcome{
		Raw: classifier.RawOutcome{
			TransportError: transportErr,
			HTTPStatus:     status,
			LatencyMs:      latency,
		},
		HTTPStatus:    status,
		LatencyMs:     latency,
		ContentLength: contentLen,
		ErrorMessage:  errMsg,
	}
}

func (p *Prober) attempt(ctx context.Context, req Request, method string, timeout time.Duration) (status int, latencyMs int64, contentLength int64, transportErr types.TransportError, errMsg string) {
	httpReq := fasthttp.AcquireRequest()
	httpResp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(httpReq)
	defer fasthttp.ReleaseResponse(httpResp)

	httpReq.SetRequestURI(req.URL)
	httpReq.Header.SetMethod(method)
	applyAuth(httpReq, req)

	deadline, ok := ctx.Deadline()
	if !ok || time.Until(deadline) > timeout {
		deadline = time.Now().Add(timeout)
	}

	start := time.Now()
	err := p.client.DoDeadline(httpReq, httpResp, deadline)
	latencyMs = time.Since(start).Milliseconds()

	if err != nil {
		errMsg = err.Error()
		return 0, latencyMs, 0, classifyTransportError(err), errMsg
	}

	return httpResp.StatusCode(), latencyMs, int64(len(httpResp.Body())), types.TransportErrorNone, ""
}

func applyAuth(httpReq *fasthttp.Request, req Request) {
	switch {
	case req.BearerToken != "":
		httpReq.Header.Set("Authorization", "Bearer "+req.BearerToken)
	case req.APIKeyHeader != "" && req.APIKeyValue != "":
		httpReq.Header.Set(req.APIKeyHeader, req.APIKeyValue)
	case req.BasicUser != "":
		httpReq.Header.Set("Authorization", "Basic "+basicAuthValue(req.BasicUser, req.BasicPass))
	}
}

func basicAuthValue(user, pass string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
}

func classifyTransportError(err error) types.TransportError {
	if errors.Is(err, fasthttp.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return types.TransportErrorTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return types.TransportErrorDNS
	}

	var tlsErr *tls.CertificateVerificationError
	if errors.As(err, &tlsErr) {
		return types.TransportErrorTLS
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" {
			return types.TransportErrorConnection
		}
		if opErr.Timeout() {
			return types.TransportErrorTimeout
		}
	}

	return types.TransportErrorOther
}
