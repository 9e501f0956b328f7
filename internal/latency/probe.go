package latency

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
	pkgerrors "hunter/pkg/errors"
)

// DefaultProbeURL is requested through the local listener to check that the
// session actually carries traffic.
const DefaultProbeURL = "http://google.com"

// Prober sends a HEAD request through trojan-go's local SOCKS5 listener.
// Host names are resolved by the proxy.
type Prober struct {
	URL     string
	Retries int
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewProber returns a Prober with three attempts of five seconds each.
func NewProber(logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		URL:     DefaultProbeURL,
		Retries: 3,
		Timeout: 5 * time.Second,
		Logger:  logger,
	}
}

// Probe returns the round-trip time of the first successful attempt.
func (p *Prober) Probe(ctx context.Context, localAddr string, localPort int) (time.Duration, error) {
	address := net.JoinHostPort(localAddr, strconv.Itoa(localPort))
	dialer, err := proxy.SOCKS5("tcp", address, nil, proxy.Direct)
	if err != nil {
		return 0, &pkgerrors.NetworkError{Address: localAddr, Port: localPort, Err: err}
	}

	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				if cd, ok := dialer.(proxy.ContextDialer); ok {
					return cd.DialContext(ctx, network, addr)
				}
				return dialer.Dial(network, addr)
			},
			DisableKeepAlives: true,
		},
		Timeout: p.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	attempts := p.Retries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		elapsed, err := p.once(ctx, client)
		if err == nil {
			p.Logger.Debug("probe succeeded", "proxy", address, "attempt", i+1, "elapsed", elapsed)
			return elapsed, nil
		}
		lastErr = err
		p.Logger.Debug("probe attempt failed", "proxy", address, "attempt", i+1, "error", err)
	}

	return 0, fmt.Errorf("%w after %d attempts: %w", pkgerrors.ErrProbeFailed, attempts,
		&pkgerrors.NetworkError{Address: localAddr, Port: localPort, Err: lastErr})
}

func (p *Prober) once(ctx context.Context, client *http.Client) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return time.Since(start), nil
}
