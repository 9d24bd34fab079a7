package network

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Prober checks whether the backend is reachable.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProbeMonitor polls a Prober on an interval and derives the connectivity
// status from the result.
type ProbeMonitor struct {
	*broadcaster

	prober   Prober
	interval time.Duration
	timeout  time.Duration
	log      *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProbeMonitor creates a monitor. The device is assumed online until the
// first probe says otherwise.
func NewProbeMonitor(prober Prober, interval, timeout time.Duration) *ProbeMonitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &ProbeMonitor{
		broadcaster: newBroadcaster(Online),
		prober:      prober,
		interval:    interval,
		timeout:     timeout,
		log:         slog.Default().With("component", "network_monitor"),
	}
}

// Start probes once immediately and then on every interval until Stop.
func (m *ProbeMonitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.Check(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Check(ctx)
			}
		}
	}()
}

// Stop halts polling and waits for the loop to exit.
func (m *ProbeMonitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// Check runs a single probe and publishes the result.
func (m *ProbeMonitor) Check(ctx context.Context) Status {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	s := Online
	if err := m.prober.Probe(probeCtx); err != nil {
		if ctx.Err() != nil {
			return m.Status()
		}
		s.InternetReachable = false
		m.log.Debug("Probe failed", "error", err)
	}
	if m.set(s) {
		m.log.Info("Connectivity changed", "offline", s.IsOffline())
	}
	return s
}

// HTTPProber issues a GET and treats any non-5xx response as reachable.
type HTTPProber struct {
	url    string
	client *http.Client
}

func NewHTTPProber(url string, timeout time.Duration) *HTTPProber {
	return &HTTPProber{
		url: url,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (p *HTTPProber) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("probe: http %d", resp.StatusCode)
	}
	return nil
}

// GRPCHealthProber calls the standard gRPC health service.
type GRPCHealthProber struct {
	conn    *grpc.ClientConn
	client  healthpb.HealthClient
	service string
}

// NewGRPCHealthProber creates a prober for target. A scheme of https:// or a
// :443 port selects TLS.
func NewGRPCHealthProber(target, service string) (*GRPCHealthProber, error) {
	var opts []grpc.DialOption
	if strings.HasPrefix(target, "https://") || strings.HasSuffix(target, ":443") {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{})))
		target = strings.TrimPrefix(target, "https://")
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		target = strings.TrimPrefix(target, "http://")
	}

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", target, err)
	}
	return &GRPCHealthProber{
		conn:    conn,
		client:  healthpb.NewHealthClient(conn),
		service: service,
	}, nil
}

func (p *GRPCHealthProber) Probe(ctx context.Context) error {
	resp, err := p.client.Check(ctx, &healthpb.HealthCheckRequest{Service: p.service})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("service %q is %s", p.service, resp.GetStatus())
	}
	return nil
}

func (p *GRPCHealthProber) Close() error {
	return p.conn.Close()
}
