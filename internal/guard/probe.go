package guard

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// maxProbeLine bounds the first line read from a probe response
const maxProbeLine = 4096

// ProbeClient asks public "what is my IP" services for the host's address
type ProbeClient struct {
	client  *http.Client
	logger  *slog.Logger
	metrics *Metrics
}

func NewProbeClient(client *http.Client, logger *slog.Logger, metrics *Metrics) *ProbeClient {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProbeClient{
		client:  client,
		logger:  logger.With(slog.String("component", "ip_probe")),
		metrics: metrics,
	}
}

// Probe queries serviceURL once. A 200 response's first line, trimmed, is
// the observed address; anything else makes the result unavailable.
func (p *ProbeClient) Probe(ctx context.Context, serviceURL string) ProbeResult {
	res := p.probe(ctx, serviceURL)
	p.metrics.recordProbe(ctx, res)
	if !res.Observed {
		p.logger.WarnContext(ctx, "probe unavailable",
			slog.String("action", "probe_unavailable"),
			slog.String("service", serviceURL),
			slog.String("error", res.Err.Error()),
		)
	}
	return res
}

func (p *ProbeClient) probe(ctx context.Context, serviceURL string) ProbeResult {
	res := ProbeResult{Service: serviceURL}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serviceURL, nil)
	if err != nil {
		res.Err = fmt.Errorf("%w: %w", ErrProbeUnavailable, err)
		return res
	}

	resp, err := p.client.Do(req)
	if err != nil {
		res.Err = fmt.Errorf("%w: %w", ErrProbeUnavailable, err)
		return res
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		res.Err = fmt.Errorf("%w: status %d", ErrProbeUnavailable, resp.StatusCode)
		return res
	}

	line, err := firstLine(io.LimitReader(resp.Body, maxProbeLine))
	if err != nil {
		res.Err = fmt.Errorf("%w: read body: %w", ErrProbeUnavailable, err)
		return res
	}
	if line == "" {
		res.Err = fmt.Errorf("%w: empty response", ErrProbeUnavailable)
		return res
	}

	res.Address = line
	res.Observed = true
	return res
}

func firstLine(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 256), maxProbeLine)
	if sc.Scan() {
		return strings.TrimSpace(sc.Text()), nil
	}
	return "", sc.Err()
}
