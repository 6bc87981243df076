package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"meowauth/internal/infrastructure"
)

const (
	tracerName = "meowauth/guard"

	// maxAuthorityBody caps how much of an authority response is read
	maxAuthorityBody = 64 << 10
)

// authorityResponse is the authority's 200 body. Other fields are ignored.
type authorityResponse struct {
	RequestIP string `json:"requestIP"`
}

// AuthorityClient asks the license authority to confirm the host.
// It never retries; every failure comes back as a tagged outcome.
type AuthorityClient struct {
	baseURL *url.URL
	client  *http.Client
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// NewAuthorityClient builds a client for baseURL. One trailing "/" is
// stripped from the URL; any query it carries is kept.
func NewAuthorityClient(baseURL string, client *http.Client, logger *slog.Logger, metrics *Metrics) (*AuthorityClient, error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("%w: authority url is empty", ErrInvalidConfig)
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: authority url: %w", ErrInvalidConfig, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: authority url scheme %q", ErrInvalidConfig, u.Scheme)
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &AuthorityClient{
		baseURL: u,
		client:  client,
		logger:  logger.With(slog.String("component", "authority_client")),
		metrics: metrics,
		tracer:  otel.Tracer(tracerName),
	}, nil
}

// requestURL returns {base}?port={port}
func (c *AuthorityClient) requestURL(port int) string {
	u := *c.baseURL
	q := u.Query()
	q.Set("port", strconv.Itoa(port))
	u.RawQuery = q.Encode()
	return u.String()
}

// Verify performs one verification round-trip for the host listening on port
func (c *AuthorityClient) Verify(ctx context.Context, port int) VerificationOutcome {
	ctx, span := c.tracer.Start(ctx, "guard.authority.verify",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int("guard.port", port)),
	)
	defer span.End()

	start := time.Now()
	outcome := c.do(ctx, port)
	elapsed := time.Since(start)

	c.metrics.recordVerification(ctx, outcome, elapsed)
	span.SetAttributes(attribute.String("guard.outcome", outcome.Kind.String()))
	if outcome.StatusCode != 0 {
		span.SetAttributes(attribute.Int("http.status_code", outcome.StatusCode))
	}
	if err := outcome.Err(); err != nil {
		infrastructure.RecordError(ctx, err)
	} else {
		span.SetStatus(codes.Ok, "")
	}

	c.logger.DebugContext(ctx, "authority responded",
		slog.String("outcome", outcome.Kind.String()),
		slog.Int("status", outcome.StatusCode),
		slog.Duration("duration", elapsed),
	)
	return outcome
}

func (c *AuthorityClient) do(ctx context.Context, port int) VerificationOutcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(port), nil)
	if err != nil {
		return transportError(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxAuthorityBody))
		return rejected(resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAuthorityBody))
	if err != nil {
		return transportError(fmt.Errorf("read body: %w", err))
	}

	var payload authorityResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return transportError(fmt.Errorf("decode body: %w", err))
	}
	address := strings.TrimSpace(payload.RequestIP)
	if address == "" {
		return transportError(fmt.Errorf("response has no requestIP"))
	}
	return confirmed(address)
}
