// internal/pkg/httpclient/client.go

package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"nexus-settlement/internal/pkg/logger"
)

// StatusError is a non-2xx answer. Body is the raw response body.
type StatusError struct {
	URL    string
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.URL, e.Status)
}

// ErrUnavailable is returned while the breaker is open.
var ErrUnavailable = errors.New("downstream service unavailable")

type response struct {
	status int
	body   []byte
}

// Client is a traced JSON HTTP client guarded by a circuit breaker. Only
// transport errors and 5xx answers count against the breaker.
type Client struct {
	Tracer     trace.Tracer
	HTTPClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*response]
}

// NewClient builds a client. The http.Client has no Timeout: every call is
// bounded by its context.
func NewClient(tracer trace.Tracer, name string) *Client {
	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
		},
	}
	breaker := gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.Status < http.StatusInternalServerError
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
	return &Client{Tracer: tracer, HTTPClient: httpClient, breaker: breaker}
}

// DoJSON sends in as JSON (when non-nil) and decodes a 2xx body into out (when
// non-nil). It returns the HTTP status alongside any error.
func (c *Client) DoJSON(ctx context.Context, method, serviceURL string, header http.Header, in, out any) (int, error) {
	parsedURL, err := url.Parse(serviceURL)
	if err != nil {
		return 0, err
	}
	spanName := fmt.Sprintf("call-%s", strings.Split(parsedURL.Host, ":")[0])
	ctx, span := c.Tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.url", serviceURL),
		attribute.String("http.method", method),
	)

	var payload []byte
	if in != nil {
		if payload, err = json.Marshal(in); err != nil {
			return 0, errors.Wrap(err, "encode request")
		}
	}

	resp, err := c.breaker.Execute(func() (*response, error) {
		return c.do(ctx, method, serviceURL, header, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = errors.Wrap(ErrUnavailable, err.Error())
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		status := 0
		var se *StatusError
		if errors.As(err, &se) {
			status = se.Status
		}
		return status, err
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.status))
	if out != nil && len(resp.body) > 0 {
		if err := json.Unmarshal(resp.body, out); err != nil {
			return resp.status, errors.Wrap(err, "decode response")
		}
	}
	return resp.status, nil
}

func (c *Client) do(ctx context.Context, method, serviceURL string, header http.Header, payload []byte) (*response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, serviceURL, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	httpResp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	resp := &response{status: httpResp.StatusCode, body: data}
	if httpResp.StatusCode >= http.StatusBadRequest {
		return resp, &StatusError{URL: serviceURL, Status: httpResp.StatusCode, Body: data}
	}
	return resp, nil
}
