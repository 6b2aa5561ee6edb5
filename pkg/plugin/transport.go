package plugin

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/wasilak/grafana-checkmk-datasource/pkg/plugin")

// transport executes HTTP requests for one backend and returns the raw body. It never
// retries; failures are classified into APIErrors.
type transport struct {
	client  *http.Client
	backend BackendType
}

func newTransport(client *http.Client, backendType BackendType) *transport {
	if client == nil {
		client = http.DefaultClient
	}
	return &transport{client: client, backend: backendType}
}

// do sends req and returns the response body together with the status code. endpoint
// is a low cardinality name used for metrics and tracing.
func (t *transport) do(ctx context.Context, endpoint string, req *http.Request) ([]byte, int, error) {
	logger := log.New()

	ctx, span := tracer.Start(ctx, "checkmk."+string(t.backend)+"."+endpoint, trace.WithAttributes(
		attribute.String("checkmk.backend", string(t.backend)),
		attribute.String("checkmk.endpoint", endpoint),
		attribute.String("http.method", req.Method),
	))
	defer span.End()

	start := time.Now()
	resp, err := t.client.Do(req.WithContext(ctx))
	apiRequestDuration.WithLabelValues(string(t.backend), endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		apiErr := classifyTransportError(err)
		apiRequestsTotal.WithLabelValues(string(t.backend), endpoint, string(apiErr.Kind)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, apiErr.Message)
		logger.Error("Checkmk API request failed", "backend", t.backend, "endpoint", endpoint, "error", err)
		return nil, 0, apiErr
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		apiRequestsTotal.WithLabelValues(string(t.backend), endpoint, string(ErrorKindTransport)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, msgUnreadableResponse)
		return nil, resp.StatusCode, wrapAPIError(ErrorKindTransport, msgUnreadableResponse, err)
	}

	apiRequestsTotal.WithLabelValues(string(t.backend), endpoint, strconv.Itoa(resp.StatusCode)).Inc()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	logger.Debug("Checkmk API response", "backend", t.backend, "endpoint", endpoint,
		"status", resp.StatusCode, "bytes", len(body))

	return body, resp.StatusCode, nil
}

// classifyTransportError separates aborted requests, which mostly point at TLS setup
// problems, from servers that can not be reached at all
func classifyTransportError(err error) *APIError {
	if isCancellation(err) {
		return wrapAPIError(ErrorKindCancelled, msgRequestCancelled, err)
	}
	return wrapAPIError(ErrorKindTransport, msgUnreadableResponse, err)
}

func isCancellation(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return true
	}
	var verifyErr *tls.CertificateVerificationError
	if errors.As(err, &verifyErr) {
		return true
	}
	var authorityErr x509.UnknownAuthorityError
	return errors.As(err, &authorityErr)
}
