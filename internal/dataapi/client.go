// Package dataapi is the HTTP client for the internal data service. Every
// persistent read and write the bot performs (users, generations, events,
// preferences, LoRAs, collections, trainings) goes through this package;
// the bot itself keeps no durable state.
package dataapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/musebot/internal/config"
)

// basePath is the internal data service prefix shared by all endpoints.
const basePath = "/internal/v1/data"

// clientKeyHeader authenticates the bot to the data service.
const clientKeyHeader = "X-Internal-Client-Key"

// Client talks to the internal data service. Safe for concurrent use.
type Client struct {
	base    string
	key     string
	http    *http.Client
	timeout time.Duration
	tracer  trace.Tracer
}

// New builds a client from the data API configuration.
func New(cfg config.DataAPIConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		base:    strings.TrimRight(cfg.BaseURL, "/") + basePath,
		key:     cfg.ClientKey,
		http:    &http.Client{},
		timeout: timeout,
		tracer:  otel.Tracer("musebot/dataapi"),
	}
}

// APIError is a non-2xx response from the data service.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("data api: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("data api: %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the data service.
func IsNotFound(err error) bool { return statusIs(err, http.StatusNotFound) }

// IsConflict reports whether err is a 409 from the data service.
func IsConflict(err error) bool { return statusIs(err, http.StatusConflict) }

// IsUnavailable reports whether err is a 5xx from the data service.
func IsUnavailable(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status >= 500
}

func statusIs(err error, status int) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == status
}

// errorEnvelope is the data service error body shape.
type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// do issues one request against the data service. in is marshaled as the
// JSON body when non-nil, out is decoded from a 2xx response body when
// non-nil. Non-2xx responses come back as *APIError.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := c.tracer.Start(ctx, "dataapi."+method,
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", basePath+path),
		))
	defer span.End()

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s request: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.key != "" {
		req.Header.Set(clientKeyHeader, c.key)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	slog.Debug("data api call",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var env errorEnvelope
		if decodeErr := json.NewDecoder(resp.Body).Decode(&env); decodeErr == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		span.SetStatus(codes.Error, apiErr.Message)
		return fmt.Errorf("%s %s: %w", method, path, apiErr)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			span.RecordError(err)
			return fmt.Errorf("decode %s %s response: %w", method, path, err)
		}
	}
	return nil
}
