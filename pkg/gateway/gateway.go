// Package gateway sends signed requests to the ECS JSON API and classifies the responses
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"go.uber.org/zap"

	"github.com/pay-theory/ecsbridge/pkg/errors"
	"github.com/pay-theory/ecsbridge/pkg/query"
	"github.com/pay-theory/ecsbridge/pkg/signer"
)

const (
	// ServiceName is the SigV4 service name of ECS
	ServiceName = "ecs"

	// TargetPrefix prefixes every action in the x-amz-target header
	TargetPrefix = "AmazonEC2ContainerServiceV20141113."

	// ContentType is the ECS JSON protocol content type
	ContentType = "application/x-amz-json-1.1"

	// maxResultsParameter is sent as an integer, every other scalar as a string
	maxResultsParameter = "maxResults"

	maxErrorBody = 64 * 1024

	// DefaultMaxResponseBytes bounds a single decoded response
	DefaultMaxResponseBytes int64 = 10 * 1024 * 1024
)

// Client invokes ECS actions
type Client struct {
	endpoint   string
	httpClient *http.Client
	signer     *signer.Signer
	logger     *zap.Logger
	maxBytes   int64
}

// Option configures a Client
type Option func(*Client)

// WithEndpoint overrides the regional endpoint
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if endpoint != "" {
			c.endpoint = endpoint
		}
	}
}

// WithHTTPClient sets the HTTP client used for every call
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMaxResponseBytes caps the size of a response body
func WithMaxResponseBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBytes = n
		}
	}
}

// WithClock sets the signing clock
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.signer.Now = now
	}
}

// Endpoint returns the regional ECS endpoint
func Endpoint(region string) string {
	return fmt.Sprintf("https://ecs.%s.amazonaws.com/", region)
}

// New creates a client for region
func New(region string, credentials aws.CredentialsProvider, opts ...Option) *Client {
	c := &Client{
		endpoint:   Endpoint(region),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		signer:     signer.New(credentials, region, ServiceName),
		logger:     zap.NewNop(),
		maxBytes:   DefaultMaxResponseBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// InvokeString parses expr and invokes action with it
func (c *Client) InvokeString(ctx context.Context, action, expr string) (map[string]any, error) {
	q, err := query.Parse(expr)
	if err != nil {
		return nil, err
	}
	return c.Invoke(ctx, action, q)
}

// Invoke calls action with the clauses of q as request members and returns the decoded response
func (c *Client) Invoke(ctx context.Context, action string, q *query.Query) (map[string]any, error) {
	body, err := BuildBody(q)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(errors.ErrTransport, action, "failed to build request", err)
	}
	req.Header.Set("Content-Type", ContentType)
	req.Header.Set("X-Amz-Target", TargetPrefix+action)

	sc, err := c.signer.Sign(ctx, req, body)
	if err != nil {
		return nil, err
	}

	if ce := c.logger.Check(zap.DebugLevel, "invoking ecs action"); ce != nil {
		ce.Write(
			zap.String("action", action),
			zap.ByteString("body", body),
			zap.String("canonical_request", sc.CanonicalRequest()),
			zap.String("string_to_sign", sc.StringToSign()),
		)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrTransport, action, "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, errors.Wrap(errors.ErrTransport, action, "failed to read response", err)
	}
	if int64(len(raw)) > c.maxBytes {
		return nil, errors.New(errors.ErrTransport, action, fmt.Sprintf("response exceeds %d bytes", c.maxBytes))
	}

	return c.classify(action, resp.StatusCode, raw)
}

func (c *Client) classify(action string, status int, raw []byte) (map[string]any, error) {
	decoded, decodeErr := decode(raw)
	remote := remoteError(decoded, status)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		if remote == nil {
			remote = &errors.RemoteAPIError{Type: strconv.Itoa(status), StatusCode: status}
		}
		c.logFailure(action, status, raw)
		return nil, errors.Wrap(errors.ErrAuthorization, action, "not authorized", remote)

	case remote != nil:
		c.logFailure(action, status, raw)
		return nil, errors.Remote(action, remote)

	case status < 200 || status > 299:
		c.logFailure(action, status, raw)
		return nil, errors.Remote(action, &errors.RemoteAPIError{
			Type:       strconv.Itoa(status),
			Message:    http.StatusText(status),
			StatusCode: status,
		})

	case decodeErr != nil:
		return nil, errors.Wrap(errors.ErrTransport, action, "failed to decode response", decodeErr)
	}

	return decoded, nil
}

func (c *Client) logFailure(action string, status int, raw []byte) {
	if len(raw) > maxErrorBody {
		raw = raw[:maxErrorBody]
	}
	c.logger.Error("ecs action failed",
		zap.String("action", action),
		zap.Int("status", status),
		zap.ByteString("response", raw),
	)
}

func decode(raw []byte) (map[string]any, error) {
	out := map[string]any{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return out, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// remoteError extracts the __type error envelope of a decoded response
func remoteError(decoded map[string]any, status int) *errors.RemoteAPIError {
	t, ok := decoded["__type"]
	if !ok {
		return nil
	}

	remote := &errors.RemoteAPIError{Type: fmt.Sprint(t), StatusCode: status}
	for _, key := range []string{"message", "Message"} {
		if m, ok := decoded[key]; ok && m != nil {
			remote.Message = fmt.Sprint(m)
			break
		}
	}
	return remote
}

// BuildBody renders the clauses of q as a JSON request body. List clauses become string arrays,
// maxResults becomes an integer and every other value is sent as a string.
func BuildBody(q *query.Query) ([]byte, error) {
	members := make(map[string]any, q.Len())
	if q != nil {
		for _, c := range q.Clauses {
			switch {
			case c.IsList:
				list := c.List
				if list == nil {
					list = []string{}
				}
				members[c.Key] = list
			case c.Key == maxResultsParameter:
				n, err := strconv.Atoi(c.Value)
				if err != nil {
					return nil, errors.Query("body", "maxResults must be an integer, got %q", c.Value)
				}
				members[c.Key] = n
			default:
				members[c.Key] = c.Value
			}
		}
	}

	body, err := json.Marshal(members)
	if err != nil {
		return nil, errors.Wrap(errors.ErrTransport, "body", "failed to encode request", err)
	}
	return body, nil
}
