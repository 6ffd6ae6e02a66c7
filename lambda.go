package ecsbridge

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pay-theory/ecsbridge/internal/logging"
	"github.com/pay-theory/ecsbridge/pkg/core"
	"github.com/pay-theory/ecsbridge/pkg/errors"
	"github.com/pay-theory/ecsbridge/pkg/session"
)

var (
	// Global Lambda-optimized adapter for connection reuse across warm starts
	globalLambdaAdapter *LambdaAdapter
	globalLambdaErr     error
	lambdaOnce          sync.Once
)

// Operations accepted by HandleEvent
const (
	OperationCount    = "count"
	OperationRetrieve = "retrieve"
	OperationSearch   = "search"
)

// LambdaAdapter wraps Adapter with Lambda-specific setup
type LambdaAdapter struct {
	*Adapter
	isLambda       bool
	lambdaMemoryMB int
}

// Event is the payload accepted by the Lambda handler
type Event struct {
	Operation string       `json:"operation"`
	Request   core.Request `json:"request"`
}

// EventResponse is the Lambda handler result. Exactly one of Count, Record or Records is set
// for a successful operation.
type EventResponse struct {
	Count   *int             `json:"count,omitempty"`
	Record  core.Record      `json:"record,omitempty"`
	Records *core.RecordList `json:"records,omitempty"`
}

// NewLambdaOptimized returns the process-wide adapter, configured from the environment on first use
func NewLambdaOptimized(opts ...Option) (*LambdaAdapter, error) {
	lambdaOnce.Do(func() {
		globalLambdaAdapter, globalLambdaErr = createLambdaAdapter(context.Background(), opts...)
	})
	return globalLambdaAdapter, globalLambdaErr
}

// createLambdaAdapter builds an adapter from ECSBRIDGE_* / AWS_* variables
func createLambdaAdapter(ctx context.Context, opts ...Option) (*LambdaAdapter, error) {
	memoryMB := GetLambdaMemoryMB()

	cfg, err := session.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	cfg.HTTPClient = lambdaHTTPClient(memoryMB, cfg.Timeout)

	logger, err := logging.New(os.Getenv("ECSBRIDGE_LOG_LEVEL"))
	if err != nil {
		return nil, errors.Wrap(errors.ErrValidation, "lambda", "invalid ECSBRIDGE_LOG_LEVEL", err)
	}

	adapter, err := New(ctx, cfg, append([]Option{WithLogger(logger)}, opts...)...)
	if err != nil {
		return nil, err
	}

	return &LambdaAdapter{
		Adapter:        adapter,
		isLambda:       IsLambdaEnvironment(),
		lambdaMemoryMB: memoryMB,
	}, nil
}

// lambdaHTTPClient sizes the connection pool by the function's memory
func lambdaHTTPClient(memoryMB int, timeout time.Duration) *http.Client {
	maxConns := 20
	switch {
	case memoryMB > 0 && memoryMB <= 512:
		maxConns = 5
	case memoryMB > 0 && memoryMB <= 1024:
		maxConns = 10
	}
	if timeout <= 0 {
		timeout = session.DefaultTimeout
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        maxConns,
			MaxIdleConnsPerHost: maxConns,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// HandleEvent dispatches a Lambda event to Count, Retrieve or Search
func (l *LambdaAdapter) HandleEvent(ctx context.Context, ev Event) (*EventResponse, error) {
	ctx, cancel := l.WithLambdaTimeout(ctx)
	defer cancel()

	l.logger.Debug("handling event",
		zap.String("operation", ev.Operation),
		zap.String("structure", ev.Request.Structure),
		zap.Int64("remaining_ms", GetRemainingTimeMillis(ctx)),
	)

	switch ev.Operation {
	case OperationCount:
		n, err := l.Count(ctx, ev.Request)
		if err != nil {
			return nil, err
		}
		return &EventResponse{Count: &n}, nil
	case OperationRetrieve:
		record, err := l.Retrieve(ctx, ev.Request)
		if err != nil {
			return nil, err
		}
		return &EventResponse{Record: record}, nil
	case OperationSearch, "":
		list, err := l.Search(ctx, ev.Request)
		if err != nil {
			return nil, err
		}
		return &EventResponse{Records: list}, nil
	default:
		return nil, errors.Validation("lambda", "unsupported operation %q", ev.Operation)
	}
}

// WithLambdaTimeout derives a context that ends one second before the invocation deadline
func (l *LambdaAdapter) WithLambdaTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return context.WithCancel(ctx)
	}
	return context.WithDeadline(ctx, deadline.Add(-1*time.Second))
}

// IsLambda reports whether the adapter was created inside Lambda
func (l *LambdaAdapter) IsLambda() bool {
	return l.isLambda
}

// MemoryMB returns the function memory detected at creation
func (l *LambdaAdapter) MemoryMB() int {
	return l.lambdaMemoryMB
}

// Lambda environment helper functions

// IsLambdaEnvironment detects if running in AWS Lambda
func IsLambdaEnvironment() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

// GetLambdaMemoryMB returns the allocated memory in MB
func GetLambdaMemoryMB() int {
	memStr := os.Getenv("AWS_LAMBDA_FUNCTION_MEMORY_SIZE")
	if memStr == "" {
		return 0
	}

	mem, err := strconv.Atoi(memStr)
	if err != nil {
		return 0
	}

	return mem
}

// GetRemainingTimeMillis returns milliseconds until the context deadline, or -1 without one
func GetRemainingTimeMillis(ctx context.Context) int64 {
	deadline, ok := ctx.Deadline()
	if !ok {
		return -1
	}

	return time.Until(deadline).Milliseconds()
}
