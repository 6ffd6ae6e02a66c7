package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgeErrorKinds(t *testing.T) {
	tests := map[string]struct {
		err   error
		check func(error) bool
	}{
		"validation":    {Validation("search", "invalid structure %q", "Foo"), IsValidation},
		"query":         {Query("parse", "missing '='"), IsQuery},
		"authorization": {New(ErrAuthorization, "ListTasks", "not authorized"), IsAuthorization},
		"transport":     {Wrap(ErrTransport, "ListTasks", "request failed", errors.New("dial tcp")), IsTransport},
		"ambiguous":     {New(ErrAmbiguousResult, "retrieve", "multiple results"), IsAmbiguousResult},
		"remote":        {Remote("DescribeTasks", &RemoteAPIError{Type: "ClusterNotFoundException"}), IsRemoteAPI},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))

			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.True(t, tt.check(wrapped), "kind must survive wrapping")
		})
	}

	assert.False(t, IsQuery(Validation("search", "x")))
	assert.False(t, IsRemoteAPI(New(ErrTransport, "x", "y")))
}

func TestBridgeErrorMessage(t *testing.T) {
	err := Wrap(ErrTransport, "ListClusters", "request failed", errors.New("connection refused"))
	assert.Equal(t, "ecsbridge: ListClusters: request failed: connection refused", err.Error())

	bare := &BridgeError{Kind: ErrQuery}
	assert.Equal(t, "ecsbridge: query error", bare.Error())
}

func TestRemoteAPIErrorIsPreserved(t *testing.T) {
	err := fmt.Errorf("search: %w", Remote("DescribeClusters", &RemoteAPIError{
		Type:    "InvalidParameterException",
		Message: "bad arn",
	}))

	remote, ok := AsRemoteAPIError(err)
	require.True(t, ok)
	assert.Equal(t, "InvalidParameterException", remote.Type)
	assert.Equal(t, "bad arn", remote.Message)
	assert.Contains(t, err.Error(), "InvalidParameterException")
}

func TestWithStructure(t *testing.T) {
	err := WithStructure(Validation("search", "bad field"), "Tasks")

	var be *BridgeError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "Tasks", be.Structure)

	plain := errors.New("plain")
	assert.Same(t, plain, WithStructure(plain, "Tasks"))
}
