package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKind(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindNetworkFailure, "Failed to load balance", cause)

	assert.True(t, errors.Is(err, ErrNetworkFailure))
	assert.False(t, errors.Is(err, ErrInvalidInput))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "Failed to load balance: connection refused", err.Error())
}

func TestKindOf_WrappedWithFmt(t *testing.T) {
	err := fmt.Errorf("refresh holdings: %w", New(KindNotConnected, "Please connect your wallet first"))

	assert.Equal(t, KindNotConnected, KindOf(err))
	assert.Equal(t, "Please connect your wallet first", Message(err))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "", Message(nil))
	assert.Equal(t, "plain", Message(errors.New("plain")))
	assert.Equal(t, "Amount must be greater than 0", Message(Invalidf("Amount must be greater than %d", 0)))
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "exhausted", KindExhausted.String())
	assert.Equal(t, "capability_unsupported", KindCapabilityUnsupported.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
