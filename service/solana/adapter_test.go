package solana

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRPCClient_ImplementsInterface(t *testing.T) {
	var c RPCClient = NewRPCClient("http://127.0.0.1:8899")
	assert.NotNil(t, c)

	rc, ok := c.(*realRPCClient)
	assert.True(t, ok)
	assert.NotNil(t, rc.client)
}

var _ RPCClient = (*MockRPCClient)(nil)
