package chainclient

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/stretchr/testify/assert"
)

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(ethereum.NotFound))
	assert.True(t, isNotFound(errors.Join(errors.New("wrap"), ethereum.NotFound)))
	assert.False(t, isNotFound(errors.New("some other failure")))
}

func TestIsMethodNotFound(t *testing.T) {
	cases := []struct {
		msg  string
		want bool
	}{
		{"the method eth_getBlockReceipts does not exist/is not available", false},
		{"Method not found", true},
		{"method eth_getBlockReceipts not supported", true},
		{"unknown method eth_getBlockReceipts", true},
		{"connection refused", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, isMethodNotFound(errors.New(c.msg)), c.msg)
	}
}
