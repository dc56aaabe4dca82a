package sayaerrors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCodeAndName(t *testing.T) {
	assert.Equal(t, "V1", GetErrorCode(ErrVTransactionRejected))
	assert.Equal(t, "TransactionRejected", GetErrorName(ErrVTransactionRejected))
	assert.Equal(t, "V1_TransactionRejected", GetErrorCodeWithName(ErrVTransactionRejected))
}

func TestWrappedErrorsClassify(t *testing.T) {
	wrapped := fmt.Errorf("transaction 0x12: %w", ErrVTransactionTimeout)
	assert.Equal(t, ErrVTransactionTimeout, Classify(wrapped))
	assert.Equal(t, "V3", GetErrorCode(wrapped))
	assert.Equal(t, "TransactionTimeout", GetErrorName(wrapped))

	assert.Nil(t, Classify(fmt.Errorf("plain")))
	assert.Equal(t, "", GetErrorCode(fmt.Errorf("plain")))
	assert.Equal(t, "No Error", GetErrorName(nil))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(fmt.Errorf("head: %w", ErrCProviderFailed)))
	assert.False(t, IsTransient(ErrVTransactionReverted))
}
