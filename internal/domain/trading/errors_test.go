package trading

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"quota wrapped as auth", fmt.Errorf("%w: %w", ErrAuth, ErrQuotaExceeded), KindAuth},
		{"bare quota", ErrQuotaExceeded, KindAuth},
		{"unauthenticated", fmt.Errorf("call: %w", ErrUnauthenticated), KindAuth},
		{"rate limit", fmt.Errorf("EGW00201: %w", ErrTransientBroker), KindTransientBroker},
		{"rejected", fmt.Errorf("%w: 주문가능금액 부족", ErrOrderRejected), KindOrderRejected},
		{"http 500", fmt.Errorf("%w: status=500", ErrBrokerFailure), KindBrokerFailure},
		{"funds", ErrInsufficientFunds, KindInsufficientFunds},
		{"qty", ErrInsufficientQuantity, KindInsufficientQuantity},
		{"position", ErrNoPosition, KindNoPosition},
		{"data", fmt.Errorf("prior session: %w", ErrDataUnavailable), KindDataUnavailable},
		{"infra", fmt.Errorf("%w: account", ErrInfrastructure), KindInfrastructure},
		{"other", fmt.Errorf("boom"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorKind(tt.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(fmt.Errorf("%w: %w", ErrAuth, ErrNoCredentials)))
	assert.True(t, IsFatal(ErrInfrastructure))
	assert.False(t, IsFatal(ErrOrderRejected))
	assert.False(t, IsFatal(ErrDataUnavailable))
}

func TestParseProfile(t *testing.T) {
	p, err := ParseProfile("mock")
	assert.NoError(t, err)
	assert.Equal(t, ProfilePaper, p)

	p, err = ParseProfile("real")
	assert.NoError(t, err)
	assert.Equal(t, ProfileLive, p)

	_, err = ParseProfile("demo")
	assert.ErrorIs(t, err, ErrInvalidProfile)
}
