package logger

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "abc-123")
	assert.Equal(t, "abc-123", RequestIDFromContext(ctx))
	assert.Equal(t, "", RequestIDFromContext(context.Background()))
}

func TestFromContext_PrefersAttachedLogger(t *testing.T) {
	attached := zerolog.Nop().With().Str("k", "v").Logger().Level(zerolog.InfoLevel)
	ctx := attached.WithContext(context.Background())

	l := FromContext(ctx)
	assert.Equal(t, zerolog.InfoLevel, l.GetLevel())
}

func TestFromContext_FallsBackToBase(t *testing.T) {
	l := FromContext(context.Background())
	assert.NotNil(t, l)
	assert.NotEqual(t, zerolog.Disabled, l.GetLevel())
}
