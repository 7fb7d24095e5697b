package cpqlorm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTenantContextRoundTrip(t *testing.T) {
	ctx := WithTenant(context.Background(), "acme")
	tenant, ok := CurrentTenant(ctx)
	require.True(t, ok)
	require.Equal(t, "acme", tenant)
}

func TestTenantContextAbsent(t *testing.T) {
	_, ok := CurrentTenant(context.Background())
	require.False(t, ok)
}

func TestWithoutTenantClearsAmbientTenant(t *testing.T) {
	ctx := WithTenant(context.Background(), "acme")
	ctx = WithoutTenant(ctx)
	_, ok := CurrentTenant(ctx)
	require.False(t, ok)
}
