package telemetry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewResource(t *testing.T) {
	t.Parallel()

	res, err := newResource("assetcache-test")
	require.NoError(t, err)

	value, ok := res.Set().Value("service.name")
	require.True(t, ok)
	require.Equal(t, "assetcache-test", value.AsString())
}
