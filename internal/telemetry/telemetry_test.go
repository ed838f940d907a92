package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "renderer"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestParseSampleRate(t *testing.T) {
	assert.Equal(t, 0.1, ParseSampleRate(""))
	assert.Equal(t, 0.5, ParseSampleRate(" 0.5 "))
	assert.Equal(t, 0.1, ParseSampleRate("2"))
	assert.Equal(t, 0.1, ParseSampleRate("abc"))
}
