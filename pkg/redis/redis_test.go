package redis

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigNew(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := Config{URL: "redis://" + mr.Addr(), ReadTimeout: 1, WriteTimeout: 1, DialTimeout: 1}
	client, err := cfg.New()
	require.NoError(t, err)
	defer client.Close()

	assert.True(t, cfg.Enabled())
}

func TestConfigNewNotConfigured(t *testing.T) {
	cfg := Config{}
	_, err := cfg.New()
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Panics(t, func() { cfg.MustNew() })
}

func TestConfigNewInvalidURL(t *testing.T) {
	cfg := Config{URL: "://bad"}
	_, err := cfg.New()
	assert.Error(t, err)
}
