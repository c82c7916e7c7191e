package shm

import (
	"testing"

	"github.com/codebot/rmw-zenoh/bufpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopProvider_NeverServes(t *testing.T) {
	var p NoopProvider
	buf, ok := p.Allocate(1 << 20)
	assert.False(t, ok)
	assert.Nil(t, buf.Data)
}

func TestPooledProvider_BelowThresholdDeclines(t *testing.T) {
	pool := bufpool.New(1<<20, nil)
	p := NewPooledProvider(pool, 1024)

	_, ok := p.Allocate(512)
	assert.False(t, ok)
}

func TestPooledProvider_AtOrAboveThresholdServes(t *testing.T) {
	pool := bufpool.New(1<<20, nil)
	p := NewPooledProvider(pool, 1024)

	buf, ok := p.Allocate(2048)
	require.True(t, ok)
	assert.GreaterOrEqual(t, len(buf.Data), 2048)

	p.Release(buf)
	assert.LessOrEqual(t, pool.Outstanding(), int64(1<<20))
}

func TestPooledProvider_DeclinesWhenPoolExhausted(t *testing.T) {
	pool := bufpool.New(1024, nil)
	p := NewPooledProvider(pool, 0)

	_, ok := p.Allocate(2048)
	assert.False(t, ok)
}
