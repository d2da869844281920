package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaihank/pii-masker/internal/logger"
	"github.com/raaihank/pii-masker/internal/stats"
)

func TestKeySpace(t *testing.T) {
	k := keySpace{prefix: "pii-masker"}
	assert.Equal(t, "pii-masker:total", k.total())
	assert.Equal(t, "pii-masker:kinds", k.kinds())
	assert.Equal(t, "pii-masker:kind:email", k.kind("email"))

	bare := keySpace{}
	assert.Equal(t, "total", bare.total())
	assert.Equal(t, "kind:ssn", bare.kind("ssn"))
}

func TestParseCounts(t *testing.T) {
	assert.Equal(t, stats.KindCounts{Seen: 7, Masked: 3}, parseCounts(map[string]string{"seen": "7", "masked": "3"}))
	assert.Equal(t, stats.KindCounts{Seen: 2}, parseCounts(map[string]string{"seen": "2", "masked": "x"}))
	assert.Equal(t, stats.KindCounts{}, parseCounts(nil))
}

func TestNewRedisRecorderBadURL(t *testing.T) {
	_, err := NewRedisRecorder(&Config{RedisURL: "://nope"}, logger.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse Redis URL")
}
