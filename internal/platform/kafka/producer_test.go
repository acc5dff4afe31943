package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certregistry/internal/platform/config"
)

func TestHeaders(t *testing.T) {
	t.Run("sorted by key", func(t *testing.T) {
		got := headers(map[string]string{"event_type": "created", "aggregate_type": "certificate"})
		require.Len(t, got, 2)
		assert.Equal(t, "aggregate_type", got[0].Key)
		assert.Equal(t, "event_type", got[1].Key)
		assert.Equal(t, []byte("created"), got[1].Value)
	})

	t.Run("empty map yields no headers", func(t *testing.T) {
		assert.Nil(t, headers(nil))
	})
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer(config.KafkaConfig{Topic: "cert-events"})
	require.Error(t, err)
}
