package producer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RequiresBrokers(t *testing.T) {
	_, err := New(Config{Brokers: "  "}, nil)
	require.Error(t, err)
}

func TestToRecord(t *testing.T) {
	r := toRecord(&Message{
		Topic:   "audit.archive",
		Key:     []byte("k"),
		Value:   []byte("v"),
		Headers: map[string]string{"action": "created"},
	})
	assert.Equal(t, "audit.archive", r.Topic)
	assert.Equal(t, []byte("k"), r.Key)
	require.Len(t, r.Headers, 1)
	assert.Equal(t, "action", r.Headers[0].Key)
	assert.Equal(t, []byte("created"), r.Headers[0].Value)
}
