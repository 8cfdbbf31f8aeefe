package main

import (
	"encoding/base64"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMessage(t *testing.T) {
	delta := []byte(`{"sid":"x","ops":[]}`)
	message := redis.XMessage{
		ID: "1-0",
		Values: map[string]interface{}{
			"documentId": "doc1",
			"delta":      base64.StdEncoding.EncodeToString(delta),
			"userId":     "alice",
		},
	}

	req, err := decodeMessage(message)
	require.NoError(t, err)
	assert.Equal(t, "doc1", req.DocumentID)
	assert.Equal(t, delta, req.Delta)
	assert.Equal(t, "alice", req.UserID)
}

func TestDecodeMessageOptionalUser(t *testing.T) {
	message := redis.XMessage{
		Values: map[string]interface{}{
			"documentId": "doc1",
			"delta":      base64.StdEncoding.EncodeToString([]byte("{}")),
		},
	}

	req, err := decodeMessage(message)
	require.NoError(t, err)
	assert.Empty(t, req.UserID)
}

func TestDecodeMessageRejectsMalformed(t *testing.T) {
	cases := []map[string]interface{}{
		{},
		{"documentId": "doc1"},
		{"documentId": "", "delta": "YQ=="},
		{"documentId": "doc1", "delta": "not base64!"},
	}
	for _, values := range cases {
		_, err := decodeMessage(redis.XMessage{Values: values})
		assert.Error(t, err)
	}
}
