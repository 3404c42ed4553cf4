package packager

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestPayloadRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		bundle := rapid.SliceOf(rapid.Byte()).Draw(t, "bundle")

		payload, err := EncodePayload(bundle)
		if err != nil {
			t.Fatalf("EncodePayload() error = %v", err)
		}
		got, err := DecodePayload(payload)
		if err != nil {
			t.Fatalf("DecodePayload() error = %v", err)
		}
		if !bytes.Equal(got, bundle) {
			t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(bundle))
		}
	})
}

func TestPayloadRoundTrip_Edges(t *testing.T) {
	large := make([]byte, 4<<20)
	_, err := rand.Read(large)
	require.NoError(t, err)

	tests := []struct {
		name   string
		bundle []byte
	}{
		{name: "empty", bundle: []byte{}},
		{name: "nil", bundle: nil},
		{name: "text", bundle: []byte("module.exports = { deny: function() { return [] } }")},
		{name: "large random", bundle: large},
		{name: "large repetitive", bundle: bytes.Repeat([]byte("policy "), 1<<20)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := EncodePayload(tt.bundle)
			require.NoError(t, err)
			got, err := DecodePayload(payload)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(tt.bundle, got))
		})
	}
}

func TestCompress_Deterministic(t *testing.T) {
	a, err := Compress([]byte("same input"))
	require.NoError(t, err)
	b, err := Compress([]byte("same input"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDecode_Invalid(t *testing.T) {
	_, err := DecodePayload("not base64 !!")
	assert.Error(t, err)

	_, err = DecodePayload(Encode([]byte("not gzip")))
	assert.Error(t, err)
}
