package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/errors"
)

func generateRandomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err, "generating a random key should not return an error")
	return key
}

type samplePayload struct {
	Name    string            `json:"name"`
	Count   int               `json:"count"`
	Cookies map[string]string `json:"cookies,omitempty"`
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload samplePayload
	}{
		{
			name:    "simple payload",
			payload: samplePayload{Name: "u1", Count: 3},
		},
		{
			name: "payload with nested map",
			payload: samplePayload{
				Name:    "u2",
				Count:   0,
				Cookies: map[string]string{"sat": "x", "reese84": "y"},
			},
		},
		{
			name:    "zero value payload",
			payload: samplePayload{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			key := generateRandomKey(t)

			rec, err := Encrypt(tt.payload, key)
			require.NoError(t, err)
			require.NotNil(t, rec)
			assert.Equal(t, EnvelopeVersion, rec.V)
			assert.Equal(t, EnvelopeAlg, rec.Alg)

			var got samplePayload
			require.NoError(t, Decrypt(rec, key, &got))
			assert.Equal(t, tt.payload, got)
		})
	}
}

func TestEncryptGeneratesFreshNonce(t *testing.T) {
	t.Parallel()
	key := generateRandomKey(t)
	payload := samplePayload{Name: "u1"}

	first, err := Encrypt(payload, key)
	require.NoError(t, err)
	second, err := Encrypt(payload, key)
	require.NoError(t, err)

	assert.NotEqual(t, first.IV, second.IV, "each encryption must use a fresh nonce")
	assert.NotEqual(t, first.Data, second.Data, "ciphertext must differ across encryptions")
}

func TestDecryptWrongKeyFails(t *testing.T) {
	t.Parallel()
	key := generateRandomKey(t)
	otherKey := generateRandomKey(t)

	rec, err := Encrypt(samplePayload{Name: "u1"}, key)
	require.NoError(t, err)

	var got samplePayload
	err = Decrypt(rec, otherKey, &got)
	require.Error(t, err, "decrypting with a different key must fail")
	assert.True(t, errors.IsIO(err))
}

// flipBit decodes a base64 field, flips one bit, and re-encodes it.
func flipBit(t *testing.T, encoded string, bit int) string {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	raw[bit/8] ^= 1 << (bit % 8)
	return base64.StdEncoding.EncodeToString(raw)
}

func TestDecryptTamperedEnvelopeFails(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(t *testing.T, rec *EncryptedRecord)
	}{
		{
			name: "bit flipped in tag",
			mutate: func(t *testing.T, rec *EncryptedRecord) {
				t.Helper()
				rec.Tag = flipBit(t, rec.Tag, 0)
			},
		},
		{
			name: "bit flipped in data",
			mutate: func(t *testing.T, rec *EncryptedRecord) {
				t.Helper()
				rec.Data = flipBit(t, rec.Data, 5)
			},
		},
		{
			name: "bit flipped in iv",
			mutate: func(t *testing.T, rec *EncryptedRecord) {
				t.Helper()
				rec.IV = flipBit(t, rec.IV, 3)
			},
		},
		{
			name: "unknown version",
			mutate: func(_ *testing.T, rec *EncryptedRecord) {
				rec.V = 2
			},
		},
		{
			name: "unknown algorithm",
			mutate: func(_ *testing.T, rec *EncryptedRecord) {
				rec.Alg = "aes-128-gcm"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			key := generateRandomKey(t)

			rec, err := Encrypt(samplePayload{Name: "u1", Count: 7}, key)
			require.NoError(t, err)

			tt.mutate(t, rec)

			var got samplePayload
			err = Decrypt(rec, key, &got)
			require.Error(t, err, "tampered envelopes must never decrypt")
			assert.Equal(t, samplePayload{}, got, "no partial plaintext may escape")
		})
	}
}

func TestValidateKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		size    int
		wantErr bool
	}{
		{"exact size", KeySize, false},
		{"one byte short", KeySize - 1, true},
		{"one byte long", KeySize + 1, true},
		{"empty", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateKey(make([]byte, tt.size))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsConfiguration(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseKey(t *testing.T) {
	t.Parallel()

	valid := make([]byte, KeySize)
	for i := range valid {
		valid[i] = byte(i)
	}
	encoded := base64.StdEncoding.EncodeToString(valid)

	tests := []struct {
		name    string
		input   string
		want    []byte
		wantErr bool
	}{
		{"plain base64", encoded, valid, false},
		{"base64 prefix", "base64:" + encoded, valid, false},
		{"surrounding whitespace", " " + encoded + " ", valid, false},
		{"empty", "", nil, true},
		{"prefix only", "base64:", nil, true},
		{"not base64", "%%%not-base64%%%", nil, true},
		{"wrong length", base64.StdEncoding.EncodeToString(valid[:16]), nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseKey(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsConfiguration(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectFormat(t *testing.T) {
	t.Parallel()

	key := generateRandomKey(t)
	rec, err := Encrypt(samplePayload{Name: "u1"}, key)
	require.NoError(t, err)
	envelope, err := json.Marshal(rec)
	require.NoError(t, err)

	tests := []struct {
		name string
		raw  []byte
		want Format
	}{
		{"plaintext object", []byte(`{"cookies":{"sat":"x"},"authMode":"cookie"}`), FormatPlaintext},
		{"empty object", []byte(`{}`), FormatPlaintext},
		{"well-formed envelope", envelope, FormatEncrypted},
		{"partial envelope", []byte(`{"v":1,"alg":"aes-256-gcm","iv":"aaaa"}`), FormatCorrupt},
		{"envelope with unknown alg", []byte(`{"v":1,"alg":"rot13","iv":"a","tag":"b","data":"c"}`), FormatCorrupt},
		{"envelope with empty fields", []byte(`{"v":1,"alg":"aes-256-gcm","iv":"","tag":"","data":""}`), FormatCorrupt},
		{"not json", []byte("!!not-json!!"), FormatCorrupt},
		{"json array", []byte(`["v","alg"]`), FormatCorrupt},
		{"empty input", nil, FormatCorrupt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DetectFormat(tt.raw))
		})
	}
}
