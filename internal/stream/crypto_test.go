package stream

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuanxie/sed-dl/internal/utils"
)

func pkcs7Pad(data []byte, blockSize int) []byte {
	pad := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(pad)}, pad)...)
}

func ecbEncrypt(t *testing.T, plaintext, key []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	for i := 0; i < len(padded); i += aes.BlockSize {
		block.Encrypt(out[i:i+aes.BlockSize], padded[i:i+aes.BlockSize])
	}
	return out
}

func TestDecryptKeyECBRoundTrip(t *testing.T) {
	sign := []byte("0123456789abcdef")
	key := []byte("secretsegmentkey")

	got, err := decryptKeyECB(ecbEncrypt(t, key, sign), sign)
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestDecryptSegmentCBCRoundTrip(t *testing.T) {
	key := []byte("0000111122223333")
	iv := []byte("aaaabbbbccccdddd")
	plaintext := []byte("ts segment payload")

	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	encrypted := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(encrypted, padded)

	got, err := decryptSegmentCBC(encrypted, key, iv)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestPKCS7UnpadRejectsGarbage(t *testing.T) {
	_, err := pkcs7Unpad([]byte{1, 2, 3, 17}, 16)
	assert.Error(t, err)
	_, err = pkcs7Unpad([]byte{1, 2, 2, 3}, 16)
	assert.Error(t, err)
	_, err = pkcs7Unpad(nil, 16)
	assert.Error(t, err)
}

func TestParseIV(t *testing.T) {
	iv, err := parseIV("0x000102030405060708090a0b0c0d0e0f")
	require.NoError(t, err)
	assert.Len(t, iv, 16)
	assert.Equal(t, byte(0x0f), iv[15])

	_, err = parseIV("zz")
	assert.ErrorIs(t, err, utils.ErrParse)
}

func TestFetchKeyHandshake(t *testing.T) {
	const nonce = "nonce-123"
	segKey := []byte("the-segment-key!")

	mux := http.NewServeMux()
	mux.HandleFunc("/keys/mykey/signs", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"nonce": nonce})
	})
	mux.HandleFunc("/keys/mykey", func(w http.ResponseWriter, r *http.Request) {
		sum := md5.Sum([]byte(nonce + "mykey"))
		wantSign := hex.EncodeToString(sum[:])[:16]
		if r.URL.Query().Get("nonce") != nonce || r.URL.Query().Get("sign") != wantSign {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		wrapped := ecbEncrypt(t, segKey, []byte(wantSign))
		json.NewEncoder(w).Encode(map[string]string{"key": base64.StdEncoding.EncodeToString(wrapped)})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	got, err := fetchKey(context.Background(), utils.NewHTTPClient(utils.HTTPClientConfig{}), srv.URL+"/keys/mykey")
	require.NoError(t, err)
	assert.Equal(t, segKey, got)
}

func TestFetchKeyMissingNonce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	_, err := fetchKey(context.Background(), utils.NewHTTPClient(utils.HTTPClientConfig{}), srv.URL+"/keys/k")
	assert.ErrorIs(t, err, utils.ErrParse)
}
