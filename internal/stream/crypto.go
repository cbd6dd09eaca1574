package stream

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/yuanxie/sed-dl/internal/utils"
)

// fetchKey runs the platform's key handshake: ask <keyURL>/signs for a
// nonce, sign it with the first 16 hex characters of md5(nonce + key
// filename), then exchange nonce+sign for a base64 key blob which is itself
// AES-ECB encrypted with the sign bytes.
func fetchKey(ctx context.Context, client utils.HTTPDoer, keyURL string) ([]byte, error) {
	var signs struct {
		Nonce string `json:"nonce"`
	}
	if err := getJSON(ctx, client, keyURL+"/signs", &signs); err != nil {
		return nil, fmt.Errorf("fetching key nonce: %w", err)
	}
	if signs.Nonce == "" {
		return nil, fmt.Errorf("%w: key server response has no nonce", utils.ErrParse)
	}

	u, err := url.Parse(keyURL)
	if err != nil {
		return nil, err
	}
	keyName := path.Base(u.Path)
	sum := md5.Sum([]byte(signs.Nonce + keyName))
	sign := hex.EncodeToString(sum[:])[:16]
	log.Debug().Str("op", "stream/key").Msgf("computed sign %s for key %s", sign, keyName)

	sep := "?"
	if strings.Contains(keyURL, "?") {
		sep = "&"
	}
	var keyResp struct {
		Key string `json:"key"`
	}
	if err := getJSON(ctx, client, fmt.Sprintf("%s%snonce=%s&sign=%s", keyURL, sep, signs.Nonce, sign), &keyResp); err != nil {
		return nil, fmt.Errorf("fetching wrapped key: %w", err)
	}
	if keyResp.Key == "" {
		return nil, fmt.Errorf("%w: key server response has no key", utils.ErrParse)
	}
	wrapped, err := base64.StdEncoding.DecodeString(keyResp.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: key is not valid base64", utils.ErrParse)
	}
	return decryptKeyECB(wrapped, []byte(sign))
}

// decryptKeyECB unwraps the segment key with AES-128-ECB using the sign
// bytes as the key, then strips PKCS7 padding.
func decryptKeyECB(wrapped, sign []byte) ([]byte, error) {
	block, err := aes.NewCipher(sign)
	if err != nil {
		return nil, err
	}
	if len(wrapped)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("wrapped key length %d is not block aligned", len(wrapped))
	}
	out := make([]byte, len(wrapped))
	for i := 0; i < len(wrapped); i += aes.BlockSize {
		block.Decrypt(out[i:i+aes.BlockSize], wrapped[i:i+aes.BlockSize])
	}
	return pkcs7Unpad(out, aes.BlockSize)
}

// decryptSegmentCBC decrypts one media segment with AES-128-CBC and strips
// PKCS7 padding.
func decryptSegmentCBC(data, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("iv length %d, want %d", len(iv), aes.BlockSize)
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("segment length %d is not block aligned", len(data))
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	return pkcs7Unpad(out, aes.BlockSize)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty plaintext")
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > blockSize || pad > len(data) {
		return nil, fmt.Errorf("invalid padding byte %d", pad)
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, fmt.Errorf("inconsistent padding")
		}
	}
	return data[:len(data)-pad], nil
}

// parseIV decodes an EXT-X-KEY IV attribute (hex, with or without 0x).
func parseIV(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	iv, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid iv hex: %v", utils.ErrParse, err)
	}
	return iv, nil
}

func getJSON(ctx context.Context, client utils.HTTPDoer, rawURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", utils.ErrNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d from %s", utils.ErrNetwork, resp.StatusCode, rawURL)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", utils.ErrNetwork, err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", utils.ErrParse, err)
	}
	return nil
}
