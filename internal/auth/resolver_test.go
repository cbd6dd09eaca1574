package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuanxie/sed-dl/internal/utils"
)

func newTestClient() *utils.HTTPClient {
	return utils.NewHTTPClient(utils.HTTPClientConfig{})
}

func isolateConfig(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ACCESS_TOKEN", "")
}

func TestSign(t *testing.T) {
	isolateConfig(t)
	r := NewResolver("tok", nil)
	assert.Equal(t, "https://x.example/a.json?accessToken=tok", r.Sign("https://x.example/a.json"))

	empty := NewResolver("", nil)
	assert.Equal(t, "https://x.example/a.json", empty.Sign("https://x.example/a.json"))
}

func TestDoOptimisticFirstTry(t *testing.T) {
	isolateConfig(t)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
		assert.Equal(t, "tok", req.URL.Query().Get("accessToken"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewResolver("tok", nil)
	resp, err := r.Do(context.Background(), newTestClient(), srv.URL+"/data.json")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, int32(1), calls.Load())
}

func TestDoRenewsOnceOnRejection(t *testing.T) {
	isolateConfig(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Query().Get("accessToken") == "fresh" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	prompts := 0
	r := NewResolver("stale", func() (string, bool, error) {
		prompts++
		return "fresh", false, nil
	})
	resp, err := r.Do(context.Background(), newTestClient(), srv.URL+"/data.json")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 1, prompts)
	assert.Equal(t, "fresh", r.Token())
	assert.Equal(t, "prompt", r.Source())
}

func TestDoFailsWithoutPrompt(t *testing.T) {
	isolateConfig(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	r := NewResolver("", nil)
	_, err := r.Do(context.Background(), newTestClient(), srv.URL+"/data.json")
	assert.ErrorIs(t, err, utils.ErrAuthRequired)
}

func TestRenewRejectsInvalidCandidates(t *testing.T) {
	isolateConfig(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Query().Get("accessToken") == "good" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	attempts := []string{"bad1", "bad2", "good"}
	i := 0
	r := NewResolver("", func() (string, bool, error) {
		tok := attempts[i]
		i++
		return tok, false, nil
	})
	require.NoError(t, r.Renew(context.Background(), newTestClient(), srv.URL+"/probe"))
	assert.Equal(t, 3, i)
	assert.Equal(t, "good", r.Token())
}

func TestRenewSkipsPromptWhenTokenAlreadyValid(t *testing.T) {
	isolateConfig(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	prompted := false
	r := NewResolver("already-good", func() (string, bool, error) {
		prompted = true
		return "", false, nil
	})
	require.NoError(t, r.Renew(context.Background(), newTestClient(), srv.URL+"/probe"))
	assert.False(t, prompted)
}
