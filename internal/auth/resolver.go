package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/yuanxie/sed-dl/internal/config"
	"github.com/yuanxie/sed-dl/internal/utils"
)

// PromptFunc asks the user for a fresh token. It returns the token and
// whether it should be persisted to the config file. Returning an error
// aborts the renewal.
type PromptFunc func() (token string, save bool, err error)

// Resolver holds the access token for a run. Requests go out optimistically
// with whatever token is cached (possibly none); an auth failure triggers a
// single renewal through the prompt collaborator and one retry.
type Resolver struct {
	mu      sync.RWMutex
	renewMu sync.Mutex
	token   string
	source  string
	prompt  PromptFunc
}

// NewResolver resolves the starting token by precedence (flag, environment,
// config file) and remembers its provenance. prompt may be nil for
// non-interactive runs.
func NewResolver(flagToken string, prompt PromptFunc) *Resolver {
	token, source := config.ResolveToken(flagToken)
	return &Resolver{token: token, source: source, prompt: prompt}
}

func (r *Resolver) Token() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.token
}

// Source reports where the current token came from.
func (r *Resolver) Source() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.source
}

// Sign appends the accessToken query parameter when a token is cached.
// Without one the URL passes through untouched.
func (r *Resolver) Sign(rawURL string) string {
	tok := r.Token()
	if tok == "" {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set("accessToken", tok)
	u.RawQuery = q.Encode()
	return u.String()
}

// IsAuthStatus reports whether a status code means the server rejected our
// credentials.
func IsAuthStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

// classify distinguishes a missing credential from a rejected one.
func (r *Resolver) classify() error {
	if r.Token() == "" {
		return utils.ErrAuthRequired
	}
	return utils.ErrAuthInvalid
}

// Do issues a GET against rawURL with the token attached, renewing the token
// and retrying exactly once when the server answers 401 or 403. The caller
// owns the response body.
func (r *Resolver) Do(ctx context.Context, client utils.HTTPDoer, rawURL string) (*http.Response, error) {
	resp, err := r.get(ctx, client, rawURL)
	if err != nil {
		return nil, err
	}
	if !IsAuthStatus(resp.StatusCode) {
		return resp, nil
	}
	resp.Body.Close()
	cause := r.classify()
	if err := r.Renew(ctx, client, rawURL); err != nil {
		return nil, fmt.Errorf("%w: %v", cause, err)
	}
	resp, err = r.get(ctx, client, rawURL)
	if err != nil {
		return nil, err
	}
	if IsAuthStatus(resp.StatusCode) {
		resp.Body.Close()
		return nil, utils.ErrAuthInvalid
	}
	return resp, nil
}

func (r *Resolver) get(ctx context.Context, client utils.HTTPDoer, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.Sign(rawURL), nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrNetwork, err)
	}
	return resp, nil
}

// Renew asks the prompt collaborator for a new token, validates it with a
// HEAD probe against probeURL, and caches it. Up to three attempts before
// giving up.
func (r *Resolver) Renew(ctx context.Context, client utils.HTTPDoer, probeURL string) error {
	if r.prompt == nil {
		return fmt.Errorf("no token source available")
	}
	r.renewMu.Lock()
	defer r.renewMu.Unlock()
	// Another worker may have renewed while we waited on the lock.
	if tok := r.Token(); tok != "" && r.probe(ctx, client, probeURL, tok) {
		return nil
	}
	for attempt := 0; attempt < 3; attempt++ {
		token, save, err := r.prompt()
		if err != nil {
			return fmt.Errorf("token prompt aborted: %w", err)
		}
		if token == "" {
			continue
		}
		if !r.probe(ctx, client, probeURL, token) {
			log.Warn().Str("op", "auth/renew").Msg("entered token failed validation probe")
			continue
		}
		r.mu.Lock()
		r.token = token
		r.source = "prompt"
		r.mu.Unlock()
		if save {
			if err := config.SaveToken(token); err != nil {
				log.Error().Str("op", "auth/renew").Err(err).Msg("failed to persist token")
			}
		}
		return nil
	}
	return fmt.Errorf("no valid token entered")
}

// probe sends a HEAD request with the candidate token attached. Anything
// other than 401/403 counts as valid; a transport failure does not.
func (r *Resolver) probe(ctx context.Context, client utils.HTTPDoer, probeURL, token string) bool {
	u, err := url.Parse(probeURL)
	if err != nil {
		return false
	}
	q := u.Query()
	q.Set("accessToken", token)
	u.RawQuery = q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u.String(), nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Warn().Str("op", "auth/probe").Err(err).Msg("token probe request failed")
		return false
	}
	defer resp.Body.Close()
	log.Debug().Str("op", "auth/probe").Msgf("probe status %d", resp.StatusCode)
	return !IsAuthStatus(resp.StatusCode)
}
