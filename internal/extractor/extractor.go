package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/yuanxie/sed-dl/internal/auth"
	"github.com/yuanxie/sed-dl/internal/config"
	"github.com/yuanxie/sed-dl/internal/utils"
)

// Extractor turns a resource ID into the list of files it contains.
type Extractor interface {
	Extract(ctx context.Context, resourceID string) ([]utils.DownloadItem, error)
}

// Env bundles what every extractor needs: the HTTP client, the auth
// resolver, the external config and the user's per-run choices.
type Env struct {
	Client      utils.HTTPDoer
	Auth        *auth.Resolver
	Config      *config.External
	Quality     string // "best", "worst" or a numeric height like "720"
	AudioFormat string
	Flat        bool
}

// New returns the extractor for a resource kind.
func New(kind utils.ResourceKind, env *Env) (Extractor, error) {
	switch kind {
	case utils.KindCourse:
		return newCourseExtractor(env), nil
	case utils.KindClassroom:
		return newClassroomExtractor(env), nil
	case utils.KindTextbook:
		return newTextbookExtractor(env), nil
	default:
		return nil, fmt.Errorf("%w: %q", utils.ErrUnsupportedKind, kind)
	}
}

// IsResourceID reports whether s looks like a platform resource ID (a UUID).
func IsResourceID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// ParseResourceURL maps a share URL onto a resource kind and ID using the
// configured endpoint table: the path fragment selects the endpoint, the
// endpoint names the query parameter holding the ID.
func ParseResourceURL(cfg *config.External, rawURL string) (utils.ResourceKind, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", utils.ErrParse, err)
	}
	for pathKey, ep := range cfg.APIEndpoints {
		if !strings.Contains(u.Path, pathKey) {
			continue
		}
		id := u.Query().Get(ep.IDParam)
		if id == "" || !IsResourceID(id) {
			continue
		}
		kind, err := kindForExtractor(ep.Extractor)
		if err != nil {
			return "", "", err
		}
		log.Debug().Str("op", "extractor/dispatch").Msgf("url matched endpoint %q, id %s", pathKey, id)
		return kind, id, nil
	}
	return "", "", fmt.Errorf("%w: no endpoint matches %q", utils.ErrUnsupportedKind, rawURL)
}

func kindForExtractor(name string) (utils.ResourceKind, error) {
	switch name {
	case config.ExtractorCourse:
		return utils.KindCourse, nil
	case config.ExtractorSyncClassroom:
		return utils.KindClassroom, nil
	case config.ExtractorTextbook:
		return utils.KindTextbook, nil
	default:
		return "", fmt.Errorf("%w: extractor %q", utils.ErrUnsupportedKind, name)
	}
}

// fetchJSON renders the template against each configured server prefix in
// order and decodes the first successful response. Auth failures abort the
// failover immediately since every mirror shares the credential check.
func (e *Env) fetchJSON(ctx context.Context, templateKey, id string, v any) error {
	var lastErr error
	for _, prefix := range e.Config.Prefixes() {
		reqURL, err := e.Config.ExpandTemplate(templateKey, prefix, id)
		if err != nil {
			return err
		}
		resp, err := e.Auth.Do(ctx, e.Client, reqURL)
		if err != nil {
			if isAuthErr(err) {
				return err
			}
			log.Warn().Str("op", "extractor/fetch").Msgf("server %q failed: %v", prefix, err)
			lastErr = err
			continue
		}
		body, status := readAll(resp)
		switch {
		case status == http.StatusNotFound:
			lastErr = fmt.Errorf("%w: %s", utils.ErrNotFound, id)
			continue
		case status != http.StatusOK:
			lastErr = fmt.Errorf("%w: server %q returned %d", utils.ErrNetwork, prefix, status)
			continue
		}
		if err := json.Unmarshal(body, v); err != nil {
			return fmt.Errorf("%w: %v", utils.ErrParse, err)
		}
		return nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: no server prefixes configured", utils.ErrNetwork)
	}
	return lastErr
}

func isAuthErr(err error) bool {
	return errors.Is(err, utils.ErrAuthRequired) || errors.Is(err, utils.ErrAuthInvalid)
}

func readAll(resp *http.Response) ([]byte, int) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode
	}
	return body, resp.StatusCode
}
