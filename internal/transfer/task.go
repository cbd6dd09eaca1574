package transfer

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/yuanxie/sed-dl/internal/stream"
	"github.com/yuanxie/sed-dl/internal/utils"
)

// Size tolerance applied to merged videos only; segment joins legitimately
// differ from the API's estimate.
const videoSizeTolerance = 0.01

type rateLimitedError struct {
	wait time.Duration
}

func (e *rateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.wait)
}

func (e *rateLimitedError) Is(target error) bool {
	return target == utils.ErrRateLimited
}

type validation int

const (
	fileValid validation = iota
	fileInvalid
	fileNoInfo
)

// checkLocalFile validates an existing file against the item's published
// size and checksum. Videos get a 1% size tolerance; everything else must
// match exactly. MD5 is consulted only when the API gave no size.
func checkLocalFile(path string, item *utils.DownloadItem) (validation, string) {
	info, err := os.Stat(path)
	if err != nil {
		return fileInvalid, "file missing"
	}
	actual := info.Size()
	if actual == 0 {
		return fileInvalid, "file is empty"
	}
	if item.Size > 0 {
		var tolerance int64
		if item.Media == utils.MediaVideo {
			tolerance = int64(float64(item.Size) * videoSizeTolerance)
		}
		diff := actual - item.Size
		if diff < 0 {
			diff = -diff
		}
		if diff > tolerance {
			return fileInvalid, fmt.Sprintf("size mismatch (want %d, have %d)", item.Size, actual)
		}
		return fileValid, ""
	}
	if item.MD5 != "" {
		sum, err := fileMD5(path)
		if err != nil {
			return fileInvalid, "unreadable"
		}
		if !equalMD5(sum, item.MD5) {
			return fileInvalid, "md5 mismatch"
		}
		return fileValid, ""
	}
	return fileNoInfo, ""
}

func fileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func equalMD5(a, b string) bool {
	return len(a) == len(b) && (a == b || strings.EqualFold(a, b))
}

// process runs one item end to end: skip check, transfer, verify, finalize.
func (m *Manager) process(ctx context.Context, item *utils.DownloadItem) utils.TransferResult {
	finalPath, err := utils.SecureJoin(m.OutputRoot, item.RelPath)
	if err != nil {
		return utils.TransferResult{Item: *item, Status: utils.StatusFailed, Err: err, Reason: utils.FailureReason(err)}
	}
	unlock := m.lockPath(finalPath)
	defer unlock()

	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		err = fmt.Errorf("%w: %v", utils.ErrFilesystem, err)
		return utils.TransferResult{Item: *item, Status: utils.StatusFailed, Err: err, Reason: utils.FailureReason(err)}
	}

	// Skip check touches only the filesystem.
	if !m.Force {
		if _, err := os.Stat(finalPath); err == nil {
			status, _ := checkLocalFile(finalPath, item)
			if status == fileValid || status == fileNoInfo {
				log.Debug().Str("op", "transfer/task").Msgf("skipping existing %s", item.RelPath)
				return utils.TransferResult{Item: *item, Status: utils.StatusSkipped, Reason: "already downloaded"}
			}
		}
	}

	if err := m.transfer(ctx, item, finalPath); err != nil {
		return utils.TransferResult{Item: *item, Status: utils.StatusFailed, Err: err, Reason: utils.FailureReason(err)}
	}
	return utils.TransferResult{Item: *item, Status: utils.StatusCompleted}
}

func (m *Manager) transfer(ctx context.Context, item *utils.DownloadItem, finalPath string) error {
	if item.Media == utils.MediaVideo {
		resolver := &stream.Resolver{Client: m.Client, Auth: m.Auth, Workers: m.Workers, Retries: m.Retries}
		_, err := resolver.Download(ctx, item.URL, m.Quality, finalPath, func(n int64) {
			m.bytes.Add(n)
		})
		return err
	}
	return m.downloadFile(ctx, item, finalPath)
}

// downloadFile drives the retry loop for a direct download: 429 waits out
// Retry-After, transient network errors back off exponentially, auth
// failures renew the token once per run.
func (m *Manager) downloadFile(ctx context.Context, item *utils.DownloadItem, finalPath string) error {
	tmpPath := finalPath + utils.TempSuffix
	var lastErr error
	for attempt := 0; attempt <= m.Retries; attempt++ {
		err := m.attempt(ctx, item, tmpPath)
		if err == nil {
			return m.finalize(item, tmpPath, finalPath)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err

		var rl *rateLimitedError
		switch {
		case errors.As(err, &rl):
			log.Warn().Str("op", "transfer/task").Msgf("rate limited on %s, waiting %s", item.RelPath, rl.wait)
			if err := sleepCtx(ctx, rl.wait); err != nil {
				return err
			}
		case errors.Is(err, utils.ErrAuthRequired), errors.Is(err, utils.ErrAuthInvalid):
			if renewErr := m.Auth.Renew(ctx, m.Client, item.URL); renewErr != nil {
				return err
			}
		case errors.Is(err, utils.ErrNetwork):
			if err := sleepCtx(ctx, Backoff(attempt)); err != nil {
				return err
			}
		default:
			return err
		}
	}
	return fmt.Errorf("retries exhausted: %w", lastErr)
}

// attempt performs one transfer pass into the .tmp sibling, resuming from
// its current length when the server honors ranges.
func (m *Manager) attempt(ctx context.Context, item *utils.DownloadItem, tmpPath string) error {
	var resumeFrom int64
	if info, err := os.Stat(tmpPath); err == nil {
		resumeFrom = info.Size()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.Auth.Sign(item.URL), nil)
	if err != nil {
		return err
	}
	if resumeFrom > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", resumeFrom))
	}
	resp, err := m.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", utils.ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		if m.Auth.Token() == "" {
			return utils.ErrAuthRequired
		}
		return utils.ErrAuthInvalid
	case resp.StatusCode == http.StatusTooManyRequests:
		wait, ok := ParseRetryAfter(resp.Header.Get("Retry-After"))
		if !ok {
			wait = Backoff(2)
		}
		return &rateLimitedError{wait: wait}
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		log.Warn().Str("op", "transfer/task").Msgf("resume offset %d rejected for %s, restarting", resumeFrom, item.RelPath)
		os.Remove(tmpPath)
		return fmt.Errorf("%w: resume rejected", utils.ErrNetwork)
	case resumeFrom > 0 && resp.StatusCode == http.StatusOK:
		// Server ignored the range; restart from zero.
		resumeFrom = 0
	case resumeFrom > 0 && resp.StatusCode != http.StatusPartialContent:
		return fmt.Errorf("%w: status %d", utils.ErrNetwork, resp.StatusCode)
	case resumeFrom == 0 && resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: status %d", utils.ErrNetwork, resp.StatusCode)
	}

	var out *os.File
	if resumeFrom > 0 {
		out, err = os.OpenFile(tmpPath, os.O_WRONLY|os.O_APPEND, 0o644)
	} else {
		out, err = os.Create(tmpPath)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", utils.ErrFilesystem, err)
	}
	defer out.Close()

	buf := make([]byte, utils.DefaultBufferSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return fmt.Errorf("%w: %v", utils.ErrFilesystem, writeErr)
			}
			m.bytes.Add(int64(n))
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("%w: %v", utils.ErrNetwork, readErr)
		}
	}
}

// finalize verifies the temp file and renames it into place. The rename is
// the only event that makes the item visible at its final path.
func (m *Manager) finalize(item *utils.DownloadItem, tmpPath, finalPath string) error {
	status, reason := checkLocalFile(tmpPath, item)
	if status == fileInvalid {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %s", utils.ErrChecksumMismatch, reason)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("%w: %v", utils.ErrFilesystem, err)
	}
	if !item.Date.IsZero() {
		os.Chtimes(finalPath, item.Date, item.Date)
	}
	return nil
}
