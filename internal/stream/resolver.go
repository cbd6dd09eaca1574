package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/yuanxie/sed-dl/internal/auth"
	"github.com/yuanxie/sed-dl/internal/utils"
)

// Resolver reconstructs a single file from an HLS playlist: variant
// selection on master playlists, the key handshake for encrypted streams,
// a bounded segment pool, and an ordered merge.
type Resolver struct {
	Client  utils.HTTPDoer
	Auth    *auth.Resolver
	Workers int
	Retries int
}

// Result reports what the resolver actually did with a playlist.
type Result struct {
	SelectedHeight int
	FellBack       bool
	Bytes          int64
}

// Download fetches the playlist at manifestURL, picks a variant per the
// quality policy when it is a master, then downloads, decrypts and merges
// every segment into outputPath. The merged file appears atomically via a
// .tmp sibling; completion means every segment arrived and decrypted.
func (r *Resolver) Download(ctx context.Context, manifestURL, policy, outputPath string, progress func(int64)) (*Result, error) {
	res := &Result{}
	body, finalURL, err := r.fetchText(ctx, manifestURL)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(finalURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrParse, err)
	}

	if IsMaster(body) {
		variants, err := ParseMaster(body, base)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", utils.ErrParse, err)
		}
		chosen, fellBack, err := SelectVariant(variants, policy)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", utils.ErrParse, err)
		}
		res.SelectedHeight = chosen.Height
		res.FellBack = fellBack
		log.Debug().Str("op", "stream/resolve").Msgf("selected %dp from %d variants", chosen.Height, len(variants))
		body, finalURL, err = r.fetchText(ctx, chosen.URL)
		if err != nil {
			return nil, err
		}
		if base, err = url.Parse(finalURL); err != nil {
			return nil, fmt.Errorf("%w: %v", utils.ErrParse, err)
		}
	}

	playlist, err := ParseMedia(body, base)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrParse, err)
	}

	var key, iv []byte
	if playlist.KeyURI != "" && playlist.KeyIV != "" {
		if key, err = fetchKey(ctx, r.Client, playlist.KeyURI); err != nil {
			return nil, err
		}
		if iv, err = parseIV(playlist.KeyIV); err != nil {
			return nil, err
		}
	}
	log.Debug().Str("op", "stream/resolve").
		Msgf("%d segments, encrypted=%t", len(playlist.Segments), key != nil)

	tempDir := filepath.Join(filepath.Dir(outputPath), utils.TempDirName, filepath.Base(outputPath)+".segments")
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrFilesystem, err)
	}
	defer os.RemoveAll(tempDir)

	written, err := r.downloadSegments(ctx, playlist.Segments, tempDir, key, iv, progress)
	if err != nil {
		return nil, err
	}
	res.Bytes = written

	if err := r.mergeSegments(ctx, playlist, tempDir, outputPath); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Resolver) downloadSegments(ctx context.Context, segments []string, tempDir string, key, iv []byte, progress func(int64)) (int64, error) {
	workers := r.Workers
	if workers <= 0 {
		workers = 4
	}
	jobCh := make(chan int, len(segments))
	for i := range segments {
		jobCh <- i
	}
	close(jobCh)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var total int64
	failed := 0
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobCh {
				if ctx.Err() != nil {
					return
				}
				n, err := r.downloadSegment(ctx, segments[idx], filepath.Join(tempDir, fmt.Sprintf("%05d.ts", idx)), key, iv)
				mu.Lock()
				if err != nil {
					log.Error().Str("op", "stream/segment").Err(err).Msgf("segment %d failed", idx)
					failed++
				} else {
					total += n
				}
				mu.Unlock()
				if err == nil && progress != nil {
					progress(n)
				}
			}
		}()
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return total, err
	}
	if failed > 0 {
		return total, fmt.Errorf("%w: %d segments failed", utils.ErrNetwork, failed)
	}
	return total, nil
}

func (r *Resolver) downloadSegment(ctx context.Context, segURL, path string, key, iv []byte) (int64, error) {
	var lastErr error
	for attempt := 0; attempt <= r.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}
		data, err := r.fetchBytes(ctx, segURL)
		if err != nil {
			lastErr = err
			continue
		}
		if key != nil {
			if data, err = decryptSegmentCBC(data, key, iv); err != nil {
				lastErr = err
				continue
			}
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return 0, fmt.Errorf("%w: %v", utils.ErrFilesystem, err)
		}
		return int64(len(data)), nil
	}
	return 0, lastErr
}

// mergeSegments concatenates the init segment (when present) and every
// media segment in manifest order into a .tmp sibling, then renames it into
// place. A missing segment file aborts the merge.
func (r *Resolver) mergeSegments(ctx context.Context, playlist *MediaPlaylist, tempDir, outputPath string) error {
	tmpPath := outputPath + utils.TempSuffix
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("%w: %v", utils.ErrFilesystem, err)
	}
	defer out.Close()

	if playlist.MapURI != "" {
		data, err := r.fetchBytes(ctx, playlist.MapURI)
		if err != nil {
			return err
		}
		if _, err := out.Write(data); err != nil {
			return fmt.Errorf("%w: %v", utils.ErrFilesystem, err)
		}
	}
	for i := range playlist.Segments {
		segPath := filepath.Join(tempDir, fmt.Sprintf("%05d.ts", i))
		in, err := os.Open(segPath)
		if err != nil {
			return fmt.Errorf("%w: missing segment %05d", utils.ErrFilesystem, i)
		}
		_, err = io.Copy(out, in)
		in.Close()
		if err != nil {
			return fmt.Errorf("%w: %v", utils.ErrFilesystem, err)
		}
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("%w: %v", utils.ErrFilesystem, err)
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		return fmt.Errorf("%w: %v", utils.ErrFilesystem, err)
	}
	return nil
}

// fetchText loads a playlist, retrying once through the auth resolver when
// the token is rejected.
func (r *Resolver) fetchText(ctx context.Context, rawURL string) (string, string, error) {
	resp, err := r.Auth.Do(ctx, r.Client, rawURL)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("%w: status %d from %s", utils.ErrNetwork, resp.StatusCode, rawURL)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", utils.ErrNetwork, err)
	}
	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return string(body), finalURL, nil
}

func (r *Resolver) fetchBytes(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", utils.ErrNetwork, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrNetwork, err)
	}
	return data, nil
}
