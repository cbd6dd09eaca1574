package transfer

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/yuanxie/sed-dl/internal/auth"
	"github.com/yuanxie/sed-dl/internal/output"
	"github.com/yuanxie/sed-dl/internal/utils"
)

const defaultWorkers = 4

// Manager moves a batch of download items onto disk with a fixed worker
// pool. Items sharing a destination path are serialized so two workers
// never write the same temp file.
type Manager struct {
	Client     utils.HTTPDoer
	Auth       *auth.Resolver
	OutputRoot string
	Workers    int
	Retries    int
	Quality    string
	Force      bool

	bytes     atomic.Int64
	pathLocks sync.Map
}

// Run processes every item and returns one result per item, in input order.
func (m *Manager) Run(ctx context.Context, items []utils.DownloadItem) []utils.TransferResult {
	workers := m.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	if workers > len(items) {
		workers = len(items)
	}
	results := make([]utils.TransferResult, len(items))
	jobCh := make(chan int, len(items))
	for i := range items {
		jobCh <- i
	}
	close(jobCh)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobCh {
				results[i] = m.process(ctx, &items[i])
				m.report(&results[i])
			}
		}()
	}
	wg.Wait()
	log.Debug().Str("op", "transfer/manager").Msgf("transferred %s across %d items", utils.FormatBytes(uint64(m.bytes.Load())), len(items))
	return results
}

// Bytes reports the total payload bytes written so far.
func (m *Manager) Bytes() int64 {
	return m.bytes.Load()
}

func (m *Manager) report(res *utils.TransferResult) {
	switch res.Status {
	case utils.StatusCompleted:
		output.PrintSuccess(res.Item.RelPath)
	case utils.StatusSkipped:
		output.PrintInfo(res.Item.RelPath + " (skipped: " + res.Reason + ")")
	case utils.StatusFailed:
		output.PrintError(res.Item.RelPath + " (" + res.Reason + ")")
		if res.Err != nil {
			log.Debug().Str("op", "transfer/manager").Err(res.Err).Msgf("failure detail for %s", res.Item.RelPath)
		}
	}
}

// lockPath serializes access to one destination path. The returned func
// releases the lock.
func (m *Manager) lockPath(path string) func() {
	v, _ := m.pathLocks.LoadOrStore(path, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
