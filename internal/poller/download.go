package poller

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"promoreel/internal/domain"
	"promoreel/internal/storage"
)

var (
	ErrPoolFull   = errors.New("download pool queue is full")
	ErrPoolClosed = errors.New("download pool is closed")
)

// maxClipBytes caps a single downloaded clip.
const maxClipBytes = 512 << 20

// DownloadRequest asks the pool to copy a finished clip into storage.
type DownloadRequest struct {
	ClipID string
	TaskID string
	URL    string
}

// Fetcher retrieves the bytes behind a clip URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher downloads http(s) URLs and decodes base64 data URLs.
type HTTPFetcher struct {
	Client *http.Client
}

func (f HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if strings.HasPrefix(url, "data:") {
		return decodeDataURL(url)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download clip: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("download clip: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxClipBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read clip: %w", err)
	}
	if len(data) > maxClipBytes {
		return nil, fmt.Errorf("clip exceeds %d bytes", maxClipBytes)
	}
	return data, nil
}

func decodeDataURL(url string) ([]byte, error) {
	idx := strings.Index(url, ",")
	if idx < 0 || !strings.HasSuffix(url[:idx], ";base64") {
		return nil, errors.New("unsupported data url")
	}
	return base64.StdEncoding.DecodeString(url[idx+1:])
}

type DownloadPoolConfig struct {
	Clips     domain.ClipRepository
	Blobs     storage.BlobStore
	Fetcher   Fetcher
	Workers   int
	QueueSize int
	Timeout   time.Duration
	Logger    zerolog.Logger
}

// DownloadPool copies finished clips into blob storage with a fixed number
// of workers. Schedule never blocks.
type DownloadPool struct {
	clips   domain.ClipRepository
	blobs   storage.BlobStore
	fetcher Fetcher
	workers int
	timeout time.Duration
	logger  zerolog.Logger
	now     func() time.Time

	queue   chan DownloadRequest
	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

func NewDownloadPool(cfg DownloadPoolConfig) *DownloadPool {
	workers := max(1, cfg.Workers)
	size := cfg.QueueSize
	if size <= 0 {
		size = workers * 16
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	fetcher := cfg.Fetcher
	if fetcher == nil {
		fetcher = HTTPFetcher{}
	}
	return &DownloadPool{
		clips:   cfg.Clips,
		blobs:   cfg.Blobs,
		fetcher: fetcher,
		workers: workers,
		timeout: timeout,
		logger:  cfg.Logger,
		now:     time.Now,
		queue:   make(chan DownloadRequest, size),
	}
}

// Start launches the workers. Calling it more than once is a no-op.
func (p *DownloadPool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(ctx)
	}
}

func (p *DownloadPool) Schedule(req DownloadRequest) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.queue <- req:
		return nil
	default:
		return ErrPoolFull
	}
}

// Close stops accepting work and waits for queued downloads to finish.
func (p *DownloadPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *DownloadPool) work(ctx context.Context) {
	defer p.wg.Done()
	for req := range p.queue {
		p.download(ctx, req)
	}
}

func (p *DownloadPool) download(ctx context.Context, req DownloadRequest) {
	log := p.logger.With().Str("clip_id", req.ClipID).Str("task_id", req.TaskID).Logger()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	err := func() error {
		data, err := p.fetcher.Fetch(ctx, req.URL)
		if err != nil {
			return err
		}
		key, err := p.blobs.Write(ctx, storage.ClipKey(req.TaskID, req.ClipID), data)
		if err != nil {
			return fmt.Errorf("store clip: %w", err)
		}
		if err := p.clips.MarkClipDownloaded(ctx, req.ClipID, key, p.now().UTC()); err != nil {
			return fmt.Errorf("record download: %w", err)
		}
		log.Info().Str("storage_key", key).Int("bytes", len(data)).Msg("poller: clip downloaded")
		return nil
	}()
	if err == nil {
		return
	}

	log.Error().Err(err).Msg("poller: clip download failed")
	if mErr := p.clips.MarkClipDownloadFailed(ctx, req.ClipID, err.Error()); mErr != nil {
		log.Error().Err(mErr).Msg("poller: failed to record download failure")
	}
}
