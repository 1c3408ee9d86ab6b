package poller

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promoreel/internal/domain"
	"promoreel/internal/storage"
	"promoreel/internal/testutil"
)

type fetchFunc func(ctx context.Context, url string) ([]byte, error)

func (f fetchFunc) Fetch(ctx context.Context, url string) ([]byte, error) { return f(ctx, url) }

func TestDownloadPoolStoresClip(t *testing.T) {
	repo := testutil.NewArtifactRepo()
	blobs := testutil.NewBlobStore()
	id := addClip(repo, "task-1", "r", domain.ClipStatusSucceeded)

	pool := NewDownloadPool(DownloadPoolConfig{
		Clips: repo,
		Blobs: blobs,
		Fetcher: fetchFunc(func(ctx context.Context, url string) ([]byte, error) {
			return []byte("mp4:" + url), nil
		}),
		Workers: 2,
		Logger:  zerolog.Nop(),
	})
	pool.Start(context.Background())
	require.NoError(t, pool.Schedule(DownloadRequest{ClipID: id, TaskID: "task-1", URL: "https://cdn/a.mp4"}))
	pool.Close()

	key := storage.ClipKey("task-1", id)
	assert.True(t, blobs.Has(key))
	clip := repo.Clip(id)
	assert.Equal(t, domain.DownloadStatusCompleted, clip.DownloadStatus)
	require.NotNil(t, clip.StorageKey)
	assert.Equal(t, key, *clip.StorageKey)
	assert.NotNil(t, clip.DownloadedAt)
}

func TestDownloadPoolRecordsFetchFailure(t *testing.T) {
	repo := testutil.NewArtifactRepo()
	id := addClip(repo, "task-1", "r", domain.ClipStatusSucceeded)

	pool := NewDownloadPool(DownloadPoolConfig{
		Clips: repo,
		Blobs: testutil.NewBlobStore(),
		Fetcher: fetchFunc(func(ctx context.Context, url string) ([]byte, error) {
			return nil, errors.New("connection reset")
		}),
		Logger: zerolog.Nop(),
	})
	pool.Start(context.Background())
	require.NoError(t, pool.Schedule(DownloadRequest{ClipID: id, TaskID: "task-1", URL: "https://cdn/a.mp4"}))
	pool.Close()

	clip := repo.Clip(id)
	assert.Equal(t, domain.ClipStatusSucceeded, clip.Status)
	assert.Equal(t, domain.DownloadStatusFailed, clip.DownloadStatus)
	require.NotNil(t, clip.ErrorMessage)
	assert.Contains(t, *clip.ErrorMessage, "connection reset")
}

func TestDownloadPoolBoundsConcurrency(t *testing.T) {
	repo := testutil.NewArtifactRepo()
	var active, peak int32
	release := make(chan struct{})
	pool := NewDownloadPool(DownloadPoolConfig{
		Clips: repo,
		Blobs: testutil.NewBlobStore(),
		Fetcher: fetchFunc(func(ctx context.Context, url string) ([]byte, error) {
			n := atomic.AddInt32(&active, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			<-release
			atomic.AddInt32(&active, -1)
			return []byte("x"), nil
		}),
		Workers:   2,
		QueueSize: 8,
		Logger:    zerolog.Nop(),
	})
	pool.Start(context.Background())
	for i := 0; i < 6; i++ {
		id := addClip(repo, "t", "r", domain.ClipStatusSucceeded)
		require.NoError(t, pool.Schedule(DownloadRequest{ClipID: id, TaskID: "t", URL: "u"}))
	}
	require.Eventually(t, func() bool { return atomic.LoadInt32(&active) == 2 }, time.Second, time.Millisecond)
	close(release)
	pool.Close()

	assert.Equal(t, int32(2), atomic.LoadInt32(&peak))
	for _, c := range repo.Clips {
		assert.Equal(t, domain.DownloadStatusCompleted, c.DownloadStatus)
	}
}

func TestDownloadPoolRejectsWhenFullOrClosed(t *testing.T) {
	pool := NewDownloadPool(DownloadPoolConfig{
		Clips:     testutil.NewArtifactRepo(),
		Blobs:     testutil.NewBlobStore(),
		Workers:   1,
		QueueSize: 1,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, pool.Schedule(DownloadRequest{ClipID: "a"}))
	assert.ErrorIs(t, pool.Schedule(DownloadRequest{ClipID: "b"}), ErrPoolFull)

	pool.Close()
	assert.ErrorIs(t, pool.Schedule(DownloadRequest{ClipID: "c"}), ErrPoolClosed)
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("video-bytes"))
	}))
	defer srv.Close()

	f := HTTPFetcher{Client: srv.Client()}

	data, err := f.Fetch(context.Background(), srv.URL+"/clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, []byte("video-bytes"), data)

	_, err = f.Fetch(context.Background(), srv.URL+"/missing")
	assert.Error(t, err)

	encoded := "data:video/mp4;base64," + base64.StdEncoding.EncodeToString([]byte("inline"))
	data, err = f.Fetch(context.Background(), encoded)
	require.NoError(t, err)
	assert.Equal(t, []byte("inline"), data)

	_, err = f.Fetch(context.Background(), "data:text/plain,hello")
	assert.Error(t, err)
}
