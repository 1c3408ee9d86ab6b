// Package poller tracks remote video renders until they reach a terminal
// state and copies finished clips into blob storage.
package poller

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"promoreel/internal/domain"
	"promoreel/internal/providers"
)

// StatusSource reports the remote state of a render.
type StatusSource interface {
	Status(ctx context.Context, remoteID string) (*providers.OperationStatus, error)
}

// Scheduler accepts finished clips for background download.
type Scheduler interface {
	Schedule(req DownloadRequest) error
}

// ClipResult is the outcome of reconciling one clip.
type ClipResult struct {
	ClipID  string
	Status  domain.ClipStatus
	Changed bool
	// Err is a per-clip failure (remote query or write); the clip keeps its
	// previous status and is retried on the next pass.
	Err error
}

// Reconciler syncs stored clip status with the remote provider.
type Reconciler struct {
	clips     domain.ClipRepository
	remotes   map[string]StatusSource
	downloads Scheduler
	logger    zerolog.Logger
}

// NewReconciler builds a reconciler; remotes is keyed by clip provider name.
func NewReconciler(clips domain.ClipRepository, remotes map[string]StatusSource, downloads Scheduler, logger zerolog.Logger) *Reconciler {
	return &Reconciler{clips: clips, remotes: remotes, downloads: downloads, logger: logger}
}

// Reconcile queries every non-terminal clip once and records changes.
// Terminal clips are reported as stored without contacting the provider.
func (r *Reconciler) Reconcile(ctx context.Context, clipIDs []string) ([]ClipResult, error) {
	clips, err := r.clips.ClipsByIDs(ctx, clipIDs)
	if err != nil {
		return nil, fmt.Errorf("load clips: %w", err)
	}
	found := make(map[string]bool, len(clips))
	results := make([]ClipResult, 0, len(clipIDs))
	for i := range clips {
		found[clips[i].ID] = true
		results = append(results, r.reconcileClip(ctx, &clips[i]))
	}
	for _, id := range clipIDs {
		if !found[id] {
			results = append(results, ClipResult{ClipID: id, Status: domain.ClipStatusFailed, Err: domain.ErrNotFound})
		}
	}
	return results, nil
}

func (r *Reconciler) reconcileClip(ctx context.Context, clip *domain.Clip) ClipResult {
	res := ClipResult{ClipID: clip.ID, Status: clip.Status}
	if clip.Status.IsTerminal() {
		return res
	}
	log := r.logger.With().Str("clip_id", clip.ID).Str("task_id", clip.TaskID).Str("remote_id", clip.RemoteID).Logger()

	remote, ok := r.remotes[clip.Provider]
	if !ok {
		msg := fmt.Sprintf("no status source for provider %q", clip.Provider)
		if err := r.clips.UpdateClipStatus(ctx, clip.ID, domain.ClipStatusFailed, &msg); err != nil {
			res.Err = err
			return res
		}
		log.Error().Str("provider", clip.Provider).Msg("poller: unknown clip provider")
		res.Status, res.Changed = domain.ClipStatusFailed, true
		return res
	}

	st, err := remote.Status(ctx, clip.RemoteID)
	if err != nil {
		log.Warn().Err(err).Msg("poller: remote status query failed")
		res.Err = err
		return res
	}
	if st.Status == clip.Status {
		return res
	}

	switch st.Status {
	case domain.ClipStatusSucceeded:
		if err := r.clips.MarkClipSucceeded(ctx, clip.ID, st.VideoURL); err != nil {
			res.Err = err
			return res
		}
		if err := r.downloads.Schedule(DownloadRequest{ClipID: clip.ID, TaskID: clip.TaskID, URL: st.VideoURL}); err != nil {
			log.Error().Err(err).Msg("poller: download not scheduled")
			if mErr := r.clips.MarkClipDownloadFailed(ctx, clip.ID, "download not scheduled: "+err.Error()); mErr != nil {
				log.Error().Err(mErr).Msg("poller: failed to record download failure")
			}
		}
	case domain.ClipStatusFailed, domain.ClipStatusCancelled, domain.ClipStatusExpired:
		msg := st.Error
		if msg == "" {
			msg = "remote render " + string(st.Status)
		}
		if err := r.clips.UpdateClipStatus(ctx, clip.ID, st.Status, &msg); err != nil {
			res.Err = err
			return res
		}
	default:
		if err := r.clips.UpdateClipStatus(ctx, clip.ID, st.Status, nil); err != nil {
			res.Err = err
			return res
		}
	}

	log.Info().
		Str("from", string(clip.Status)).
		Str("to", string(st.Status)).
		Msg("poller: clip status changed")
	res.Status, res.Changed = st.Status, true
	return res
}
