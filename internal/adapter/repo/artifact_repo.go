package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"promoreel/internal/domain"
	"promoreel/internal/infra"
	"promoreel/internal/sqlinline"
)

// ArtifactRepositoryPG implements domain.ArtifactRepository.
type ArtifactRepositoryPG struct {
	db  infra.SQLExecutor
	now func() time.Time
}

// NewArtifactRepository creates an artifact repository backed by PostgreSQL.
func NewArtifactRepository(db infra.SQLExecutor) *ArtifactRepositoryPG {
	return &ArtifactRepositoryPG{db: db, now: time.Now}
}

func (r *ArtifactRepositoryPG) SourceImages(ctx context.Context, userID string, ids []string) ([]domain.SourceImage, error) {
	rows, err := r.db.Query(ctx, sqlinline.QSelectSourceImages, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("select source images: %w", err)
	}
	defer rows.Close()

	byID := map[string]domain.SourceImage{}
	for rows.Next() {
		var img domain.SourceImage
		if err := rows.Scan(&img.ID, &img.UserID, &img.StorageKey, &img.MIME, &img.Width, &img.Height, &img.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan source image: %w", err)
		}
		byID[img.ID] = img
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Keep the caller's order; it decides which photo is the primary one.
	out := make([]domain.SourceImage, 0, len(byID))
	for _, id := range ids {
		if img, ok := byID[id]; ok {
			out = append(out, img)
		}
	}
	return out, nil
}

func (r *ArtifactRepositoryPG) CreateAnalysis(ctx context.Context, a *domain.ProductAnalysis) error {
	r.stamp(&a.ID, &a.CreatedAt)
	summary, err := json.Marshal(a.Summary)
	if err != nil {
		return fmt.Errorf("encode analysis summary: %w", err)
	}
	usage, err := encodeUsage(a.Usage)
	if err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, sqlinline.QInsertAnalysis, a.ID, a.TaskID, summary, a.Provider, a.Model, usage, a.CreatedAt); err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}

func (r *ArtifactRepositoryPG) AnalysisByTask(ctx context.Context, taskID string) (*domain.ProductAnalysis, error) {
	var (
		a       domain.ProductAnalysis
		summary []byte
		usage   []byte
	)
	err := r.db.QueryRow(ctx, sqlinline.QAnalysisByTask, taskID).Scan(&a.ID, &a.TaskID, &summary, &a.Provider, &a.Model, &usage, &a.CreatedAt)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select analysis: %w", err)
	}
	if err := json.Unmarshal(summary, &a.Summary); err != nil {
		return nil, fmt.Errorf("decode analysis summary: %w", err)
	}
	if a.Usage, err = decodeUsage(usage); err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateScripts inserts the batch in one transaction; a failed insert
// leaves none of the scripts behind.
func (r *ArtifactRepositoryPG) CreateScripts(ctx context.Context, scripts []domain.Script) error {
	for i := range scripts {
		r.stamp(&scripts[i].ID, &scripts[i].CreatedAt)
	}
	return r.db.InTx(ctx, func(tx infra.SQLExecutor) error {
		for i := range scripts {
			s := &scripts[i]
			usage, err := encodeUsage(s.Usage)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, sqlinline.QInsertScript,
				s.ID, s.TaskID, s.AnalysisID, s.Position, s.Title, s.Hook, s.Narration, s.CallToAction,
				s.DurationSeconds, s.Provider, s.Model, usage, s.CreatedAt,
			); err != nil {
				return fmt.Errorf("insert script %d: %w", s.Position, err)
			}
		}
		return nil
	})
}

func (r *ArtifactRepositoryPG) ScriptsByTask(ctx context.Context, taskID string) ([]domain.Script, error) {
	rows, err := r.db.Query(ctx, sqlinline.QScriptsByTask, taskID)
	if err != nil {
		return nil, fmt.Errorf("select scripts: %w", err)
	}
	defer rows.Close()

	var out []domain.Script
	for rows.Next() {
		var (
			s     domain.Script
			usage []byte
		)
		if err := rows.Scan(&s.ID, &s.TaskID, &s.AnalysisID, &s.Position, &s.Title, &s.Hook, &s.Narration,
			&s.CallToAction, &s.DurationSeconds, &s.Provider, &s.Model, &usage, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan script: %w", err)
		}
		if s.Usage, err = decodeUsage(usage); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CreateShots inserts one storyboard in a single transaction.
func (r *ArtifactRepositoryPG) CreateShots(ctx context.Context, shots []domain.Shot) error {
	for i := range shots {
		r.stamp(&shots[i].ID, &shots[i].CreatedAt)
	}
	return r.db.InTx(ctx, func(tx infra.SQLExecutor) error {
		for i := range shots {
			s := &shots[i]
			usage, err := encodeUsage(s.Usage)
			if err != nil {
				return err
			}
			firstID, firstSource := domain.FrameColumns(s.FirstFrame)
			lastID, lastSource := domain.FrameColumns(s.LastFrame)
			if _, err := tx.Exec(ctx, sqlinline.QInsertShot,
				s.ID, s.TaskID, s.ScriptID, s.Index, s.Description, s.Camera, s.DurationSeconds, s.ImagePrompt,
				s.VideoPrompt, firstID, firstSource, lastID, lastSource, s.Provider, s.Model, usage, s.CreatedAt,
			); err != nil {
				return fmt.Errorf("insert shot %d: %w", s.Index, err)
			}
		}
		return nil
	})
}

func (r *ArtifactRepositoryPG) ShotsByScript(ctx context.Context, scriptID string) ([]domain.Shot, error) {
	rows, err := r.db.Query(ctx, sqlinline.QShotsByScript, scriptID)
	if err != nil {
		return nil, fmt.Errorf("select shots: %w", err)
	}
	defer rows.Close()

	var out []domain.Shot
	for rows.Next() {
		var (
			s                    domain.Shot
			firstID, firstSource *string
			lastID, lastSource   *string
			usage                []byte
		)
		if err := rows.Scan(&s.ID, &s.TaskID, &s.ScriptID, &s.Index, &s.Description, &s.Camera, &s.DurationSeconds,
			&s.ImagePrompt, &s.VideoPrompt, &firstID, &firstSource, &lastID, &lastSource, &s.Provider, &s.Model,
			&usage, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan shot: %w", err)
		}
		if s.FirstFrame, err = frameRef(firstID, firstSource); err != nil {
			return nil, err
		}
		if s.LastFrame, err = frameRef(lastID, lastSource); err != nil {
			return nil, err
		}
		if s.Usage, err = decodeUsage(usage); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *ArtifactRepositoryPG) CreateClip(ctx context.Context, c *domain.Clip) error {
	r.stamp(&c.ID, &c.CreatedAt)
	c.UpdatedAt = c.CreatedAt
	if c.Status == "" {
		c.Status = domain.ClipStatusQueued
	}
	if c.DownloadStatus == "" {
		c.DownloadStatus = domain.DownloadStatusPending
	}
	usage, err := encodeUsage(c.Usage)
	if err != nil {
		return err
	}
	shotIDs := c.ShotIDs
	if shotIDs == nil {
		shotIDs = []string{}
	}
	firstID, firstSource := domain.FrameColumns(c.FirstFrame)
	lastID, lastSource := domain.FrameColumns(c.LastFrame)
	if _, err := r.db.Exec(ctx, sqlinline.QInsertClip,
		c.ID, c.TaskID, c.ScriptID, shotIDs, c.RemoteID, c.Provider, c.Model, c.Prompt, string(c.Status),
		string(c.DownloadStatus), c.DurationSeconds, c.AspectRatio, firstID, firstSource, lastID, lastSource,
		usage, c.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert clip: %w", err)
	}
	return nil
}

func (r *ArtifactRepositoryPG) ClipsByTask(ctx context.Context, taskID string) ([]domain.Clip, error) {
	return r.queryClips(ctx, sqlinline.QClipsByTask, taskID)
}

func (r *ArtifactRepositoryPG) ClipsByIDs(ctx context.Context, ids []string) ([]domain.Clip, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.queryClips(ctx, sqlinline.QClipsByIDs, ids)
}

func (r *ArtifactRepositoryPG) queryClips(ctx context.Context, query string, arg any) ([]domain.Clip, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("select clips: %w", err)
	}
	defer rows.Close()

	var out []domain.Clip
	for rows.Next() {
		c, err := scanClip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func scanClip(row pgx.Row) (*domain.Clip, error) {
	var (
		c                    domain.Clip
		status, download     string
		firstID, firstSource *string
		lastID, lastSource   *string
		usage                []byte
	)
	if err := row.Scan(&c.ID, &c.TaskID, &c.ScriptID, &c.ShotIDs, &c.RemoteID, &c.Provider, &c.Model, &c.Prompt,
		&status, &download, &c.SourceURL, &c.StorageKey, &c.DownloadedAt, &c.ErrorMessage, &c.DurationSeconds,
		&c.AspectRatio, &firstID, &firstSource, &lastID, &lastSource, &usage, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, fmt.Errorf("scan clip: %w", err)
	}
	c.Status = domain.ClipStatus(status)
	c.DownloadStatus = domain.DownloadStatus(download)
	var err error
	if c.FirstFrame, err = frameRef(firstID, firstSource); err != nil {
		return nil, err
	}
	if c.LastFrame, err = frameRef(lastID, lastSource); err != nil {
		return nil, err
	}
	if c.Usage, err = decodeUsage(usage); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ArtifactRepositoryPG) execClip(ctx context.Context, what, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ArtifactRepositoryPG) UpdateClipStatus(ctx context.Context, id string, status domain.ClipStatus, errMsg *string) error {
	return r.execClip(ctx, "update clip status", sqlinline.QUpdateClipStatus, id, string(status), errMsg)
}

func (r *ArtifactRepositoryPG) MarkClipSucceeded(ctx context.Context, id, sourceURL string) error {
	return r.execClip(ctx, "mark clip succeeded", sqlinline.QMarkClipSucceeded, id, sourceURL)
}

func (r *ArtifactRepositoryPG) MarkClipDownloaded(ctx context.Context, id, storageKey string, at time.Time) error {
	return r.execClip(ctx, "mark clip downloaded", sqlinline.QMarkClipDownloaded, id, storageKey, at)
}

func (r *ArtifactRepositoryPG) MarkClipDownloadFailed(ctx context.Context, id, errMsg string) error {
	return r.execClip(ctx, "mark clip download failed", sqlinline.QMarkClipDownloadFailed, id, errMsg)
}

func (r *ArtifactRepositoryPG) CreateImage(ctx context.Context, img *domain.PromoImage) error {
	r.stamp(&img.ID, &img.CreatedAt)
	usage, err := encodeUsage(img.Usage)
	if err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, sqlinline.QInsertImage, img.ID, img.TaskID, img.Position, img.StorageKey, img.MIME,
		img.Width, img.Height, img.Prompt, img.Provider, img.Model, usage, img.CreatedAt); err != nil {
		return fmt.Errorf("insert image: %w", err)
	}
	return nil
}

func (r *ArtifactRepositoryPG) ImagesByTask(ctx context.Context, taskID string) ([]domain.PromoImage, error) {
	rows, err := r.db.Query(ctx, sqlinline.QImagesByTask, taskID)
	if err != nil {
		return nil, fmt.Errorf("select images: %w", err)
	}
	defer rows.Close()

	var out []domain.PromoImage
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *img)
	}
	return out, rows.Err()
}

func (r *ArtifactRepositoryPG) ImageByID(ctx context.Context, id string) (*domain.PromoImage, error) {
	img, err := scanImage(r.db.QueryRow(ctx, sqlinline.QImageByID, id))
	if err != nil && infra.IsNoRows(err) {
		return nil, domain.ErrNotFound
	}
	return img, err
}

func scanImage(row pgx.Row) (*domain.PromoImage, error) {
	var (
		img   domain.PromoImage
		usage []byte
	)
	if err := row.Scan(&img.ID, &img.TaskID, &img.Position, &img.StorageKey, &img.MIME, &img.Width, &img.Height,
		&img.Prompt, &img.Provider, &img.Model, &usage, &img.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan image: %w", err)
	}
	var err error
	if img.Usage, err = decodeUsage(usage); err != nil {
		return nil, err
	}
	return &img, nil
}

func (r *ArtifactRepositoryPG) StorageKeysByTask(ctx context.Context, taskID string) ([]string, error) {
	rows, err := r.db.Query(ctx, sqlinline.QStorageKeysByTask, taskID)
	if err != nil {
		return nil, fmt.Errorf("select storage keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan storage key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (r *ArtifactRepositoryPG) stamp(id *string, createdAt *time.Time) {
	if *id == "" {
		*id = uuid.NewString()
	}
	if createdAt.IsZero() {
		*createdAt = r.now().UTC()
	}
}

func encodeUsage(u *domain.Usage) ([]byte, error) {
	if u == nil {
		return nil, nil
	}
	data, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("encode usage: %w", err)
	}
	return data, nil
}

func decodeUsage(data []byte) (*domain.Usage, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var u domain.Usage
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("decode usage: %w", err)
	}
	return &u, nil
}

func frameRef(id, source *string) (domain.FrameRef, error) {
	if id == nil || *id == "" {
		return nil, nil
	}
	src := ""
	if source != nil {
		src = *source
	}
	return domain.NewFrameRef(*id, domain.FrameSource(src))
}

var _ domain.ArtifactRepository = (*ArtifactRepositoryPG)(nil)
