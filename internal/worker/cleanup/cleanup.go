// Package cleanup は期限切れセッションの自動削除ジョブを提供する。
// 有効期限を過ぎたセッションはリクエスト時にも遅延削除されるが、
// 再アクセスされないセッションが残留するため、定期バッチで掃き出す。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/taskman/internal/repository"
)

// Recorder は掃除結果のメトリクス記録インターフェース。
type Recorder interface {
	RecordSessionsSwept(count int)
}

// SweepJob は期限切れセッションの一括削除ジョブ。
// 定期実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type SweepJob struct {
	sessions repository.SessionRepository
	logger   *slog.Logger
	recorder Recorder // nilの場合は記録しない
}

// NewSweepJob は新しいSweepJobを生成する。recorderはnilでもよい。
func NewSweepJob(sessions repository.SessionRepository, logger *slog.Logger, recorder Recorder) *SweepJob {
	return &SweepJob{
		sessions: sessions,
		logger:   logger,
		recorder: recorder,
	}
}

// Run は期限切れセッションを一括削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *SweepJob) Run(ctx context.Context) error {
	start := time.Now()

	deleted, err := j.sessions.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("期限切れセッションの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("セッション掃除の実行に失敗: %w", err)
	}

	if j.recorder != nil {
		j.recorder.RecordSessionsSwept(int(deleted))
	}

	j.logger.Info("セッション掃除ジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

// Start は指定間隔でRunを繰り返し実行する。起動直後にも1回実行する。
// コンテキストのキャンセルで停止する（ブロッキング）。
func (j *SweepJob) Start(ctx context.Context, interval time.Duration) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("session sweep failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("session sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}
