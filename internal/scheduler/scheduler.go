// Package scheduler はフィードの定期ポーリングを提供する。
//
// 有効なフィードを古い順に1件ずつ逐次処理し、フィード間にペーシングを
// 挟んでアップストリームへの負荷を平準化する。サイクルは同時に1つしか
// 走らない。
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/wihy/healthfeed/internal/metrics"
	"github.com/wihy/healthfeed/internal/model"
	"github.com/wihy/healthfeed/internal/store"
)

// ErrPollInProgress は既にポーリングサイクルが実行中であることを示す。
var ErrPollInProgress = errors.New("ポーリングサイクルは既に実行中です")

// FeedParserService はフィード取得・パースの実行インターフェース。
type FeedParserService interface {
	// FetchAndParse はフィードを取得してパースする。失敗も結果値で表現される。
	FetchAndParse(ctx context.Context, feedURL string) *model.ParseResult
}

// Scheduler はフィードポーリングのスケジューリングを行う。
// ティッカーでサイクルを起動し、running フラグで多重実行を防止する。
type Scheduler struct {
	store   store.FeedStore
	parser  FeedParserService
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	pacer   *rate.Limiter

	running atomic.Bool
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// pacingはフィード間の最小間隔。0以下の場合はデフォルト1秒を使用する。
func NewScheduler(
	feedStore store.FeedStore,
	parser FeedParserService,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	pacing time.Duration,
) *Scheduler {
	if pacing <= 0 {
		pacing = time.Second
	}
	return &Scheduler{
		store:   feedStore,
		parser:  parser,
		metrics: collector,
		logger:  logger,
		pacer:   rate.NewLimiter(rate.Every(pacing), 1),
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("ポーリングスケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	s.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("ポーリングスケジューラを停止しました")
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// runCycle はPollOnceを実行し、結果をログに記録する。
func (s *Scheduler) runCycle(ctx context.Context) {
	stats, err := s.PollOnce(ctx)
	if err != nil {
		if errors.Is(err, ErrPollInProgress) {
			s.logger.Warn("前回のポーリングサイクルが完了していないためスキップします")
			return
		}
		s.logger.Error("ポーリングサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Info("ポーリングサイクルが完了しました",
		slog.Int("total", stats.Total),
		slog.Int("updated", stats.Updated),
		slog.Int("deactivated", stats.Deactivated),
		slog.Int("failed", stats.Failed),
		slog.Int("articles_fetched", stats.ArticlesFetched),
	)
}

// PollOnce は有効なフィードを1巡ポーリングする。
// 既にサイクルが実行中の場合はErrPollInProgressを返す。
// 個々のフィードの失敗はサイクル全体を止めない。
func (s *Scheduler) PollOnce(ctx context.Context) (*model.PollStats, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrPollInProgress
	}
	defer s.running.Store(false)

	start := time.Now()

	feeds, err := s.store.ListActiveForPolling(ctx)
	if err != nil {
		return nil, err
	}

	stats := &model.PollStats{Total: len(feeds)}

	if len(feeds) == 0 {
		s.logger.Info("ポーリング対象のフィードはありません")
		return stats, nil
	}

	s.logger.Info("ポーリングサイクルを開始します",
		slog.Int("feed_count", len(feeds)),
	)

	for _, feed := range feeds {
		if err := s.pacer.Wait(ctx); err != nil {
			// コンテキストキャンセル。ここまでの集計を返す
			return stats, nil
		}
		s.pollFeed(ctx, feed, stats)
	}

	s.metrics.RecordPollCycle(time.Since(start), len(feeds))

	return stats, nil
}

// pollFeed は1フィードをポーリングし、結果に応じてストアを更新する。
func (s *Scheduler) pollFeed(ctx context.Context, feed *model.Feed, stats *model.PollStats) {
	start := time.Now()
	result := s.parser.FetchAndParse(ctx, feed.FeedURL)
	s.metrics.RecordPollLatency(time.Since(start))

	switch {
	case result.Success && len(result.Articles) > 0:
		outcome, err := s.store.UpdateFeedWithArticles(ctx, feed.ID, store.FeedUpdate{
			Articles:        result.Articles,
			FeedTitle:       result.FeedTitle,
			FeedDescription: result.FeedDescription,
			FeedLink:        result.FeedLink,
			FeedImage:       result.FeedImage,
			FeedThumbnail:   result.FeedThumbnail,
			Status:          result.Status,
		})
		if err != nil {
			s.logger.Error("フィード更新に失敗しました",
				slog.String("feed_id", feed.ID),
				slog.String("error", err.Error()),
			)
			stats.Failed++
			return
		}
		if !outcome.Success {
			s.logger.Warn("フィード更新が適用されませんでした",
				slog.String("feed_id", feed.ID),
				slog.String("reason", outcome.Error),
			)
			stats.Failed++
			return
		}

		stats.Updated++
		stats.ArticlesFetched += len(result.Articles)
		s.metrics.RecordPollSuccess(feed.ID)
		s.metrics.RecordArticlesFetched(len(result.Articles))

	case result.Success:
		// パースは成功したが保持対象の記事が0件。バッチは置き換えず
		// チェック状態のみ記録する
		s.logger.Info("取得記事が0件のためバッチを維持します",
			slog.String("feed_id", feed.ID),
			slog.Int("total_items", result.TotalItems),
		)
		if err := s.store.MarkFeedChecked(ctx, feed.ID, result.Status); err != nil {
			s.logger.Error("チェック状態の記録に失敗しました",
				slog.String("feed_id", feed.ID),
				slog.String("error", err.Error()),
			)
		}
		s.metrics.RecordPollSuccess(feed.ID)

	case result.ShouldDeactivate:
		if err := s.store.DeactivateFeed(ctx, feed.ID, result.Status); err != nil {
			s.logger.Error("フィード無効化に失敗しました",
				slog.String("feed_id", feed.ID),
				slog.String("error", err.Error()),
			)
			stats.Failed++
			return
		}
		stats.Deactivated++
		s.metrics.RecordFeedDeactivated(feed.ID)
		s.metrics.RecordPollFailure(feed.ID, result.Status)
		s.logger.Warn("恒久的な失敗によりフィードを無効化しました",
			slog.String("feed_id", feed.ID),
			slog.String("feed_url", feed.FeedURL),
			slog.Int("status", result.Status),
			slog.String("error", result.Error),
		)

	default:
		if err := s.store.MarkFeedChecked(ctx, feed.ID, result.Status); err != nil {
			s.logger.Error("チェック状態の記録に失敗しました",
				slog.String("feed_id", feed.ID),
				slog.String("error", err.Error()),
			)
		}
		stats.Failed++
		s.metrics.RecordPollFailure(feed.ID, result.Status)
	}
}
