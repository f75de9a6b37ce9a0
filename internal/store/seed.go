package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/wihy/healthfeed/internal/model"
)

// curatedFeed はキュレーション済みカタログの1エントリ。
type curatedFeed struct {
	URL         string
	Category    string
	Title       string
	CountryCode string
}

// curatedFeeds は初期投入用の健康・栄養系フィードカタログ。
var curatedFeeds = []curatedFeed{
	{"https://academic.oup.com/rss/site_5009/0.xml", "Nutrition & Diet", "American Journal of Clinical Nutrition", "US"},
	{"https://www.frontiersin.org/journals/nutrition/rss", "Nutrition & Diet", "Frontiers in Nutrition", "GLOBAL"},
	{"https://bmcnutr.biomedcentral.com/articles/rss.xml", "Nutrition & Diet", "BMC Nutrition", "GLOBAL"},
	{"https://www.jneb.org/current.rss", "Nutrition & Diet", "Journal of Nutrition Education & Behavior", "US"},
	{"https://www.sciencedaily.com/rss/health_medicine/nutrition.xml", "Nutrition & Diet", "ScienceDaily Nutrition News", "US"},
	{"https://www.nejm.org/action/showFeed?type=etoc&feed=rss", "Medical Research", "New England Journal of Medicine", "US"},
	{"https://jamanetwork.com/rss/site_7/0.xml", "Medical Research", "JAMA", "US"},
	{"https://www.thelancet.com/rssfeed/lancet_current.xml", "Medical Research", "The Lancet", "UK"},
	{"https://www.nature.com/nm/current_issue/rss", "Medical Research", "Nature Medicine", "GLOBAL"},
	{"https://www.nih.gov/news-events/news-releases/feed", "Medical Research", "NIH Research News", "US"},
	{"https://ajph.aphapublications.org/action/showFeed?type=etoc&feed=rss", "Public Health", "American Journal of Public Health", "US"},
	{"https://www.cdc.gov/mmwr/rss/rss.xml", "Public Health", "CDC MMWR", "US"},
	{"https://www.who.int/feeds/entity/mediacentre/news/en/rss.xml", "Public Health", "WHO News", "GLOBAL"},
	{"https://www.cambridge.org/core/rss/journals/public-health-nutrition", "Public Health", "Public Health Nutrition", "GLOBAL"},
	{"https://www.sciencedaily.com/rss/health_medicine/public_health.xml", "Public Health", "ScienceDaily Public Health", "US"},
	{"https://clinicaltrials.gov/ct2/results/rss.xml", "Clinical Studies", "ClinicalTrials.gov New Studies", "US"},
	{"https://ascopubs.org/action/showFeed?type=etoc&feed=rss&jc=jco", "Clinical Studies", "Journal of Clinical Oncology", "US"},
	{"https://www.ahajournals.org/action/showFeed?type=etoc&feed=rss&jc=circulationaha", "Clinical Studies", "Circulation", "US"},
	{"https://ajp.psychiatryonline.org/rss/current.xml", "Clinical Studies", "American Journal of Psychiatry Clinical", "US"},
	{"https://www.sciencedaily.com/rss/health_medicine/clinical_trials.xml", "Clinical Studies", "ScienceDaily Clinical Trials", "US"},
	{"https://www.cdc.gov/pcd/rss/PCDNews.xml", "Disease Prevention", "CDC Preventing Chronic Disease", "US"},
	{"https://www.thelancet.com/rssfeed/lancetinfectiousdiseases_current.xml", "Disease Prevention", "Lancet Infectious Diseases", "UK"},
	{"https://www.nature.com/mi/current_issue/rss", "Disease Prevention", "Nature Microbiology & Immunology", "GLOBAL"},
	{"https://www.sciencedaily.com/rss/health_medicine/diseases_and_conditions.xml", "Disease Prevention", "ScienceDaily Diseases & Conditions", "US"},
	{"https://www.nih.gov/news-events/news-releases/feed", "Disease Prevention", "NIH Prevention News", "US"},
	{"https://ajp.psychiatryonline.org/rss/current.xml", "Mental Health", "American Journal of Psychiatry", "US"},
	{"https://www.frontiersin.org/journals/psychology/rss", "Mental Health", "Frontiers in Psychology", "GLOBAL"},
	{"https://www.sciencedaily.com/rss/mind_brain/mental_health.xml", "Mental Health", "ScienceDaily Mental Health", "US"},
	{"https://www.thelancet.com/rssfeed/lancetpsychiatry_current.xml", "Mental Health", "The Lancet Psychiatry", "UK"},
	{"https://jamanetwork.com/rss/site_44/0.xml", "Mental Health", "JAMA Psychiatry", "US"},
	{"https://www.medscape.com/rss/feeds/news.xml", "General Health", "Medscape Medical News", "US"},
	{"https://www.nih.gov/news-events/news-releases/feed", "General Health", "NIH News", "US"},
	{"https://www.sciencedaily.com/rss/health_medicine.xml", "General Health", "ScienceDaily Health & Medicine", "US"},
	{"https://www.bmj.com/rss.xml", "General Health", "British Medical Journal", "UK"},
	{"https://www.webmd.com/rss/health.xml", "General Health", "WebMD Health", "US"},
}

// SeedCuratedFeeds はキュレーション済みカタログを冪等に投入する。
// url_hashの一意インデックスにより、既存URLはスキップされる。
// 個別の投入失敗はログに記録し、残りのエントリの投入は継続する。
func (s *PostgresFeedStore) SeedCuratedFeeds(ctx context.Context) (model.SeedResult, error) {
	var result model.SeedResult

	for _, feed := range curatedFeeds {
		canonical := CanonicalFeedURL(feed.URL)

		res, err := s.db.ExecContext(ctx,
			`INSERT INTO rss_feeds (id, feed_url, url_hash, category, country_code, feed_title)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (url_hash) DO NOTHING`,
			uuid.NewString(), canonical, HashFeedURL(feed.URL),
			feed.Category, feed.CountryCode, feed.Title,
		)
		if err != nil {
			s.logger.Error("フィードの投入に失敗しました",
				slog.String("feed_url", canonical),
				slog.String("error", err.Error()),
			)
			continue
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return result, fmt.Errorf("投入行数の取得に失敗しました: %w", err)
		}
		if affected > 0 {
			result.FeedsAdded++
			s.logger.Info("フィードを投入しました",
				slog.String("title", feed.Title),
				slog.String("feed_url", canonical),
			)
		} else {
			result.ExistingFeeds++
		}
	}

	return result, nil
}
