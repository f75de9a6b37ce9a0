// Package model はドメインモデルを定義する。
package model

// UpdateOutcome はフィード更新の明示的な結果値。
// 「フィードが存在しない」「ペイロード不正」は想定内の結果であり、errorとしては扱わない。
type UpdateOutcome struct {
	Success      bool
	RowsAffected int
	Error        string
}

// SeedResult はキュレーション済みカタログ投入の結果。
type SeedResult struct {
	FeedsAdded    int `json:"feeds_added"`
	ExistingFeeds int `json:"existing_feeds"`
}

// PollStats は1ポーリングサイクルの集計。
type PollStats struct {
	Total           int
	Updated         int
	Deactivated     int
	Failed          int
	ArticlesFetched int
}
