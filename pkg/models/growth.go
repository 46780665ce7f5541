package models

import "time"

// ReplyTarget is a high-engagement tweet worth replying to.
// ApprovalID links the drafted reply once one is queued.
type ReplyTarget struct {
	ID              int64     `db:"id" json:"id"`
	TweetID         string    `db:"tweet_id" json:"tweet_id"`
	Author          string    `db:"author" json:"author"`
	AuthorFollowers int       `db:"author_followers" json:"author_followers"`
	Text            string    `db:"text" json:"text"`
	Likes           int       `db:"likes" json:"likes"`
	Replies         int       `db:"replies" json:"replies"`
	Retweets        int       `db:"retweets" json:"retweets"`
	Score           float64   `db:"score" json:"score"`
	ApprovalID      *int64    `db:"approval_id" json:"approval_id,omitempty"`
	FoundAt         time.Time `db:"found_at" json:"found_at"`
}

// SeenMention marks a mention or reply as already handled.
type SeenMention struct {
	ID         int64     `db:"id" json:"id"`
	TweetID    string    `db:"tweet_id" json:"tweet_id"`
	Author     string    `db:"author" json:"author"`
	Text       string    `db:"text" json:"text"`
	Kind       string    `db:"kind" json:"kind"`
	ApprovalID *int64    `db:"approval_id" json:"approval_id,omitempty"`
	SeenAt     time.Time `db:"seen_at" json:"seen_at"`
}

// TweetMetrics is the latest engagement snapshot for one posted tweet.
type TweetMetrics struct {
	TweetID     string     `db:"tweet_id" json:"tweet_id"`
	Text        string     `db:"text" json:"text"`
	PostedAt    *time.Time `db:"posted_at" json:"posted_at,omitempty"`
	Impressions int64      `db:"impressions" json:"impressions"`
	Likes       int        `db:"likes" json:"likes"`
	Replies     int        `db:"replies" json:"replies"`
	Retweets    int        `db:"retweets" json:"retweets"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// AnalyticsReport is the daily performance rollup.
type AnalyticsReport struct {
	ID               int64     `db:"id" json:"id"`
	ReportDate       time.Time `db:"report_date" json:"report_date"`
	TweetsPosted     int       `db:"tweets_posted" json:"tweets_posted"`
	TotalImpressions int64     `db:"total_impressions" json:"total_impressions"`
	TotalLikes       int       `db:"total_likes" json:"total_likes"`
	TotalReplies     int       `db:"total_replies" json:"total_replies"`
	TotalRetweets    int       `db:"total_retweets" json:"total_retweets"`
	BestTweetID      string    `db:"best_tweet_id" json:"best_tweet_id"`
	WorstTweetID     string    `db:"worst_tweet_id" json:"worst_tweet_id"`
	Summary          string    `db:"summary" json:"summary"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}
