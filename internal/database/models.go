package database

// Game is one catalog entry as stored in game_details.
type Game struct {
	AppID       int64  `json:"appid"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"`
	ReleaseDate string `json:"release_date"`
	Developer   string `json:"developer"`
	Publisher   string `json:"publisher"`
	Tags        string `json:"tags"`
}

// Review is one user review as stored in game_reviews.
type Review struct {
	ID                   int64  `json:"review_id"`
	AppID                int64  `json:"appid"`
	Text                 string `json:"review_text"`
	VotedUp              bool   `json:"voted_up"`
	TimestampCreated     int64  `json:"timestamp_created"`
	PlaytimeForever      int64  `json:"author_playtime_forever"`
	PlaytimeLastTwoWeeks int64  `json:"author_playtime_last_two_weeks"`
	AuthorNumReviews     int64  `json:"author_num_reviews"`
}

// Stats summarizes store contents.
type Stats struct {
	Games         int
	Reviews       int
	ReviewedGames int
}
