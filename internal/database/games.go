package database

import (
	"context"
	"database/sql"
	"fmt"
)

const gameColumns = `appid, COALESCE(name, ''), COALESCE(description, ''), COALESCE(price, ''),
	COALESCE(release_date, ''), COALESCE(developer, ''), COALESCE(publisher, ''), COALESCE(tags, '')`

const reviewColumns = `review_id, COALESCE(appid, 0), COALESCE(review_text, ''), COALESCE(voted_up, 0),
	COALESCE(timestamp_created, 0), COALESCE(author_playtime_forever, 0),
	COALESCE(author_playtime_last_two_weeks, 0), COALESCE(author_num_reviews, 0)`

// SaveBatch inserts games (insert-or-ignore) and reviews (append) in a
// single transaction. Nothing is written if any statement fails.
func (db *DB) SaveBatch(ctx context.Context, games []Game, reviews []Review) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertGames(ctx, tx, games); err != nil {
		return err
	}
	if err := insertReviews(ctx, tx, reviews); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// InsertGames stores games. An appid already present keeps its first-written values.
func (db *DB) InsertGames(ctx context.Context, games []Game) error {
	return db.SaveBatch(ctx, games, nil)
}

// InsertReviews appends reviews unconditionally.
func (db *DB) InsertReviews(ctx context.Context, reviews []Review) error {
	return db.SaveBatch(ctx, nil, reviews)
}

func insertGames(ctx context.Context, tx *sql.Tx, games []Game) error {
	if len(games) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO game_details
		(appid, name, description, price, release_date, developer, publisher, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare game insert: %w", err)
	}
	defer stmt.Close()

	for _, g := range games {
		if _, err := stmt.ExecContext(ctx, g.AppID, g.Name, g.Description, g.Price,
			g.ReleaseDate, g.Developer, g.Publisher, g.Tags); err != nil {
			return fmt.Errorf("insert game %d: %w", g.AppID, err)
		}
	}
	return nil
}

func insertReviews(ctx context.Context, tx *sql.Tx, reviews []Review) error {
	if len(reviews) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO game_reviews
		(appid, review_text, voted_up, timestamp_created, author_playtime_forever,
		author_playtime_last_two_weeks, author_num_reviews)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare review insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range reviews {
		if _, err := stmt.ExecContext(ctx, r.AppID, r.Text, r.VotedUp, r.TimestampCreated,
			r.PlaytimeForever, r.PlaytimeLastTwoWeeks, r.AuthorNumReviews); err != nil {
			return fmt.Errorf("insert review for %d: %w", r.AppID, err)
		}
	}
	return nil
}

// GetAllGames returns every stored game in appid order.
func (db *DB) GetAllGames() ([]Game, error) {
	rows, err := db.conn.Query(`SELECT ` + gameColumns + ` FROM game_details ORDER BY appid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanGames(rows)
}

// GetGame returns a single game or nil if absent.
func (db *DB) GetGame(appID int64) (*Game, error) {
	var g Game
	err := db.conn.QueryRow(`SELECT `+gameColumns+` FROM game_details WHERE appid = ?`, appID).Scan(
		&g.AppID, &g.Name, &g.Description, &g.Price, &g.ReleaseDate, &g.Developer, &g.Publisher, &g.Tags,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// GetAllReviews returns every stored review in insertion order.
func (db *DB) GetAllReviews() ([]Review, error) {
	rows, err := db.conn.Query(`SELECT ` + reviewColumns + ` FROM game_reviews ORDER BY review_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReviews(rows)
}

// GetReviewsForGame returns up to limit reviews for one game, newest first.
func (db *DB) GetReviewsForGame(appID int64, limit int) ([]Review, error) {
	rows, err := db.conn.Query(
		`SELECT `+reviewColumns+` FROM game_reviews WHERE appid = ?
		ORDER BY timestamp_created DESC, review_id DESC LIMIT ?`, appID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReviews(rows)
}

// GetStats counts stored games and reviews.
func (db *DB) GetStats() (*Stats, error) {
	var s Stats
	err := db.conn.QueryRow(`SELECT
		(SELECT COUNT(*) FROM game_details),
		(SELECT COUNT(*) FROM game_reviews),
		(SELECT COUNT(DISTINCT appid) FROM game_reviews)`).Scan(&s.Games, &s.Reviews, &s.ReviewedGames)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanGames(rows *sql.Rows) ([]Game, error) {
	var result []Game
	for rows.Next() {
		var g Game
		if err := rows.Scan(&g.AppID, &g.Name, &g.Description, &g.Price, &g.ReleaseDate,
			&g.Developer, &g.Publisher, &g.Tags); err != nil {
			return nil, err
		}
		result = append(result, g)
	}
	return result, rows.Err()
}

func scanReviews(rows *sql.Rows) ([]Review, error) {
	var result []Review
	for rows.Next() {
		var r Review
		if err := rows.Scan(&r.ID, &r.AppID, &r.Text, &r.VotedUp, &r.TimestampCreated,
			&r.PlaytimeForever, &r.PlaytimeLastTwoWeeks, &r.AuthorNumReviews); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}
