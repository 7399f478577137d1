package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS game_details (
    appid INTEGER PRIMARY KEY,
    name TEXT,
    description TEXT,
    price TEXT,
    release_date TEXT,
    developer TEXT,
    publisher TEXT,
    tags TEXT
);

CREATE TABLE IF NOT EXISTS game_reviews (
    review_id INTEGER PRIMARY KEY AUTOINCREMENT,
    appid INTEGER,
    review_text TEXT,
    voted_up BOOLEAN,
    timestamp_created INTEGER,
    author_playtime_forever INTEGER,
    author_playtime_last_two_weeks INTEGER,
    author_num_reviews INTEGER,
    FOREIGN KEY (appid) REFERENCES game_details (appid)
);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "index reviews by appid",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_game_reviews_appid ON game_reviews(appid)`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
