package prepare

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/TobiSchelling/gamerec/internal/database"
)

var tableHeader = []string{"appid", "name", "description", "price", "release_date", "developer", "publisher", "tags"}

// WriteGames writes the filtered entry table as CSV with a header row.
func WriteGames(path string, games []database.Game) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(tableHeader); err != nil {
		f.Close()
		return err
	}
	for _, g := range games {
		rec := []string{
			strconv.FormatInt(g.AppID, 10), g.Name, g.Description, g.Price,
			g.ReleaseDate, g.Developer, g.Publisher, g.Tags,
		}
		if err := w.Write(rec); err != nil {
			f.Close()
			return fmt.Errorf("writing row for %d: %w", g.AppID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flushing %s: %w", path, err)
	}
	return f.Close()
}

// ReadGames reads a table written by WriteGames. Rows shorter than the
// header are padded with empty fields.
func ReadGames(path string) ([]database.Game, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header of %s: %w", path, err)
	}
	if len(header) == 0 || header[0] != "appid" {
		return nil, fmt.Errorf("%s: unexpected header %v", path, header)
	}

	var games []database.Game
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		for len(rec) < len(tableHeader) {
			rec = append(rec, "")
		}
		id, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: bad appid %q", path, line, rec[0])
		}
		games = append(games, database.Game{
			AppID:       id,
			Name:        rec[1],
			Description: rec[2],
			Price:       rec[3],
			ReleaseDate: rec[4],
			Developer:   rec[5],
			Publisher:   rec[6],
			Tags:        rec[7],
		})
	}
	return games, nil
}
