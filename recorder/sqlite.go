package recorder

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteSink inserts records into the battle_turns table, one transaction
// per row.
type SQLiteSink struct {
	mu     sync.Mutex
	db     *sql.DB
	insert string
}

var columnTypes = map[string]string{
	"turn":                     "INTEGER",
	"active_hp":                "INTEGER",
	"active_max_hp":            "INTEGER",
	"active_hp_fraction":       "REAL",
	"active_atk":               "INTEGER",
	"active_def":               "INTEGER",
	"active_spa":               "INTEGER",
	"active_spd":               "INTEGER",
	"active_spe":               "INTEGER",
	"opponent_hp":              "INTEGER",
	"opponent_max_hp":          "INTEGER",
	"opponent_hp_fraction":     "REAL",
	"opponent_atk":             "INTEGER",
	"opponent_def":             "INTEGER",
	"opponent_spa":             "INTEGER",
	"opponent_spd":             "INTEGER",
	"opponent_spe":             "INTEGER",
	"selected_move_base_power": "INTEGER",
	"selected_move_accuracy":   "INTEGER",
	"damage_dealt":             "REAL",
	"fainted":                  "INTEGER",
	"won_battle":               "INTEGER",
}

func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// In-memory databases are per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &SQLiteSink{db: db}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	s.insert = fmt.Sprintf("INSERT INTO battle_turns (%s) VALUES (%s)",
		strings.Join(Columns, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(Columns)), ", "))
	return s, nil
}

// Migrate creates the battle_turns table if needed.
func (s *SQLiteSink) Migrate() error {
	defs := make([]string, 0, len(Columns)+1)
	defs = append(defs, "id INTEGER PRIMARY KEY AUTOINCREMENT")
	for _, c := range Columns {
		typ, ok := columnTypes[c]
		if !ok {
			typ = "TEXT"
		}
		defs = append(defs, c+" "+typ)
	}
	stmts := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS battle_turns (\n\t%s\n)", strings.Join(defs, ",\n\t")),
		"CREATE INDEX IF NOT EXISTS idx_battle_turns_tag ON battle_turns(battle_tag, turn)",
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *SQLiteSink) Write(r *TurnRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if _, err := tx.Exec(s.insert, r.Values()...); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to insert turn: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit turn: %w", err)
	}
	return nil
}

// CountTurns returns the number of rows recorded for a battle.
func (s *SQLiteSink) CountTurns(battleTag string) (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM battle_turns WHERE battle_tag = ?", battleTag).Scan(&n)
	return n, err
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
