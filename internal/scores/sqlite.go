package scores

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/neevjustin/sales-portal/internal/dbopen"
)

const schema = `
CREATE TABLE IF NOT EXISTS scores (
	campaign_id INTEGER NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id INTEGER NOT NULL,
	parameter TEXT NOT NULL,
	points REAL NOT NULL,
	PRIMARY KEY (campaign_id, entity_type, entity_id, parameter)
);
`

// SQLiteStore persists scores in a SQLite table.
type SQLiteStore struct {
	DBPath string
	db     *sql.DB
}

// OpenSQLite opens or creates the score table at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := dbopen.Open(path, dbopen.WithSchema(schema))
	if err != nil {
		return nil, fmt.Errorf("open score db: %w", err)
	}
	return &SQLiteStore{DBPath: path, db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// ReplaceScopes deletes and reinserts every listed scope in one transaction.
func (s *SQLiteStore) ReplaceScopes(ctx context.Context, campaign int64, scopes map[EntityType][]Row) error {
	for et, rows := range scopes {
		if err := checkScope(et, rows); err != nil {
			return err
		}
	}
	return dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, et := range []EntityType{Employee, Team, BusinessUnit} {
			rows, ok := scopes[et]
			if !ok {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM scores WHERE campaign_id = ? AND entity_type = ?",
				campaign, string(et),
			); err != nil {
				return fmt.Errorf("clear %s scores: %w", et, err)
			}
			if err := insertRows(ctx, tx, campaign, rows); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReplaceEntity deletes and reinserts the rows of a single entity.
func (s *SQLiteStore) ReplaceEntity(ctx context.Context, campaign int64, entityType EntityType, entityID int64, rows []Row) error {
	if err := checkScope(entityType, rows); err != nil {
		return err
	}
	for _, r := range rows {
		if r.EntityID != entityID {
			return fmt.Errorf("row for entity %d in replacement of entity %d", r.EntityID, entityID)
		}
	}
	return dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM scores WHERE campaign_id = ? AND entity_type = ? AND entity_id = ?",
			campaign, string(entityType), entityID,
		); err != nil {
			return fmt.Errorf("clear %s %d scores: %w", entityType, entityID, err)
		}
		return insertRows(ctx, tx, campaign, rows)
	})
}

func insertRows(ctx context.Context, tx *sql.Tx, campaign int64, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO scores (campaign_id, entity_type, entity_id, parameter, points)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare score insert: %w", err)
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, campaign, string(r.EntityType), r.EntityID, r.Parameter, r.Points); err != nil {
			return fmt.Errorf("insert score %s %d %q: %w", r.EntityType, r.EntityID, r.Parameter, err)
		}
	}
	return nil
}

// Rows lists the rows of a scope, or of one entity when entityID is non-zero.
func (s *SQLiteStore) Rows(ctx context.Context, campaign int64, entityType EntityType, entityID int64) ([]Row, error) {
	query := `
		SELECT entity_type, entity_id, parameter, points
		FROM scores
		WHERE campaign_id = ? AND entity_type = ?`
	args := []any{campaign, string(entityType)}
	if entityID != 0 {
		query += " AND entity_id = ?"
		args = append(args, entityID)
	}
	query += " ORDER BY entity_id, parameter"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query scores: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var et string
		if err := rows.Scan(&et, &r.EntityID, &r.Parameter, &r.Points); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		r.EntityType = EntityType(et)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scores: %w", err)
	}
	return out, nil
}

// Total sums the points of one entity. An entity without rows totals zero.
func (s *SQLiteStore) Total(ctx context.Context, campaign int64, entityType EntityType, entityID int64) (float64, error) {
	var total sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT SUM(points) FROM scores
		WHERE campaign_id = ? AND entity_type = ? AND entity_id = ?
	`, campaign, string(entityType), entityID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum scores: %w", err)
	}
	return total.Float64, nil
}

// Ranking orders the entities of a scope by summed points.
func (s *SQLiteStore) Ranking(ctx context.Context, campaign int64, entityType EntityType) ([]Standing, error) {
	rows, err := s.Rows(ctx, campaign, entityType, 0)
	if err != nil {
		return nil, err
	}
	return Rank(rows), nil
}
