package database

import (
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// Querier abstracts *sql.DB / *sql.Tx for the raw query path
type Querier interface {
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// AvatarHistoryRow is the flattened read model returned by the history query.
// The write path goes through GORM; this read path builds its query with
// squirrel because the filters are optional and combine dynamically.
type AvatarHistoryRow struct {
	ID        uint
	ObjectKey string
	PublicURL string
	Width     int
	Height    int
	SizeBytes int
	Origin    string
	CreatedAt int64
}

// AvatarHistoryFilter narrows the history listing. Zero values mean "no filter".
type AvatarHistoryFilter struct {
	Origin       string
	CreatedAfter int64 // unix seconds
	Limit        uint64
}

// ListAvatarHistory returns the saved avatars for a user, newest first.
func ListAvatarHistory(db Querier, userID uint, filter AvatarHistoryFilter) ([]AvatarHistoryRow, error) {
	queryBuilder := psql.Select(
		"id", "object_key", "public_url", "width", "height", "size_bytes", "origin",
		"strftime('%s', created_at)",
	).
		From("avatar_records").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC")

	if filter.Origin != "" {
		queryBuilder = queryBuilder.Where(sq.Eq{"origin": filter.Origin})
	}
	if filter.CreatedAfter > 0 {
		queryBuilder = queryBuilder.Where(sq.Gt{"strftime('%s', created_at)": filter.CreatedAfter})
	}
	if filter.Limit > 0 {
		queryBuilder = queryBuilder.Limit(filter.Limit)
	}

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build avatar history query: %w", err)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query avatar history: %w", err)
	}
	defer rows.Close()

	var results []AvatarHistoryRow
	for rows.Next() {
		var row AvatarHistoryRow
		if err := rows.Scan(
			&row.ID, &row.ObjectKey, &row.PublicURL, &row.Width, &row.Height,
			&row.SizeBytes, &row.Origin, &row.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan avatar history row: %w", err)
		}
		results = append(results, row)
	}
	return results, rows.Err()
}
