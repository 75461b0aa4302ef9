package core

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Review is a user's published album review.
type Review struct {
	Reviewer    string    `json:"reviewer"`
	AlbumID     int64     `json:"album_id"`
	Rating      int       `json:"rating"`
	Content     string    `json:"content"`
	PublishedAt time.Time `json:"published_at"`
}

// Vote is a user's up/down vote on a review. Value is +1 or -1.
type Vote struct {
	Voter    string    `json:"voter"`
	Reviewer string    `json:"reviewer"`
	AlbumID  int64     `json:"album_id"`
	Value    int       `json:"value"`
	CastAt   time.Time `json:"cast_at"`
}

// Report flags a review for moderation.
type Report struct {
	Reporter string    `json:"reporter"`
	Reviewer string    `json:"reviewer"`
	AlbumID  int64     `json:"album_id"`
	FiledAt  time.Time `json:"filed_at"`
}

// BacklogEntry is an album a user plans to listen to.
type BacklogEntry struct {
	Username string    `json:"username"`
	AlbumID  int64     `json:"album_id"`
	AddedAt  time.Time `json:"added_at"`
}

// LibraryRepository exposes the read-only projections the user pages need.
// Review and vote content is owned elsewhere; this layer only lists it.
type LibraryRepository interface {
	ReviewsByUser(ctx context.Context, username string, index, limit int) ([]Review, error)
	// VotesByUser filters on value when it is non-nil (+1 upvotes, -1 downvotes).
	VotesByUser(ctx context.Context, username string, value *int, index, limit int) ([]Vote, error)
	ReportsByUser(ctx context.Context, username string, index, limit int) ([]Report, error)
	BacklogByUser(ctx context.Context, username string, index, limit int) ([]BacklogEntry, error)
}

// PgLibraryRepository implements LibraryRepository using pgxpool.
type PgLibraryRepository struct {
	db *pgxpool.Pool
}

func NewPgLibraryRepository(db *pgxpool.Pool) *PgLibraryRepository {
	return &PgLibraryRepository{db: db}
}

func (r *PgLibraryRepository) ReviewsByUser(ctx context.Context, username string, index, limit int) ([]Review, error) {
	rows, err := r.db.Query(ctx, `
SELECT reviewer, album_id, rating, content, published_at
FROM reviews
WHERE reviewer=$1
ORDER BY published_at DESC
LIMIT $2 OFFSET $3
`, username, limit, index)
	if err != nil {
		return nil, WrapError(KindDependency, "error.internal", err)
	}
	defer rows.Close()
	items := make([]Review, 0, limit)
	for rows.Next() {
		var v Review
		if err := rows.Scan(&v.Reviewer, &v.AlbumID, &v.Rating, &v.Content, &v.PublishedAt); err != nil {
			return nil, WrapError(KindDependency, "error.internal", err)
		}
		items = append(items, v)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapError(KindDependency, "error.internal", err)
	}
	return items, nil
}

func (r *PgLibraryRepository) VotesByUser(ctx context.Context, username string, value *int, index, limit int) ([]Vote, error) {
	const base = `
SELECT voter, reviewer, album_id, value, cast_at
FROM votes
WHERE voter=$1 AND ($2::int IS NULL OR value=$2)
ORDER BY cast_at DESC
LIMIT $3 OFFSET $4
`
	rows, err := r.db.Query(ctx, base, username, value, limit, index)
	if err != nil {
		return nil, WrapError(KindDependency, "error.internal", err)
	}
	defer rows.Close()
	items := make([]Vote, 0, limit)
	for rows.Next() {
		var v Vote
		if err := rows.Scan(&v.Voter, &v.Reviewer, &v.AlbumID, &v.Value, &v.CastAt); err != nil {
			return nil, WrapError(KindDependency, "error.internal", err)
		}
		items = append(items, v)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapError(KindDependency, "error.internal", err)
	}
	return items, nil
}

func (r *PgLibraryRepository) ReportsByUser(ctx context.Context, username string, index, limit int) ([]Report, error) {
	rows, err := r.db.Query(ctx, `
SELECT reporter, reviewer, album_id, filed_at
FROM reports
WHERE reporter=$1
ORDER BY filed_at DESC
LIMIT $2 OFFSET $3
`, username, limit, index)
	if err != nil {
		return nil, WrapError(KindDependency, "error.internal", err)
	}
	defer rows.Close()
	items := make([]Report, 0, limit)
	for rows.Next() {
		var v Report
		if err := rows.Scan(&v.Reporter, &v.Reviewer, &v.AlbumID, &v.FiledAt); err != nil {
			return nil, WrapError(KindDependency, "error.internal", err)
		}
		items = append(items, v)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapError(KindDependency, "error.internal", err)
	}
	return items, nil
}

func (r *PgLibraryRepository) BacklogByUser(ctx context.Context, username string, index, limit int) ([]BacklogEntry, error) {
	rows, err := r.db.Query(ctx, `
SELECT username, album_id, added_at
FROM backlog_entries
WHERE username=$1
ORDER BY added_at DESC
LIMIT $2 OFFSET $3
`, username, limit, index)
	if err != nil {
		return nil, WrapError(KindDependency, "error.internal", err)
	}
	defer rows.Close()
	items := make([]BacklogEntry, 0, limit)
	for rows.Next() {
		var v BacklogEntry
		if err := rows.Scan(&v.Username, &v.AlbumID, &v.AddedAt); err != nil {
			return nil, WrapError(KindDependency, "error.internal", err)
		}
		items = append(items, v)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapError(KindDependency, "error.internal", err)
	}
	return items, nil
}
