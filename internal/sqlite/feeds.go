package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"modernc.org/sqlite"

	"github.com/thebrief/briefbot/internal/brief"
)

const feedNamespace = "-fd"

func (r Repo) FeedSource(ctx context.Context, id string) (brief.FeedSource, error) {
	const q = `SELECT * FROM feed_sources WHERE id = ?;`

	var src brief.FeedSource
	err := r.db.GetContext(ctx, &src, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return brief.FeedSource{}, brief.ErrNotFound
	}
	if err != nil {
		return brief.FeedSource{}, fmt.Errorf("error fetching feed source: %s", err)
	}

	return src, nil
}

func (r Repo) FeedSourceByURL(ctx context.Context, url string) (brief.FeedSource, error) {
	const q = `SELECT * FROM feed_sources WHERE url = ?;`

	var src brief.FeedSource
	err := r.db.GetContext(ctx, &src, q, url)
	if errors.Is(err, sql.ErrNoRows) {
		return brief.FeedSource{}, brief.ErrNotFound
	}
	if err != nil {
		return brief.FeedSource{}, fmt.Errorf("error fetching feed source by url: %s", err)
	}

	return src, nil
}

// ActiveFeedSources retrieves every feed currently enabled for polling.
func (r Repo) ActiveFeedSources(ctx context.Context) ([]brief.FeedSource, error) {
	query, args, err := sq.Select("*").From("feed_sources").Where(sq.Eq{"active": true}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("error constructing sql: %s", err)
	}

	var srcs []brief.FeedSource
	if err := r.db.SelectContext(ctx, &srcs, query, args...); err != nil {
		return nil, fmt.Errorf("error selecting active feed sources: %s", err)
	}

	return srcs, nil
}

func (r Repo) InsertFeedSource(ctx context.Context, src brief.FeedSource) (brief.FeedSource, error) {
	const q = `INSERT INTO feed_sources (id, name, url, feed_type, active, fetch_interval_minutes)
	VALUES (:id, :name, :url, :feed_type, :active, :fetch_interval_minutes);`

	src.ID = fmt.Sprintf("%s%s", uuid.NewString(), feedNamespace)
	if src.FeedType == "" {
		src.FeedType = "rss"
	}
	if src.FetchIntervalMinutes == 0 {
		src.FetchIntervalMinutes = 120
	}

	_, err := r.db.NamedExecContext(ctx, q, src)
	if sqliteErr := (&sqlite.Error{}); errors.As(err, &sqliteErr) && sqliteErr.Code() == codeConstraintUnique {
		dup := &brief.DuplicateError{URL: src.URL}
		if existing, lookupErr := r.FeedSourceByURL(ctx, src.URL); lookupErr == nil {
			dup.ExistingID = existing.ID
		}
		return brief.FeedSource{}, dup
	}
	if err != nil {
		return brief.FeedSource{}, fmt.Errorf("error inserting feed source: %s", err)
	}

	return r.FeedSource(ctx, src.ID)
}

// TouchFeedSource stamps last_fetched_at after a poll attempt, regardless of
// how the poll went. Last writer wins.
func (r Repo) TouchFeedSource(ctx context.Context, id string, at time.Time) error {
	query, args, err := sq.Update("feed_sources").
		Set("last_fetched_at", at.UTC()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("error constructing sql: %s", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("error updating feed source: %s", err)
	}

	return nil
}
