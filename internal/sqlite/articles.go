package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"

	"github.com/thebrief/briefbot/internal/brief"
)

const articleNamespace = "-art"

func (r Repo) Article(ctx context.Context, id string) (brief.Article, error) {
	const q = `SELECT * FROM articles WHERE id = ?;`

	var article brief.Article
	err := r.db.GetContext(ctx, &article, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return brief.Article{}, brief.ErrNotFound
	}
	if err != nil {
		return brief.Article{}, fmt.Errorf("error fetching article: %s", err)
	}

	return article, nil
}

func (r Repo) ArticleByURL(ctx context.Context, url string) (brief.Article, error) {
	const q = `SELECT * FROM articles WHERE url = ?;`

	var article brief.Article
	err := r.db.GetContext(ctx, &article, q, url)
	if errors.Is(err, sql.ErrNoRows) {
		return brief.Article{}, brief.ErrNotFound
	}
	if err != nil {
		return brief.Article{}, fmt.Errorf("error fetching article by url: %s", err)
	}

	return article, nil
}

// InsertArticle writes a new article row.
//
// A unique-constraint hit on the url column becomes a [brief.DuplicateError]
// carrying the existing row's id: this is the authoritative dedup check, and
// closes the race left open by any pre-flight lookup.
func (r Repo) InsertArticle(ctx context.Context, article brief.Article) (brief.Article, error) {
	const q = `INSERT INTO articles
	(id, url, title, headline, summary, thumbnail_url, source_name, source_favicon, author, published_at, raw_content, ingested_by, ingested_at, status)
	VALUES
	(:id, :url, :title, :headline, :summary, :thumbnail_url, :source_name, :source_favicon, :author, :published_at, :raw_content, :ingested_by, :ingested_at, :status);`

	article.ID = fmt.Sprintf("%s%s", uuid.NewString(), articleNamespace)
	if article.IngestedAt.IsZero() {
		article.IngestedAt = time.Now().UTC()
	}
	if article.Status == "" {
		article.Status = brief.ArticleStatusActive
	}

	_, err := r.db.NamedExecContext(ctx, q, article)
	if sqliteErr := (&sqlite.Error{}); errors.As(err, &sqliteErr) && sqliteErr.Code() == codeConstraintUnique {
		dup := &brief.DuplicateError{URL: article.URL}
		if existing, lookupErr := r.ArticleByURL(ctx, article.URL); lookupErr == nil {
			dup.ExistingID = existing.ID
		}
		return brief.Article{}, dup
	}
	if err != nil {
		return brief.Article{}, fmt.Errorf("error inserting article: %s", err)
	}

	return r.Article(ctx, article.ID)
}

func (r Repo) InsertArticleTags(ctx context.Context, links []brief.ArticleTag) error {
	if len(links) == 0 {
		return nil
	}

	const q = `INSERT INTO article_tags (article_id, tag_id, source)
	VALUES (:article_id, :tag_id, :source)
	ON CONFLICT(article_id, tag_id) DO NOTHING;`
	if _, err := r.db.NamedExecContext(ctx, q, links); err != nil {
		return fmt.Errorf("error inserting article tags: %s", err)
	}

	return nil
}

// ArticleTags returns the tag names linked to an article, for hydrating
// responses.
func (r Repo) ArticleTags(ctx context.Context, articleID string) ([]string, error) {
	const q = `SELECT t.name FROM tags t
	JOIN article_tags at ON at.tag_id = t.id
	WHERE at.article_id = ?;`

	var names []string
	if err := r.db.SelectContext(ctx, &names, q, articleID); err != nil {
		return nil, fmt.Errorf("error fetching article tags: %s", err)
	}

	return names, nil
}
