package sqlite

import (
	"context"
	"fmt"

	"github.com/thebrief/briefbot/internal/brief"
)

// AllTags retrieves the entire taxonomy. The pipeline reads it once per
// ingestion to build the enrichment prompt's allowed vocabulary.
func (r Repo) AllTags(ctx context.Context) ([]brief.Tag, error) {
	const q = `SELECT * FROM tags;`

	var tags []brief.Tag
	if err := r.db.SelectContext(ctx, &tags, q); err != nil {
		return nil, fmt.Errorf("error selecting tags: %s", err)
	}

	return tags, nil
}
