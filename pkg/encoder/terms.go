package encoder

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/models"
)

// flattenTerms collects every taxonomy term attached to the content object
// and prepends each term's ancestor chain, so no term in the result
// appears before any of its ancestors. Attached terms are flagged
// belongs_to_document=true; ancestors pulled in only for parent linkage
// are flagged false.
func (e *Encoder) flattenTerms(ctx context.Context, contentID int64) ([]models.DocumentTerm, error) {
	attached, err := e.reader.AttachedTerms(ctx, contentID)
	if err != nil {
		return nil, err
	}

	var flattened []models.DocumentTerm
	seen := map[int64]int{} // source term id -> index in flattened

	for _, term := range attached {
		chain := []models.DocumentTerm{documentTerm(term, true)}

		parentID := term.ParentID
		for parentID != 0 {
			parent, err := e.reader.TermByID(ctx, parentID)
			if err != nil {
				e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
					"term_id":   term.ID,
					"parent_id": parentID,
				}).Warn("Failed to walk term ancestry, truncating chain")
				break
			}
			chain = append([]models.DocumentTerm{documentTerm(*parent, false)}, chain...)
			parentID = parent.ParentID
		}

		for _, t := range chain {
			if i, ok := seen[t.SourceID]; ok {
				// An ancestor added earlier may turn out to be attached
				// itself.
				if t.BelongsToDocument {
					flattened[i].BelongsToDocument = true
				}
				continue
			}
			seen[t.SourceID] = len(flattened)
			flattened = append(flattened, t)
		}
	}

	return flattened, nil
}

func documentTerm(term models.LocalTerm, belongs bool) models.DocumentTerm {
	return models.DocumentTerm{
		SourceID:          term.ID,
		ParentID:          term.ParentID,
		Slug:              term.Slug,
		Taxonomy:          term.Taxonomy,
		Name:              term.Name,
		BelongsToDocument: belongs,
	}
}
