package classification

import (
	"context"
	"fmt"
	"time"

	"github.com/inful/docgen/internal/block"
	"github.com/inful/docgen/internal/domain"
)

// sectionStore is the narrow slice of internal/store.Store that
// ClassifyAndPersist needs, kept as an interface so tests can fake it
// without spinning up SQLite.
type sectionStore interface {
	CreateSection(ctx context.Context, sec domain.Section) (int, error)
}

// ClassifyAndPersist runs the classification Service over every block of a
// parsed document (body blocks only; headers/footers are scored for
// determinism but use the same rule set via their STATIC structural
// indicator) and persists exactly one Section row per block. DYNAMIC
// sections carry a prompt-config recording the confidence, method, and
// justification that produced the decision; STATIC sections carry none.
func ClassifyAndPersist(ctx context.Context, svc *Service, st sectionStore, templateVersionID string, blocks []block.Block) ([]domain.Section, error) {
	sections := make([]domain.Section, 0, len(blocks))
	now := time.Now()

	for i, b := range blocks {
		res := svc.Classify(ctx, blocks, i)

		sec := domain.Section{
			TemplateVersionID: templateVersionID,
			SectionType:       res.SectionType,
			StructuralPath:    b.StructuralPath(),
			CreatedAt:         now,
		}
		if res.SectionType == domain.SectionDynamic {
			sec.PromptConfig = map[string]any{
				"classification_confidence": res.Confidence,
				"classification_method":     string(res.Method),
				"justification":             res.Justification,
				"metadata":                  res.Metadata,
			}
		}

		id, err := st.CreateSection(ctx, sec)
		if err != nil {
			return nil, fmt.Errorf("persist section for block %s: %w", b.BlockID, err)
		}
		sec.ID = id
		sections = append(sections, sec)
	}
	return sections, nil
}
