package similarity

import (
	"context"
	"fmt"
	"sort"
	"time"

	"horse.fit/argus/internal/db"
	"horse.fit/argus/internal/vectorstore"
)

// candidateANNLimit is the ANN top-k considered per article (§4.F).
const candidateANNLimit = 50

// lookbackDays/lookaheadDays bound the entity-overlap query's temporal
// window relative to the article's own best-available date (§4.F).
const (
	lookbackDays  = 14
	lookaheadDays = 1
)

// Candidate is one article paired with its combined score against the
// query article, ready for the Clustering Engine's assignment decision.
type Candidate struct {
	Report Report
}

// Gatherer runs the §4.F dual-query candidate search: an ANN top-k against
// the vector store plus a DB entity-overlap query within the temporal
// window, merged and scored by Engine.Score. Grounded on
// findSemanticCandidatesTx's two-source-then-score shape in
// janitrai-scoop/scoop/internal/pipeline/service.go.
type Gatherer struct {
	pool   *db.Pool
	store  *vectorstore.Store
	engine *Engine
}

func NewGatherer(pool *db.Pool, store *vectorstore.Store, engine *Engine) *Gatherer {
	return &Gatherer{pool: pool, store: store, engine: engine}
}

// Candidates returns every candidate article the dual query surfaces for
// articleID, scored and sorted by Combined descending. facts.Date is the
// article's COALESCE(event_date, pub_date) value used both for the ANN
// lookback cutoff and the entity-overlap window.
func (g *Gatherer) Candidates(ctx context.Context, facts ArticleFacts) ([]Candidate, error) {
	since := facts.Date
	var annSince *time.Time
	if since != nil {
		cutoff := since.AddDate(0, 0, -lookbackDays)
		annSince = &cutoff
	}

	annHits, err := g.store.TopK(ctx, facts.Embedding, candidateANNLimit, facts.ArticleID, annSince)
	if err != nil {
		return nil, fmt.Errorf("ann top_k for article %d: %w", facts.ArticleID, err)
	}

	byID := make(map[int64]struct{}, len(annHits))
	ids := make([]int64, 0, len(annHits))
	for _, hit := range annHits {
		if _, seen := byID[hit.ArticleID]; seen {
			continue
		}
		byID[hit.ArticleID] = struct{}{}
		ids = append(ids, hit.ArticleID)
	}

	if since != nil {
		windowStart := since.AddDate(0, 0, -lookbackDays)
		windowEnd := since.AddDate(0, 0, lookaheadDays)
		overlapHits, err := g.pool.FindEntityOverlapCandidates(ctx, facts.ArticleID, windowStart, windowEnd)
		if err != nil {
			return nil, fmt.Errorf("entity overlap candidates for article %d: %w", facts.ArticleID, err)
		}
		for _, hit := range overlapHits {
			if _, seen := byID[hit.ArticleID]; seen {
				continue
			}
			byID[hit.ArticleID] = struct{}{}
			ids = append(ids, hit.ArticleID)
		}
	}

	candidates := make([]Candidate, 0, len(ids))
	for _, id := range ids {
		other, err := g.loadFacts(ctx, id)
		if err != nil {
			return nil, err
		}
		report := g.engine.Score(facts, other)
		candidates = append(candidates, Candidate{Report: report})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Report.Combined > candidates[j].Report.Combined
	})
	return candidates, nil
}

// loadFacts reconstructs ArticleFacts for a candidate article from the
// vector store and the entity link table.
func (g *Gatherer) loadFacts(ctx context.Context, articleID int64) (ArticleFacts, error) {
	embedding, ok, err := g.store.FetchVector(ctx, articleID)
	if err != nil {
		return ArticleFacts{}, fmt.Errorf("fetch embedding for candidate article %d: %w", articleID, err)
	}
	if !ok {
		return ArticleFacts{ArticleID: articleID}, nil
	}

	article, err := g.pool.GetArticle(ctx, articleID)
	if err != nil {
		return ArticleFacts{}, fmt.Errorf("load candidate article %d: %w", articleID, err)
	}
	rows, err := g.pool.GetArticleEntities(ctx, articleID)
	if err != nil {
		return ArticleFacts{}, fmt.Errorf("load entities for candidate article %d: %w", articleID, err)
	}

	refs := make([]EntityRef, 0, len(rows))
	for _, r := range rows {
		refs = append(refs, EntityRef{EntityID: r.EntityID, Type: r.Type, Importance: r.Importance})
	}

	return ArticleFacts{
		ArticleID: articleID,
		Embedding: embedding,
		Entities:  refs,
		Date:      articleDate(article),
	}, nil
}

// articleDate implements COALESCE(event_date, pub_date) for an Article,
// parsing the free-text event_date against its YYYY-MM-DD contract (§4.A).
func articleDate(a db.Article) *time.Time {
	if a.EventDate != nil {
		if t, err := time.Parse("2006-01-02", *a.EventDate); err == nil {
			return &t
		}
	}
	return a.PubDate
}
