// Package executor plans and runs index queries against the current
// generation and ranks the candidates it collects.
package executor

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/budget"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/generation"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/longarray"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/query"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/ranking"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/wordmeta"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/tracing"
	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"golang.org/x/sync/semaphore"
)

type SearchResult struct {
	Query      string              `json:"query"`
	Generation string              `json:"generation"`
	TotalHits  int                 `json:"total_hits"`
	Results    []ranking.ScoredDoc `json:"results"`
	TermStats  map[string]int64    `json:"term_stats"`
	DataCost   int64               `json:"data_cost"`
	Degraded   bool                `json:"degraded"`
	Plan       string              `json:"plan,omitempty"`
}

// Request is one query to execute. A zero Budget selects the configured
// default.
type Request struct {
	Plan   *parser.QueryPlan
	Limit  int
	Budget time.Duration
}

// Generations hands out reference-counted generations.
type Generations interface {
	Acquire() (*generation.Generation, error)
}

type Executor struct {
	gens      Generations
	cfg       config.SearchConfig
	metrics   *metrics.Metrics
	slots     *semaphore.Weighted
	blocklist *roaring64.Bitmap
	logger    *slog.Logger
}

// New creates an executor. m may be nil.
func New(gens Generations, cfg config.SearchConfig, m *metrics.Metrics) *Executor {
	return &Executor{
		gens:    gens,
		cfg:     cfg,
		metrics: m,
		slots:   semaphore.NewWeighted(int64(max(cfg.MaxConcurrent, 1))),
		logger:  slog.Default().With("component", "query-executor"),
	}
}

// SetBlocklist excludes the given documents from all results. It must be
// called before the executor serves queries.
func (e *Executor) SetBlocklist(docs *roaring64.Bitmap) {
	e.blocklist = docs
}

// Execute runs the request. Running out of budget is not an error: the
// candidates collected so far are ranked and the result is marked
// degraded.
func (e *Executor) Execute(ctx context.Context, req Request) (*SearchResult, error) {
	result := &SearchResult{
		Query:     req.Plan.RawQuery,
		Results:   []ranking.ScoredDoc{},
		TermStats: make(map[string]int64),
	}
	if req.Plan.IsEmpty() {
		return result, nil
	}
	if err := e.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for a query slot: %w", err)
	}
	defer e.slots.Release(1)

	g, err := e.gens.Acquire()
	if err != nil {
		return nil, err
	}
	defer g.Release()
	result.Generation = g.Name()

	limitMs := req.Budget.Milliseconds()
	if req.Budget <= 0 {
		limitMs = e.cfg.DefaultBudget.Milliseconds()
	}
	r := &run{
		exec:   e,
		gen:    g,
		plan:   req.Plan,
		budget: budget.New(limitMs),
		result: result,
	}
	outcome := "ok"
	if err := r.execute(ctx, req.Limit); err != nil {
		e.observe("error", result)
		return nil, err
	}
	switch {
	case result.Degraded:
		outcome = "degraded"
	case len(result.Results) == 0:
		outcome = "empty"
	}
	e.observe(outcome, result)
	e.logger.Debug("query executed",
		"query", req.Plan.RawQuery,
		"generation", result.Generation,
		"plan", result.Plan,
		"candidates", result.TotalHits,
		"results", len(result.Results),
		"data_cost", result.DataCost,
		"degraded", result.Degraded,
	)
	return result, nil
}

func (e *Executor) observe(outcome string, result *SearchResult) {
	if e.metrics == nil {
		return
	}
	e.metrics.QueriesTotal.WithLabelValues(outcome).Inc()
	if outcome != "error" {
		e.metrics.QueryDataCost.Observe(float64(result.DataCost))
		e.metrics.QueryResults.Observe(float64(len(result.Results)))
	}
	if result.Degraded {
		e.metrics.BudgetTimeouts.Inc()
	}
}

type includeTerm struct {
	parser.Term
	docFreq int64
}

// run is the state of one Execute call.
type run struct {
	exec   *Executor
	gen    *generation.Generation
	plan   *parser.QueryPlan
	budget *budget.Budget
	result *SearchResult
}

func (r *run) execute(ctx context.Context, limit int) error {
	full := r.gen.Full()
	includes := make([]includeTerm, 0, len(r.plan.Include))
	for _, t := range r.plan.Include {
		n, err := full.NumDocuments(t.ID)
		if err != nil {
			return err
		}
		r.result.TermStats[t.Text] = n
		if n == 0 {
			return nil
		}
		includes = append(includes, includeTerm{Term: t, docFreq: n})
	}
	slices.SortStableFunc(includes, func(a, b includeTerm) int { return cmp.Compare(a.docFreq, b.docFreq) })

	endPlan := tracing.Begin(ctx, "plan")
	q, err := r.buildQuery(includes)
	if err != nil {
		return err
	}
	r.result.Plan = q.String()
	endPlan("terms", len(includes))

	endCollect := tracing.Begin(ctx, "collect")
	candidates, err := r.collect(ctx, q)
	r.result.DataCost = q.DataCost()
	if err != nil {
		return err
	}
	r.result.TotalHits = len(candidates)
	endCollect("candidates", len(candidates), "data_cost", r.result.DataCost)
	if len(candidates) == 0 {
		return nil
	}

	endRank := tracing.Begin(ctx, "rank")
	err = r.rank(includes, candidates, limit)
	endRank("results", len(r.result.Results), "degraded", r.result.Degraded)
	return err
}

// buildQuery makes the rarest required term the source, read from the priority
// index first and the full index as fallback. The other required terms
// filter it in order of increasing cost, then exclusions apply.
func (r *run) buildQuery(includes []includeTerm) (*query.IndexQuery, error) {
	rarest := includes[0].ID
	prio, err := r.gen.Priority().Documents(rarest, query.DoPrefer)
	if err != nil {
		return nil, err
	}
	fallback, err := r.gen.Full().Documents(rarest, query.DoNotPrefer)
	if err != nil {
		return nil, err
	}
	q := query.New([]query.EntrySource{prio, fallback}, r.budget).
		SetFallbackThreshold(r.exec.cfg.FallbackThreshold)

	steps := make([]query.FilterStep, 0, len(includes)-1)
	for _, t := range includes[1:] {
		step, err := r.gen.Full().Also(t.ID)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	slices.SortStableFunc(steps, func(a, b query.FilterStep) int { return cmp.Compare(a.Cost(), b.Cost()) })
	for _, step := range steps {
		q.AddInclusionFilter(step)
	}
	for _, t := range r.plan.Exclude {
		step, err := r.gen.Full().Not(t.ID)
		if err != nil {
			return nil, err
		}
		q.AddInclusionFilter(step)
	}
	if bl := r.exec.blocklist; bl != nil && !bl.IsEmpty() {
		q.AddInclusionFilter(query.NotInSet("blocklist", bl))
	}
	return q, nil
}

// collect drains q into a sorted, deduplicated candidate list. Documents
// seen in the priority source are not repeated by the fallback source.
func (r *run) collect(ctx context.Context, q *query.IndexQuery) ([]int64, error) {
	maxCandidates := max(r.exec.cfg.MaxCandidates, 1)
	buf := longarray.NewQueryBuffer(max(r.exec.cfg.BufferSize, 1))
	seen := roaring64.New()
	for q.HasMore() && int(seen.GetCardinality()) < maxCandidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := q.GetMoreResults(buf)
		if apperrors.IsTimeout(err) {
			r.result.Degraded = true
			break
		}
		if err != nil {
			return nil, err
		}
		for _, doc := range buf.Values() {
			if doc >= 0 {
				seen.Add(uint64(doc))
			}
		}
	}
	out := make([]int64, 0, min(int(seen.GetCardinality()), maxCandidates))
	it := seen.Iterator()
	for it.HasNext() && len(out) < maxCandidates {
		out = append(out, int64(it.Next()))
	}
	return out, nil
}

// rank scores candidates from their per-term metadata and, budget
// permitting, the distance between term positions.
func (r *run) rank(includes []includeTerm, candidates []int64, limit int) error {
	full := r.gen.Full()
	metas := make([][]int64, len(includes))
	present := make([][]bool, len(includes))
	for i, t := range includes {
		m, found, err := full.TermMetadata(t.ID, candidates)
		if err != nil {
			return err
		}
		metas[i], present[i] = m, found
	}
	prefer := make([][]bool, len(r.plan.Prefer))
	for i, t := range r.plan.Prefer {
		_, found, err := full.TermMetadata(t.ID, candidates)
		if err != nil {
			return err
		}
		prefer[i] = found
	}
	positions, err := r.positions(includes, candidates)
	if err != nil {
		return err
	}

	valuator := ranking.NewValuator(int64(r.gen.Manifest().Documents))
	top := ranking.NewTopK(limit)
	matches := make([]ranking.TermMatch, len(includes))
	lists := make([][]int32, len(includes))
docs:
	for j, doc := range candidates {
		for i, t := range includes {
			if !present[i][j] {
				continue docs
			}
			matches[i] = ranking.TermMatch{TermID: t.ID, DocFreq: t.docFreq, Meta: wordmeta.Metadata(metas[i][j])}
		}
		preferred := 0
		for i := range prefer {
			if prefer[i][j] {
				preferred++
			}
		}
		scored := valuator.Valuate(doc, matches, preferred)
		if positions != nil {
			for i := range includes {
				lists[i] = positions[i][j]
			}
			if span, ok := ranking.MinSpan(lists); ok {
				scored = ranking.ApplyProximity(scored, span, len(includes))
			}
		}
		top.Offer(scored)
	}
	r.result.Results = top.Results()
	return nil
}

// positions loads term positions for multi-term queries with a single
// read covering every term. Running out of budget here degrades the result
// to mask-only ranking.
func (r *run) positions(includes []includeTerm, candidates []int64) ([][][]int32, error) {
	if len(includes) < 2 || !r.budget.HasTimeLeft() {
		return nil, nil
	}
	n := len(candidates)
	words := make([]int64, 0, len(includes)*n)
	for _, t := range includes {
		w, err := r.gen.Full().PositionWords(t.ID, candidates)
		if err != nil {
			return nil, err
		}
		words = append(words, w...)
	}
	data, err := r.gen.Positions().GetTermData(r.budget, words)
	if apperrors.IsTimeout(err) {
		r.result.Degraded = true
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	out := make([][][]int32, len(includes))
	var bytesRead int
	for i, t := range includes {
		out[i] = make([][]int32, n)
		for j, td := range data[i*n : (i+1)*n] {
			if td == nil {
				continue
			}
			bytesRead += len(td.Bytes())
			if out[i][j], err = td.Positions(); err != nil {
				return nil, fmt.Errorf("term %d doc %d: %w", t.ID, candidates[j], err)
			}
		}
	}
	if r.exec.metrics != nil {
		r.exec.metrics.PositionsBytesRead.Add(float64(bytesRead))
	}
	return out, nil
}
