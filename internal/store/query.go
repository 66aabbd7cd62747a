package store

// Query is a structured query understood by every backend.
type Query interface {
	isQuery()
}

// MatchQuery is analyzed full-text matching; any term may match.
type MatchQuery struct {
	Field string
	Text  string
}

// TermQuery matches an exact, unanalyzed value.
type TermQuery struct {
	Field string
	Value string
}

// RangeQuery bounds a numeric field. Nil bounds are open.
type RangeQuery struct {
	Field string
	GT    *float64
	GTE   *float64
	LT    *float64
	LTE   *float64
}

// PhrasePrefixQuery matches the analyzed phrase with its last term treated
// as a prefix, expanded to at most MaxExpansions terms.
type PhrasePrefixQuery struct {
	Field         string
	Text          string
	MaxExpansions int
}

// BoolQuery requires every Must and Filter clause. Filter clauses do not
// contribute to the score where the backend distinguishes the two.
type BoolQuery struct {
	Must   []Query
	Filter []Query
}

// MatchAllQuery matches every document.
type MatchAllQuery struct{}

func (MatchQuery) isQuery()        {}
func (TermQuery) isQuery()         {}
func (RangeQuery) isQuery()        {}
func (PhrasePrefixQuery) isQuery() {}
func (BoolQuery) isQuery()         {}
func (MatchAllQuery) isQuery()     {}

// Float returns a pointer to v, for RangeQuery bounds.
func Float(v float64) *float64 {
	return &v
}
