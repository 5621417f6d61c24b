// Package query turns flat request parameters into a resource-agnostic read
// description: filter conditions, keyword search, ordering, projection and
// pagination. It performs no I/O; storage adapters render a Query into their
// own dialect.
package query

import (
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Reserved parameter names that never become filter conditions.
const (
	ParamPage    = "page"
	ParamLimit   = "limit"
	ParamSort    = "sort"
	ParamFields  = "fields"
	ParamKeyword = "keyword"
)

const (
	DefaultPage  = 1
	DefaultLimit = 50

	// MaxPage and MaxLimit cap requested paging so the skip stays in range.
	MaxPage  = 1_000_000
	MaxLimit = 1000

	// CreatedAt is the field used for the default newest-first ordering.
	CreatedAt = "createdAt"
)

var reserved = map[string]struct{}{
	ParamPage:    {},
	ParamLimit:   {},
	ParamSort:    {},
	ParamFields:  {},
	ParamKeyword: {},
}

// Op is a comparison operator of a filter condition.
type Op string

const (
	OpEq  Op = "eq"
	OpGte Op = "gte"
	OpGt  Op = "gt"
	OpLte Op = "lte"
	OpLt  Op = "lt"
)

var rangeOps = map[string]Op{
	"gte": OpGte,
	"gt":  OpGt,
	"lte": OpLte,
	"lt":  OpLt,
}

// Condition constrains Field with Op against a textual Value.
type Condition struct {
	Field string
	Op    Op
	Value string
}

// Order is one sort key.
type Order struct {
	Field string
	Desc  bool
}

// Query is the composed read description. Conditions are ANDed; when Keyword
// is set, a case-insensitive substring match over SearchFields is ORed and
// the result ANDed with Conditions.
type Query struct {
	Conditions   []Condition
	SearchFields []string
	Keyword      string
	Sort         []Order
	// Fields is an inclusion list; empty means the default projection.
	Fields []string
	// Limit of zero means unbounded.
	Limit int
	Skip  int
}

// Pagination describes the page returned to the client. Next and Prev are
// nil when no such page exists.
type Pagination struct {
	CurrentPage   int  `json:"currentPage"`
	Limit         int  `json:"limit"`
	NumberOfPages int  `json:"numberOfPages"`
	Next          *int `json:"next,omitempty"`
	Prev          *int `json:"prev,omitempty"`
}

// Builder composes a Query step by step. Steps are independent of each
// other; Paginate needs the total count of documents matching the filter.
type Builder struct {
	params     url.Values
	q          Query
	pagination Pagination
}

// New starts a Builder over request parameters.
func New(params url.Values) *Builder {
	if params == nil {
		params = url.Values{}
	}
	return &Builder{params: params}
}

// Where adds an equality condition that does not come from the request, such
// as the parent id of a nested route or the owner of the records.
func (b *Builder) Where(field, value string) *Builder {
	b.q.Conditions = append(b.q.Conditions, Condition{Field: field, Op: OpEq, Value: value})
	return b
}

// Filter converts every non-reserved parameter into a condition. A key of
// the form "name[op]" with op in gte, gt, lte, lt becomes a range condition.
func (b *Builder) Filter() *Builder {
	keys := make([]string, 0, len(b.params))
	for k := range b.params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		field, op := splitKey(key)
		if field == "" {
			continue
		}
		if _, ok := reserved[field]; ok {
			continue
		}
		for _, v := range b.params[key] {
			b.q.Conditions = append(b.q.Conditions, Condition{Field: field, Op: op, Value: v})
		}
	}
	return b
}

func splitKey(key string) (string, Op) {
	open := strings.IndexByte(key, '[')
	if open <= 0 || !strings.HasSuffix(key, "]") {
		return key, OpEq
	}
	op, ok := rangeOps[key[open+1:len(key)-1]]
	if !ok {
		return key, OpEq
	}
	return key[:open], op
}

// Search enables keyword matching over fields. It is a no-op when the
// request carries no keyword or the resource has no searchable fields.
func (b *Builder) Search(fields ...string) *Builder {
	keyword := strings.TrimSpace(b.params.Get(ParamKeyword))
	if keyword == "" || len(fields) == 0 {
		return b
	}
	b.q.Keyword = keyword
	b.q.SearchFields = append([]string(nil), fields...)
	return b
}

// Sort reads a comma-separated list of fields, each optionally prefixed with
// "-" for descending order. Defaults to newest first.
func (b *Builder) Sort() *Builder {
	b.q.Sort = nil
	for _, f := range splitList(b.params.Get(ParamSort)) {
		if desc := strings.HasPrefix(f, "-"); desc {
			if f = strings.TrimPrefix(f, "-"); f != "" {
				b.q.Sort = append(b.q.Sort, Order{Field: f, Desc: true})
			}
			continue
		}
		b.q.Sort = append(b.q.Sort, Order{Field: strings.TrimPrefix(f, "+")})
	}
	if len(b.q.Sort) == 0 {
		b.q.Sort = []Order{{Field: CreatedAt, Desc: true}}
	}
	return b
}

// LimitFields reads a comma-separated inclusion list.
func (b *Builder) LimitFields() *Builder {
	b.q.Fields = splitList(b.params.Get(ParamFields))
	return b
}

// Paginate computes skip/limit and the pagination result. Missing, malformed
// or non-positive page and limit values fall back to the defaults; larger
// values are capped at MaxPage and MaxLimit.
func (b *Builder) Paginate(total int) *Builder {
	page := positiveInt(b.params.Get(ParamPage), DefaultPage, MaxPage)
	limit := positiveInt(b.params.Get(ParamLimit), DefaultLimit, MaxLimit)
	skip := (page - 1) * limit

	b.q.Limit = limit
	b.q.Skip = skip
	b.pagination = Paginate(total, page, limit)
	return b
}

// Query returns the composed query.
func (b *Builder) Query() Query {
	q := b.q
	q.Conditions = append([]Condition(nil), b.q.Conditions...)
	return q
}

// CountQuery returns the composed query without ordering, projection or
// paging, suitable for counting matching documents.
func (b *Builder) CountQuery() Query {
	q := b.Query()
	q.Sort = nil
	q.Fields = nil
	q.Limit = 0
	q.Skip = 0
	return q
}

// Pagination returns the result computed by Paginate.
func (b *Builder) Pagination() Pagination {
	return b.pagination
}

// Paginate computes the pagination result for a page of size limit over
// total documents.
func Paginate(total, page, limit int) Pagination {
	p := Pagination{
		CurrentPage:   page,
		Limit:         limit,
		NumberOfPages: int(math.Ceil(float64(total) / float64(limit))),
	}
	if page*limit < total {
		next := page + 1
		p.Next = &next
	}
	if (page-1)*limit > 0 {
		prev := page - 1
		p.Prev = &prev
	}
	return p
}

func positiveInt(s string, def, upper int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return def
	}
	return min(n, upper)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
