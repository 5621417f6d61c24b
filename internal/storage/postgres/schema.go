package postgres

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/eshop/internal/apperr"
	"github.com/xenking/eshop/internal/domain/query"
)

// column maps one struct field to a table column.
type column struct {
	name string
	// field is the API name; empty for columns that never leave the server.
	field string
	// cast is the SQL type request values are converted to; empty when the
	// column cannot be filtered or sorted.
	cast  string
	array bool
	index []int
}

// schema is the allow-list of columns of a table, derived from the db and
// json tags of its row struct.
type schema struct {
	table   string
	columns []column
	byField map[string]int
}

var (
	timeType    = reflect.TypeFor[time.Time]()
	decimalType = reflect.TypeFor[decimal.Decimal]()
)

func newSchema[T any](table string) *schema {
	s := &schema{table: table, byField: make(map[string]int)}
	rt := reflect.TypeFor[T]()
	for i := range rt.NumField() {
		sf := rt.Field(i)
		name := sf.Tag.Get("db")
		if name == "" || name == "-" || !sf.IsExported() {
			continue
		}
		c := column{name: name, index: sf.Index}
		if field, _, _ := strings.Cut(sf.Tag.Get("json"), ","); field != "-" {
			c.field = field
		}
		c.cast, c.array = sqlType(sf.Type)
		if c.field != "" {
			s.byField[c.field] = len(s.columns)
		}
		s.columns = append(s.columns, c)
	}
	return s
}

func sqlType(t reflect.Type) (cast string, array bool) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch {
	case t == timeType:
		return "timestamptz", false
	case t == decimalType:
		return "numeric", false
	}
	switch t.Kind() {
	case reflect.String:
		return "text", false
	case reflect.Int, reflect.Int32, reflect.Int64:
		return "bigint", false
	case reflect.Float32, reflect.Float64:
		return "double precision", false
	case reflect.Bool:
		return "boolean", false
	case reflect.Slice:
		if t.Elem().Kind() == reflect.String {
			return "text", true
		}
	}
	// Structured values are stored as jsonb.
	return "", false
}

func (s *schema) lookup(field string) (column, error) {
	i, ok := s.byField[field]
	if !ok {
		return column{}, apperr.Invalid("Unknown field: %s.", field)
	}
	return s.columns[i], nil
}

// selectList renders the projection. Empty fields select every column; the
// id column is always included.
func (s *schema) selectList(fields []string) (string, error) {
	if len(fields) == 0 {
		names := make([]string, len(s.columns))
		for i, c := range s.columns {
			names[i] = c.name
		}
		return strings.Join(names, ", "), nil
	}
	names := []string{"id"}
	seen := map[string]bool{"id": true}
	for _, f := range fields {
		c, err := s.lookup(f)
		if err != nil {
			return "", err
		}
		if !seen[c.name] {
			seen[c.name] = true
			names = append(names, c.name)
		}
	}
	return strings.Join(names, ", "), nil
}

var comparators = map[query.Op]string{
	query.OpEq:  "=",
	query.OpGte: ">=",
	query.OpGt:  ">",
	query.OpLte: "<=",
	query.OpLt:  "<",
}

type sqlArgs []any

func (a *sqlArgs) add(v any) string {
	*a = append(*a, v)
	return "$" + strconv.Itoa(len(*a))
}

// where renders the conditions and the keyword search. Values are passed as
// text parameters and cast to the column type by the server.
func (s *schema) where(q query.Query, args *sqlArgs) (string, error) {
	var parts []string
	for _, cond := range q.Conditions {
		c, err := s.lookup(cond.Field)
		if err != nil {
			return "", err
		}
		if c.cast == "" {
			return "", apperr.Invalid("Field %s cannot be filtered.", cond.Field)
		}
		p := args.add(cond.Value)
		switch {
		case c.array && cond.Op == query.OpEq:
			parts = append(parts, p+"::text = ANY("+c.name+")")
		case c.array:
			return "", apperr.Invalid("Field %s only supports equality.", cond.Field)
		default:
			parts = append(parts, c.name+" "+comparators[cond.Op]+" "+p+"::text::"+c.cast)
		}
	}

	if q.Keyword != "" && len(q.SearchFields) > 0 {
		p := args.add("%" + escapeLike(q.Keyword) + "%")
		var ors []string
		for _, f := range q.SearchFields {
			c, err := s.lookup(f)
			if err != nil {
				return "", err
			}
			if c.cast != "text" || c.array {
				return "", apperr.Invalid("Field %s cannot be searched.", f)
			}
			ors = append(ors, c.name+" ILIKE "+p)
		}
		parts = append(parts, "("+strings.Join(ors, " OR ")+")")
	}

	if len(parts) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(parts, " AND "), nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (s *schema) orderBy(sort []query.Order) (string, error) {
	if len(sort) == 0 {
		return "", nil
	}
	keys := make([]string, 0, len(sort)+1)
	for _, o := range sort {
		c, err := s.lookup(o.Field)
		if err != nil {
			return "", err
		}
		if c.cast == "" || c.array {
			return "", apperr.Invalid("Field %s cannot be sorted.", o.Field)
		}
		dir := " ASC"
		if o.Desc {
			dir = " DESC"
		}
		keys = append(keys, c.name+dir)
	}
	// Stable pages for equal sort keys.
	keys = append(keys, "id ASC")
	return " ORDER BY " + strings.Join(keys, ", "), nil
}

// listSQL renders a paged SELECT for q.
func (s *schema) listSQL(q query.Query) (string, []any, error) {
	cols, err := s.selectList(q.Fields)
	if err != nil {
		return "", nil, err
	}
	var args sqlArgs
	where, err := s.where(q, &args)
	if err != nil {
		return "", nil, err
	}
	order, err := s.orderBy(q.Sort)
	if err != nil {
		return "", nil, err
	}
	sql := "SELECT " + cols + " FROM " + s.table + where + order
	if q.Limit > 0 {
		sql += " LIMIT " + args.add(q.Limit)
	}
	if q.Skip > 0 {
		sql += " OFFSET " + args.add(q.Skip)
	}
	return sql, args, nil
}

// countSQL renders a count of the documents matching q.
func (s *schema) countSQL(q query.Query) (string, []any, error) {
	var args sqlArgs
	where, err := s.where(q, &args)
	if err != nil {
		return "", nil, err
	}
	return "SELECT count(*) FROM " + s.table + where, args, nil
}

// writable returns the columns set by INSERT (withID) or UPDATE.
func (s *schema) writable(withID bool) []column {
	out := make([]column, 0, len(s.columns))
	for _, c := range s.columns {
		switch c.name {
		case "created_at", "updated_at":
			continue
		case "id":
			if !withID {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

// values extracts the column values of v. Nil slices are written as empty
// ones so NOT NULL array and jsonb columns accept them.
func values(v any, cols []column) []any {
	rv := reflect.ValueOf(v).Elem()
	out := make([]any, len(cols))
	for i, c := range cols {
		f := rv.FieldByIndex(c.index)
		if f.Kind() == reflect.Slice && f.IsNil() {
			f = reflect.MakeSlice(f.Type(), 0, 0)
		}
		out[i] = f.Interface()
	}
	return out
}

func (s *schema) insertSQL() (string, []column) {
	cols := s.writable(true)
	names := make([]string, len(cols))
	params := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
		params[i] = "$" + strconv.Itoa(i+1)
	}
	all, _ := s.selectList(nil)
	return "INSERT INTO " + s.table + " (" + strings.Join(names, ", ") + ") VALUES (" +
		strings.Join(params, ", ") + ") RETURNING " + all, cols
}

// updateSQL rewrites every writable column of the row identified by $1.
func (s *schema) updateSQL() (string, []column) {
	cols := s.writable(false)
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c.name + " = $" + strconv.Itoa(i+2)
	}
	sets = append(sets, "version = version + 1", "updated_at = now()")
	all, _ := s.selectList(nil)
	return "UPDATE " + s.table + " SET " + strings.Join(sets, ", ") + " WHERE id = $1 RETURNING " + all, cols
}
