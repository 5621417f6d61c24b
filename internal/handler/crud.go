package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/eshop/internal/domain/query"
)

// resource configures the generic handlers of one collection.
type resource[T any] struct {
	store Store[T]
	// search lists the fields matched by the keyword parameter.
	search []string
	// present rewrites a record before it is rendered.
	present func(*T)
}

func (r resource[T]) show(v *T) {
	if r.present != nil {
		r.present(v)
	}
}

// scopeFunc narrows a list to a parent record or to the caller.
type scopeFunc func(c *gin.Context, b *query.Builder) bool

// paramScope restricts a list to records whose field equals a path parameter.
func paramScope(field, param string) scopeFunc {
	return func(c *gin.Context, b *query.Builder) bool {
		id, ok := idParam(c, param)
		if ok {
			b.Where(field, id)
		}
		return ok
	}
}

func getAll[T any](r resource[T], scope scopeFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		b := query.New(c.Request.URL.Query()).Filter().Search(r.search...).Sort().LimitFields()
		if scope != nil && !scope(c, b) {
			return
		}
		items, page, err := r.store.List(c.Request.Context(), b)
		if err != nil {
			abort(c, err)
			return
		}
		for i := range items {
			r.show(&items[i])
		}
		data, err := project(items, b.Query().Fields)
		if err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"results": len(items), "paginationResult": page, "data": data})
	}
}

func getOne[T any](r resource[T]) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		v, err := r.store.Get(c.Request.Context(), id)
		if err != nil {
			abort(c, err)
			return
		}
		r.show(v)
		c.JSON(http.StatusOK, gin.H{"data": v})
	}
}

func createOne[T, In any](r resource[T], build func(c *gin.Context, in In) (*T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in In
		if !bindJSON(c, &in) {
			return
		}
		v, err := build(c, in)
		if err != nil {
			abort(c, err)
			return
		}
		if err := r.store.Insert(c.Request.Context(), v); err != nil {
			abort(c, err)
			return
		}
		r.show(v)
		c.JSON(http.StatusCreated, gin.H{"data": v})
	}
}

func updateOne[T, P any](r resource[T], apply func(p P, v *T) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var p P
		if !bindJSON(c, &p) {
			return
		}
		v, err := r.store.Modify(c.Request.Context(), id, func(v *T) error {
			return apply(p, v)
		})
		if err != nil {
			abort(c, err)
			return
		}
		r.show(v)
		c.JSON(http.StatusOK, gin.H{"data": v})
	}
}

func deleteOne[T any](r resource[T]) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		if err := r.store.Delete(c.Request.Context(), id); err != nil {
			abort(c, err)
			return
		}
		noContent(c)
	}
}

// build adapts a constructor that cannot fail.
func build[In, T any](fn func(In) *T) func(*gin.Context, In) (*T, error) {
	return func(_ *gin.Context, in In) (*T, error) {
		return fn(in), nil
	}
}

// buildChecked adapts a validating constructor.
func buildChecked[In, T any](fn func(In) (*T, error)) func(*gin.Context, In) (*T, error) {
	return func(_ *gin.Context, in In) (*T, error) {
		return fn(in)
	}
}

// project keeps only the requested fields of every record. The id is always
// kept.
func project[T any](items []T, fields []string) (any, error) {
	if len(fields) == 0 {
		return items, nil
	}
	keep := map[string]bool{"id": true}
	for _, f := range fields {
		keep[f] = true
	}

	out := make([]json.RawMessage, 0, len(items))
	for i := range items {
		raw, err := json.Marshal(&items[i])
		if err != nil {
			return nil, errors.Wrap(err, "encode record")
		}
		var e jx.Encoder
		e.ObjStart()
		err = jx.DecodeBytes(raw).Obj(func(d *jx.Decoder, key string) error {
			v, err := d.Raw()
			if err != nil {
				return err
			}
			if keep[key] {
				e.FieldStart(key)
				e.Raw(v)
			}
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "project record")
		}
		e.ObjEnd()
		out = append(out, json.RawMessage(e.Bytes()))
	}
	return out, nil
}
