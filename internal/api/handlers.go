package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/minhahamin/mes-fe-sub000/internal/dsl"
	"github.com/minhahamin/mes-fe-sub000/internal/filter"
	"github.com/minhahamin/mes-fe-sub000/internal/record"
)

// Сообщения для конверта ответа
const (
	msgCreated = "등록되었습니다"
	msgUpdated = "수정되었습니다"
	msgDeleted = "삭제되었습니다"
	msgInvalid = "입력값을 확인해주세요"
)

// GET /api/:resource
func (s *Server) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		schema, ok := s.entity(c)
		if !ok {
			return
		}
		rows, err := s.store.List(c.Request.Context(), schema.Resource)
		if err != nil {
			s.storeError(c, err)
			return
		}
		out := make([]record.Record, 0, len(rows))
		for _, r := range rows {
			out = append(out, flatten(r))
		}

		lp := parseListParams(c.Request.URL.Query())
		out = filter.ForEntity(out, lp.Q, schema)
		sortRecordsMulti(schema, out, lp.Sort, lp.Nulls)

		c.Header("X-Total-Count", strconv.Itoa(len(out)))
		reply(c, http.StatusOK, out, "")
	}
}

// GET /api/:resource/:id
func (s *Server) GetOneHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		schema, ok := s.entity(c)
		if !ok {
			return
		}
		r, err := s.store.Get(c.Request.Context(), schema.Resource, c.Param("id"))
		if err != nil {
			s.storeError(c, err)
			return
		}
		c.Header("ETag", etag(r))
		reply(c, http.StatusOK, flatten(r), "")
	}
}

// POST /api/:resource
func (s *Server) CreateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		schema, ok := s.writable(c)
		if !ok {
			return
		}
		var obj map[string]any
		if err := c.ShouldBindJSON(&obj); err != nil {
			fail(c, http.StatusBadRequest, "Invalid JSON")
			return
		}
		if obj == nil {
			obj = map[string]any{}
		}
		if errs := checkWritable(schema, obj); len(errs) > 0 {
			failFields(c, http.StatusBadRequest, msgInvalid, errs)
			return
		}
		if errs := ValidateAgainstSchema(schema, obj); len(errs) > 0 {
			s.rejected(c, schema, errs)
			return
		}
		deriveFields(schema, obj)

		r, err := s.store.Create(c.Request.Context(), schema.Resource, obj)
		if err != nil {
			s.storeError(c, err)
			return
		}
		c.Header("ETag", etag(r))
		reply(c, http.StatusCreated, flatten(r), msgCreated)
	}
}

// PATCH /api/:resource/:id
// If-Match необязателен: без него побеждает последняя запись.
func (s *Server) UpdatePartialHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		schema, ok := s.writable(c)
		if !ok {
			return
		}
		id := c.Param("id")
		var patch map[string]any
		if err := c.ShouldBindJSON(&patch); err != nil {
			fail(c, http.StatusBadRequest, "Invalid JSON")
			return
		}
		expect, valid := ifMatch(c)
		if !valid {
			fail(c, http.StatusBadRequest, "Invalid If-Match")
			return
		}
		if errs := checkWritable(schema, patch); len(errs) > 0 {
			failFields(c, http.StatusBadRequest, msgInvalid, errs)
			return
		}

		ctx := c.Request.Context()
		cur, err := s.store.Get(ctx, schema.Resource, id)
		if err != nil {
			s.storeError(c, err)
			return
		}
		if expect != 0 && expect != cur.Version {
			failFields(c, http.StatusConflict, "다른 사용자가 먼저 수정했습니다", []FieldError{
				ferr(ErrVersionConflict, "version", "expected version "+strconv.FormatInt(cur.Version, 10)),
			})
			return
		}

		merged := record.Record(cur.Data).Merge(patch)
		if errs := ValidateAgainstSchema(schema, merged); len(errs) > 0 {
			s.rejected(c, schema, errs)
			return
		}
		deriveFields(schema, merged)

		r, err := s.store.Update(ctx, schema.Resource, id, merged, expect)
		if err != nil {
			s.storeError(c, err)
			return
		}
		c.Header("ETag", etag(r))
		reply(c, http.StatusOK, flatten(r), msgUpdated)
	}
}

// DELETE /api/:resource/:id
func (s *Server) DeleteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		schema, ok := s.writable(c)
		if !ok {
			return
		}
		expect, valid := ifMatch(c)
		if !valid {
			fail(c, http.StatusBadRequest, "Invalid If-Match")
			return
		}
		if err := s.store.Delete(c.Request.Context(), schema.Resource, c.Param("id"), expect); err != nil {
			s.storeError(c, err)
			return
		}
		reply(c, http.StatusOK, nil, msgDeleted)
	}
}

// writable — как entity, но для readonly-ресурсов отвечает 405.
func (s *Server) writable(c *gin.Context) (*dsl.Entity, bool) {
	schema, ok := s.entity(c)
	if !ok {
		return nil, false
	}
	if schema.ReadOnly {
		fail(c, http.StatusMethodNotAllowed, "Resource '"+schema.Resource+"' is read-only")
		return nil, false
	}
	return schema, true
}

func (s *Server) rejected(c *gin.Context, schema *dsl.Entity, errs []FieldError) {
	s.log.Warn().
		Str("entity", schema.Name).
		Interface("errors", errs).
		Msg("validation failed")
	msg := msgInvalid
	if len(errs) > 0 {
		msg = errs[0].Message
	}
	failFields(c, statusForErrors(errs), msg, errs)
}

func (s *Server) storeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrRecordNotFound):
		fail(c, http.StatusNotFound, "Record not found")
	case errors.Is(err, ErrVersionMismatch):
		fail(c, http.StatusConflict, "다른 사용자가 먼저 수정했습니다")
	default:
		s.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("store failure")
		fail(c, http.StatusInternalServerError, "Internal error")
	}
}
