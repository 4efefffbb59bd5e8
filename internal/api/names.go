package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/minhahamin/mes-fe-sub000/internal/dsl"
)

// entity находит сущность по :resource (сегмент пути или имя сущности,
// без учёта регистра). Если не нашли — уже ответили 404.
func (s *Server) entity(c *gin.Context) (*dsl.Entity, bool) {
	raw := c.Param("resource")
	e, ok := s.Catalog().Resolve(raw)
	if !ok {
		fail(c, http.StatusNotFound, "Entity '"+raw+"' not found")
		return nil, false
	}
	return e, true
}
