package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/minhahamin/mes-fe-sub000/internal/dsl"
)

type reloadReq struct {
	DSLRoot string `json:"dsl_root"` // директория с *.dsl
}

// POST /api/_admin/reload
// Перечитывает каталог; при ошибках линтера старый каталог остаётся.
func (s *Server) AdminReloadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reloadReq
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			fail(c, http.StatusBadRequest, "Invalid JSON")
			return
		}

		dslRoot := strings.TrimSpace(req.DSLRoot)
		if dslRoot == "" {
			dslRoot = s.catalogDir
		}
		if dslRoot == "" {
			fail(c, http.StatusBadRequest, "catalog directory is not configured")
			return
		}

		cat, err := dsl.LoadAll(dslRoot)
		if err != nil {
			var lintErr *dsl.LintError
			if errors.As(err, &lintErr) {
				c.JSON(http.StatusBadRequest, gin.H{
					"success": false,
					"error":   "schema has blocking issues",
					"issues":  lintErr.Issues,
					"dslRoot": dslRoot,
				})
				return
			}
			fail(c, http.StatusBadRequest, "DSL load error: "+err.Error())
			return
		}

		s.mu.Lock()
		s.catalog = cat
		s.mu.Unlock()
		s.log.Info().Str("dsl_root", dslRoot).Int("entities", len(cat.Entities())).Msg("catalog reloaded")

		reply(c, http.StatusOK, gin.H{
			"dslRoot":  dslRoot,
			"entities": len(cat.Entities()),
		}, "")
	}
}
