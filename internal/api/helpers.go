package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/minhahamin/mes-fe-sub000/internal/dsl"
	"github.com/minhahamin/mes-fe-sub000/internal/record"
)

// flatten — данные записи плюс id/createdAt/updatedAt в одном объекте.
func flatten(r *Stored) record.Record {
	out := make(record.Record, len(r.Data)+3)
	for k, v := range r.Data {
		out[k] = v
	}
	out[dsl.FieldID] = r.ID
	out[dsl.FieldCreatedAt] = r.CreatedAt.Format(time.RFC3339)
	out[dsl.FieldUpdatedAt] = r.UpdatedAt.Format(time.RFC3339)
	return out
}

func etag(r *Stored) string {
	return fmt.Sprintf(`"%d"`, r.Version)
}

// ifMatch читает ожидаемую версию из If-Match; 0 — заголовка нет.
func ifMatch(c *gin.Context) (int64, bool) {
	h := strings.TrimSpace(c.GetHeader("If-Match"))
	if h == "" || h == "*" {
		return 0, true
	}
	h = strings.TrimPrefix(h, "W/")
	n, err := strconv.ParseInt(strings.Trim(h, `"`), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// ---- конверт ответа ----

func reply(c *gin.Context, status int, data any, message string) {
	body := gin.H{"success": true, "data": data}
	if message != "" {
		body["message"] = message
	}
	c.JSON(status, body)
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"success": false, "error": msg})
}

func failFields(c *gin.Context, status int, msg string, errs []FieldError) {
	c.JSON(status, gin.H{"success": false, "error": msg, "errors": errs})
}

func statusForErrors(errs []FieldError) int {
	for _, e := range errs {
		if e.Code == ErrVersionConflict {
			return http.StatusConflict
		}
	}
	return http.StatusBadRequest
}
