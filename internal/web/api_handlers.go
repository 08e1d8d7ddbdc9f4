package web

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jizpi/arm-ledger/internal/export"
	"github.com/jizpi/arm-ledger/internal/ledger"
	"github.com/jizpi/arm-ledger/internal/view"
	"github.com/jizpi/arm-ledger/internal/visit"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// apiError writes a JSON error response.
func apiError(c *gin.Context, code int, msg string) {
	c.AbortWithStatusJSON(code, gin.H{"error": msg})
}

// writeError maps a service error to a status code.
func writeError(c *gin.Context, err error) {
	var ve *ledger.ValidationError
	switch {
	case errors.As(err, &ve):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": ve.Fields})
	case errors.Is(err, visit.ErrNotFound):
		apiError(c, http.StatusNotFound, "visit not found")
	default:
		_ = c.Error(err)
		apiError(c, http.StatusInternalServerError, "internal error")
	}
}

// listParams are the query parameters shared by the list and export endpoints.
type listParams struct {
	Text       string `form:"q"`
	Date       string `form:"date"`
	Resource   string `form:"resource"`
	Department string `form:"department"`
	Sort       string `form:"sort"`
	Dir        string `form:"dir"`
	Page       int    `form:"page"`
}

func (p listParams) query() (view.Query, error) {
	q := view.DefaultQuery().WithFilter(view.Filter{
		Text:       p.Text,
		Date:       p.Date,
		Resource:   p.Resource,
		Department: p.Department,
	})
	if p.Sort != "" {
		key := view.SortKey(p.Sort)
		if !key.Valid() {
			return q, fmt.Errorf("unknown sort key %q", p.Sort)
		}
		q.Sort = view.Sort{Key: key, Dir: view.Desc}
	}
	switch view.Direction(p.Dir) {
	case "":
	case view.Asc, view.Desc:
		q.Sort.Dir = view.Direction(p.Dir)
	default:
		return q, fmt.Errorf("dir must be asc or desc")
	}
	if p.Page != 0 {
		q = q.WithPage(p.Page)
	}
	return q, nil
}

func bindQuery(c *gin.Context) (view.Query, bool) {
	var p listParams
	if err := c.ShouldBindQuery(&p); err != nil {
		apiError(c, http.StatusBadRequest, "invalid query parameters")
		return view.Query{}, false
	}
	q, err := p.query()
	if err != nil {
		apiError(c, http.StatusBadRequest, err.Error())
		return view.Query{}, false
	}
	return q, true
}

// GET /api/visits
func (s *Server) listVisits(c *gin.Context) {
	q, ok := bindQuery(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, view.Apply(s.snapshots.Current().Records, q))
}

// POST /api/visits
func (s *Server) createVisit(c *gin.Context) {
	var req ledger.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rec, err := s.ledger.Create(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Location", "/api/visits/"+rec.ID)
	c.JSON(http.StatusCreated, rec)
}

// GET /api/visits/:id
func (s *Server) getVisit(c *gin.Context) {
	rec, err := s.ledger.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// PATCH /api/visits/:id
func (s *Server) updateVisit(c *gin.Context) {
	var req ledger.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rec, err := s.ledger.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// DELETE /api/visits/:id
func (s *Server) deleteVisit(c *gin.Context) {
	if err := s.ledger.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /api/today previews the ordinal the next check-in would get.
func (s *Server) today(c *gin.Context) {
	date := s.ledger.Today()
	c.JSON(http.StatusOK, gin.H{
		"date":          date,
		"next_sequence": ledger.NextFromSnapshot(s.snapshots.Current().Records, date),
	})
}

// GET /api/stats
func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, s.snapshots.Current())
}

// GET /api/catalog
func (s *Server) catalogResources(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"resources": s.catalog})
}

// GET /api/lookup?first_name=&last_name=
func (s *Server) lookup(c *gin.Context) {
	recs, err := s.ledger.Lookup(c.Request.Context(), c.Query("first_name"), c.Query("last_name"))
	if err != nil {
		writeError(c, err)
		return
	}
	if recs == nil {
		recs = []visit.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"records": recs, "total_count": len(recs)})
}

// GET /api/export streams the filtered, sorted list as an Excel workbook.
func (s *Server) exportXLSX(c *gin.Context) {
	q, ok := bindQuery(c)
	if !ok {
		return
	}
	state := s.snapshots.Current()
	rows := export.Rows(view.Filtered(state.Records, q))

	name := export.FileName(q.Filter.Resource, s.now(), s.loc)
	c.Header("Content-Type", xlsxContentType)
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	c.Status(http.StatusOK)

	if err := export.WriteXLSX(c.Writer, rows, state.Stats); err != nil {
		s.logger.Error("writing export", zap.Error(err))
		_ = c.Error(err)
	}
}

// GET /api/events streams a snapshot of the statistics on every change.
func (s *Server) events(c *gin.Context) {
	ch, cancel := s.snapshots.Subscribe()
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("stats", s.snapshots.Current())
	c.Writer.Flush()

	c.Stream(func(io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case st, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("stats", st)
			return true
		}
	})
}
