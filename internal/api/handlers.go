package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"refadmin/internal/audit"
	"refadmin/internal/refdata"
	"refadmin/internal/warehouse"
)

// writeError maps domain errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, refdata.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, refdata.ErrDuplicate):
		status = http.StatusConflict
	case errors.Is(err, refdata.ErrBadColumn):
		status = http.StatusBadRequest
	case errors.Is(err, warehouse.ErrPoolExhausted),
		errors.Is(err, warehouse.ErrConnectionFailed):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// record records a mutation in the audit trail. Audit failures are
// logged, not surfaced: the mutation already happened.
func (s *Server) record(c *gin.Context, action, subject, detail string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Append(c.Request.Context(), audit.Entry{
		Actor:   actor(c),
		Action:  action,
		Subject: subject,
		Detail:  detail,
	})
	if err != nil {
		log.Printf("[api] audit append failed: %v", err)
	}
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func intRangeQuery(c *gin.Context, name string) *int {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &n
}

func (s *Server) handleListRecords(c *gin.Context) {
	opts := refdata.ListOptions{
		Search:            c.Query("search"),
		SortBy:            c.Query("sort"),
		Descending:        c.Query("order") == "desc",
		Page:              intQuery(c, "page", 1),
		PageSize:          intQuery(c, "page_size", 20),
		CountryNumberMin:  intRangeQuery(c, "country_number_min"),
		CountryNumberMax:  intRangeQuery(c, "country_number_max"),
		CurrencyNumberMin: intRangeQuery(c, "currency_number_min"),
		CurrencyNumberMax: intRangeQuery(c, "currency_number_max"),
	}

	result, err := s.store.List(c.Request.Context(), opts)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleGetRecord(c *gin.Context) {
	code := strings.ToUpper(c.Param("code"))
	rec, err := s.store.Get(c.Request.Context(), code)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleCreateRecord(c *gin.Context) {
	var rec refdata.Record
	if err := c.ShouldBindJSON(&rec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if problems := rec.Validate(); len(problems) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "problems": problems})
		return
	}

	if err := s.store.Create(c.Request.Context(), &rec); err != nil {
		writeError(c, err)
		return
	}

	s.record(c, audit.ActionCreate, rec.CountryCode, rec.String())
	c.JSON(http.StatusCreated, rec)
}

func (s *Server) handleUpdateRecord(c *gin.Context) {
	code := strings.ToUpper(c.Param("code"))

	var rec refdata.Record
	if err := c.ShouldBindJSON(&rec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	rec.CountryCode = code
	if problems := rec.Validate(); len(problems) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "problems": problems})
		return
	}

	if err := s.store.Update(c.Request.Context(), &rec); err != nil {
		writeError(c, err)
		return
	}

	s.record(c, audit.ActionUpdate, code, rec.String())
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleDeleteRecord(c *gin.Context) {
	code := strings.ToUpper(c.Param("code"))
	if err := s.store.Delete(c.Request.Context(), code); err != nil {
		writeError(c, err)
		return
	}

	s.record(c, audit.ActionDelete, code, "")
	c.Status(http.StatusNoContent)
}

// handleImport accepts a CSV upload, either as multipart form field
// "file" or as a raw request body.
func (s *Server) handleImport(c *gin.Context) {
	body := c.Request.Body
	if file, _, err := c.Request.FormFile("file"); err == nil {
		defer file.Close()
		body = file
	}

	result, err := s.batch.ImportCSV(c.Request.Context(), body)
	if err != nil {
		writeError(c, err)
		return
	}

	s.record(c, audit.ActionImport, "batch",
		fmt.Sprintf("created=%d updated=%d failed=%d", result.Created, result.Updated, result.Failed))
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleExport(c *gin.Context) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="country_currency.csv"`)

	n, err := s.batch.ExportCSV(c.Request.Context(), c.Writer)
	if err != nil {
		// Headers may already be out; log instead of rewriting the
		// response.
		log.Printf("[api] export failed after %d records: %v", n, err)
		return
	}

	s.record(c, audit.ActionExport, "batch", fmt.Sprintf("records=%d", n))
}

func (s *Server) handleSummary(c *gin.Context) {
	summary, err := s.analytics.Summarize(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleDistribution(c *gin.Context) {
	entries, err := s.analytics.Distribution(c.Request.Context(), c.Param("column"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"column": c.Param("column"), "distribution": entries})
}

func (s *Server) handleDescribe(c *gin.Context) {
	stats, err := s.analytics.Describe(c.Request.Context(), c.Param("column"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleAuditRecent(c *gin.Context) {
	if s.audit == nil {
		c.JSON(http.StatusOK, gin.H{"entries": []audit.Entry{}})
		return
	}
	entries, err := s.audit.Recent(c.Request.Context(), intQuery(c, "limit", 50))
	if err != nil {
		writeError(c, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) handleAuditStats(c *gin.Context) {
	if s.audit == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	stats, err := s.audit.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleConnectionTest(c *gin.Context) {
	if err := s.client.TestConnection(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
