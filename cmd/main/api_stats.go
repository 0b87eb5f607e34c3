package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const statsSchema = `
CREATE TABLE IF NOT EXISTS stats_render (
    template_name   TEXT PRIMARY KEY,
    total_renders   INTEGER NOT NULL DEFAULT 1,
    total_bytes     INTEGER NOT NULL DEFAULT 0,
    total_micros    INTEGER NOT NULL DEFAULT 0,
    error_count     INTEGER NOT NULL DEFAULT 0,
    first_render    DATETIME NOT NULL,
    last_render     DATETIME NOT NULL
);
`

// TemplateStats is the per-template row returned by the stats endpoints.
type TemplateStats struct {
	TemplateName string    `json:"template_name"`
	TotalRenders int64     `json:"total_renders"`
	TotalBytes   int64     `json:"total_bytes"`
	AvgMicros    int64     `json:"avg_micros"`
	ErrorCount   int64     `json:"error_count"`
	FirstRender  time.Time `json:"first_render"`
	LastRender   time.Time `json:"last_render"`
}

// GlobalStatsSummary provides a high-level overview of all collected stats.
type GlobalStatsSummary struct {
	TotalRenders    int64 `json:"total_renders"`
	TotalBytes      int64 `json:"total_bytes"`
	TotalErrors     int64 `json:"total_errors"`
	UniqueTemplates int64 `json:"unique_templates"`
}

// StatsAPI holds the dependencies for the render-statistics handlers.
type StatsAPI struct {
	db     *sql.DB
	logger *slog.Logger
}

func setupStatsSchema(db *sql.DB) error {
	_, err := db.Exec(statsSchema)
	return err
}

func NewStatsAPI(db *sql.DB, logger *slog.Logger) *StatsAPI {
	return &StatsAPI{
		db:     db,
		logger: logger,
	}
}

func (s *StatsAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/stats/summary", s.handleSummary)
	mux.HandleFunc("/api/stats/templates", s.handleTemplates)
}

// LogRender records one render of a template. It is called from the page
// handler after every render attempt, successful or not.
func (s *StatsAPI) LogRender(ctx context.Context, name string, elapsed time.Duration, bytes int, failed bool) error {
	now := time.Now()
	errInc := 0
	if failed {
		errInc = 1
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO stats_render (template_name, total_bytes, total_micros, error_count, first_render, last_render)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(template_name) DO UPDATE SET
            total_renders = total_renders + 1,
            total_bytes   = total_bytes + ?,
            total_micros  = total_micros + ?,
            error_count   = error_count + ?,
            last_render   = ?
    `, name, bytes, elapsed.Microseconds(), errInc, now, now,
		bytes, elapsed.Microseconds(), errInc, now)
	if err != nil {
		return fmt.Errorf("failed to upsert stats_render: %w", err)
	}
	return nil
}

func (s *StatsAPI) handleSummary(w http.ResponseWriter, r *http.Request) {
	if !hasScope(r, "stats:read") {
		respondWithError(w, http.StatusForbidden, "Forbidden")
		return
	}
	var summary GlobalStatsSummary
	_ = s.db.QueryRowContext(r.Context(), "SELECT COALESCE(SUM(total_renders), 0) FROM stats_render").Scan(&summary.TotalRenders)
	_ = s.db.QueryRowContext(r.Context(), "SELECT COALESCE(SUM(total_bytes), 0) FROM stats_render").Scan(&summary.TotalBytes)
	_ = s.db.QueryRowContext(r.Context(), "SELECT COALESCE(SUM(error_count), 0) FROM stats_render").Scan(&summary.TotalErrors)
	_ = s.db.QueryRowContext(r.Context(), "SELECT COUNT(*) FROM stats_render").Scan(&summary.UniqueTemplates)
	respondWithJSON(w, http.StatusOK, summary)
}

func (s *StatsAPI) handleTemplates(w http.ResponseWriter, r *http.Request) {
	if !hasScope(r, "stats:read") {
		respondWithError(w, http.StatusForbidden, "Forbidden")
		return
	}
	rows, err := s.db.QueryContext(r.Context(), `
        SELECT template_name, total_renders, total_bytes,
               total_micros / total_renders, error_count, first_render, last_render
        FROM stats_render ORDER BY total_renders DESC LIMIT 100`)
	if err != nil {
		s.logger.Error("Failed to query template stats", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var results []TemplateStats
	for rows.Next() {
		var ts TemplateStats
		err = rows.Scan(&ts.TemplateName, &ts.TotalRenders, &ts.TotalBytes,
			&ts.AvgMicros, &ts.ErrorCount, &ts.FirstRender, &ts.LastRender)
		if err != nil {
			s.logger.Error("Failed to scan template stats", "error", err)
		}
		results = append(results, ts)
	}
	respondWithJSON(w, http.StatusOK, results)
}
