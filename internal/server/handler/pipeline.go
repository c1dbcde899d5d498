package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Runner executes one pass of a background job.
type Runner interface {
	Run(ctx context.Context) error
}

// PipelineHandler lets operators trigger background jobs out of schedule:
// an immediate relay scrape or an archive run.
type PipelineHandler struct {
	scraper  Runner
	archiver Runner
	logger   *slog.Logger
}

// NewPipelineHandler creates a PipelineHandler. Either runner may be nil when
// the current mode does not carry that job.
func NewPipelineHandler(scraper, archiver Runner, logger *slog.Logger) *PipelineHandler {
	return &PipelineHandler{
		scraper:  scraper,
		archiver: archiver,
		logger:   logHandler(logger, "pipeline"),
	}
}

// TriggerScrape starts one relay scrape pass in the background.
// POST /api/pipeline/scrape
func (h *PipelineHandler) TriggerScrape(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, "scrape", h.scraper)
}

// TriggerArchive starts one archive run in the background.
// POST /api/pipeline/archive
func (h *PipelineHandler) TriggerArchive(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, "archive", h.archiver)
}

func (h *PipelineHandler) trigger(w http.ResponseWriter, r *http.Request, job string, runner Runner) {
	if runner == nil {
		writeError(w, http.StatusNotFound, job+" job is not running in this mode")
		return
	}

	h.logger.InfoContext(r.Context(), "manual job trigger", slog.String("job", job))

	// Detach from the request so the run survives the HTTP response.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if err := runner.Run(ctx); err != nil {
			h.logger.Error("triggered job failed",
				slog.String("job", job),
				slog.String("error", err.Error()),
			)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"job":          job,
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
