package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/skypro1111/storyreel/internal/attachment"
	"github.com/skypro1111/storyreel/internal/run"
	"github.com/skypro1111/storyreel/internal/style"
)

const (
	maxUploadSize  = 32 << 20
	maxDetailBytes = 8000

	// failMarker in the story makes the fake pipeline fail midway
	failMarker = "FAIL"
)

var pipelineSteps = []string{
	"Extracting scenes from story",
	"Cloning narrator voice",
	"Generating scene images",
	"Synthesizing narration",
	"Rendering scene clips",
	"Assembling final video",
}

// fakeRun is the state of one simulated pipeline run
type fakeRun struct {
	log   strings.Builder
	video []byte
}

// fakePipeline imitates the story video service closely enough to drive the
// client end to end
type fakePipeline struct {
	stepDelay time.Duration
	logger    *slog.Logger

	runs map[string]*fakeRun
	mu   sync.Mutex
}

func newFakePipeline(stepDelay time.Duration, logger *slog.Logger) *fakePipeline {
	return &fakePipeline{
		stepDelay: stepDelay,
		logger:    logger,
		runs:      make(map[string]*fakeRun),
	}
}

func (p *fakePipeline) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/generate", p.handleGenerate)
	r.Get("/logs/{run_id}", p.handleLogs)
	r.Get("/video/{run_id}", p.handleVideo)
	r.Get("/styles", p.handleStyles)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func (p *fakePipeline) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeDetail(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	text := r.FormValue("text")
	source, hasFile, err := readUpload(r, "file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	if (text != "") == hasFile {
		writeDetail(w, http.StatusBadRequest, "Provide either text or a file (but not both).")
		return
	}
	if hasFile {
		if err := attachment.ValidateSourceFile(source); err != nil {
			writeDetail(w, http.StatusBadRequest, "Only UTF-8 .txt, .md or .csv files are supported right now. Paste the text instead.")
			return
		}
		text = string(source.Data)
	}

	photo, hasPhoto, err := readUpload(r, "photo")
	if err != nil || !hasPhoto {
		writeDetail(w, http.StatusUnprocessableEntity, "photo is required")
		return
	}
	voice, hasVoice, err := readUpload(r, "voice")
	if err != nil || !hasVoice {
		writeDetail(w, http.StatusUnprocessableEntity, "voice is required")
		return
	}

	styleKey, err := style.Builtin().Resolve(r.FormValue("style"))
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	runID := r.FormValue("run_id")
	if runID == "" {
		runID = run.NewRunID(time.Now())
	}

	fr := &fakeRun{}
	p.mu.Lock()
	p.runs[runID] = fr
	p.mu.Unlock()

	p.logger.Info("Run accepted",
		slog.String("run_id", runID),
		slog.String("style", string(styleKey)),
		slog.String("scenes", r.FormValue("number_of_scenes")),
		slog.Int("photo_bytes", len(photo.Data)),
		slog.Int("voice_bytes", len(voice.Data)),
	)

	p.appendLog(fr, "Run %s started (style=%s)", runID, styleKey)

	for i, step := range pipelineSteps {
		select {
		case <-r.Context().Done():
			p.appendLog(fr, "Client disconnected, aborting")
			return
		case <-time.After(p.stepDelay):
		}

		p.appendLog(fr, "[%d/%d] %s", i+1, len(pipelineSteps), step)

		if i == 2 && strings.Contains(text, failMarker) {
			p.appendLog(fr, "ERROR: image generation failed for scene 1")
			writeDetail(w, http.StatusInternalServerError, p.logTail(fr))
			return
		}
	}

	p.mu.Lock()
	fr.video = []byte(fmt.Sprintf("fake mp4 for %s", runID))
	p.mu.Unlock()
	p.appendLog(fr, "Pipeline complete")

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"run_id":    runID,
		"video_url": fmt.Sprintf("%s://%s/video/%s", scheme, r.Host, runID),
	})
}

func (p *fakePipeline) handleLogs(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")

	p.mu.Lock()
	defer p.mu.Unlock()

	text := ""
	if fr, ok := p.runs[runID]; ok {
		text = fr.log.String()
	}
	writeJSON(w, http.StatusOK, map[string]string{"log": text})
}

func (p *fakePipeline) handleVideo(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")

	p.mu.Lock()
	fr, ok := p.runs[runID]
	var video []byte
	if ok {
		video = fr.video
	}
	p.mu.Unlock()

	if video == nil {
		writeDetail(w, http.StatusNotFound, "Video not found.")
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.mp4"`, runID))
	w.Write(video)
}

func (p *fakePipeline) handleStyles(w http.ResponseWriter, r *http.Request) {
	catalog := style.Builtin()
	writeJSON(w, http.StatusOK, map[string]any{
		"default": catalog.Default,
		"styles":  catalog.Styles,
	})
}

func (p *fakePipeline) appendLog(fr *fakeRun, format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(&fr.log, format+"\n", args...)
}

// logTail returns the end of the run log, the way the real service reports failures
func (p *fakePipeline) logTail(fr *fakeRun) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	text := fr.log.String()
	if len(text) > maxDetailBytes {
		text = text[len(text)-maxDetailBytes:]
	}
	return strings.TrimSpace(text)
}

func readUpload(r *http.Request, field string) (*attachment.File, bool, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("error reading %s: %w", field, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, false, fmt.Errorf("error reading %s: %w", field, err)
	}

	return &attachment.File{Name: header.Filename, Data: data, MIMEType: contentType(header)}, true, nil
}

func contentType(h *multipart.FileHeader) string {
	if ct := h.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
