// Package web exposes the conversion service over HTTP with a small
// single-page UI for uploading archives.
package web

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"rikkaport/internal/canon"
	"rikkaport/internal/config"
	"rikkaport/internal/convert"
)

type Server struct {
	router *chi.Mux
	cfg    *config.Config
}

func NewServer(cfg *config.Config) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(allowCORS)

	s := &Server{router: router, cfg: cfg}

	router.Get("/", s.index)
	router.Get("/api/health", s.health)
	router.Post("/api/inspect", s.inspect)
	router.Post("/api/validate", s.validate)
	router.Post("/api/convert", s.convert)

	return s
}

func (s *Server) Start() error {
	slog.Info("web server starting", "addr", s.cfg.ListenAddr)
	return http.ListenAndServe(s.cfg.ListenAddr, s.router)
}

func (s *Server) index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, indexHTML)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) inspect(w http.ResponseWriter, r *http.Request) {
	inputPath, cleanup, err := s.saveSingleUpload(r, "file")
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	defer cleanup()

	res, err := convert.Inspect(inputPath)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) validate(w http.ResponseWriter, r *http.Request) {
	inputPath, cleanup, err := s.saveSingleUpload(r, "file")
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	defer cleanup()

	res, err := convert.Validate(inputPath)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) convert(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.maxUploadBytes()); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	inputPaths, cleanup, err := s.saveUploads(r, "file")
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	defer cleanup()
	if len(inputPaths) == 0 {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "at least one file upload is required"})
		return
	}

	to := fallback(r.FormValue("to"), "rikka")
	templatePath := ""
	if paths, tmplCleanup, err := s.saveUploads(r, "template"); err == nil && len(paths) > 0 {
		templatePath = paths[0]
		defer tmplCleanup()
	}
	if templatePath == "" {
		templatePath = s.cfg.TemplateFor(to)
	}

	outDir, err := os.MkdirTemp("", "rikkaport-web-out-*")
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	defer os.RemoveAll(outDir)
	outputZip := filepath.Join(outDir, "converted.zip")

	redact := s.cfg.RedactSecrets
	if v := r.FormValue("redact"); v != "" {
		redact, _ = strconv.ParseBool(v)
	}
	sourceIndex, _ := strconv.Atoi(r.FormValue("configSourceIndex"))

	manifest, err := convert.Convert(convert.ConvertOptions{
		InputPath:         inputPaths[0],
		InputPaths:        inputPaths,
		OutputPath:        outputZip,
		From:              fallback(r.FormValue("from"), "auto"),
		To:                to,
		TemplatePath:      templatePath,
		RedactSecrets:     redact,
		ConfigPrecedence:  fallback(r.FormValue("configPrecedence"), s.cfg.ConfigPrecedence),
		ConfigSourceIndex: sourceIndex,
		Progress: func(ev convert.ProgressEvent) {
			slog.Debug("convert progress", "stage", ev.Stage, "percent", ev.Percent)
		},
	})
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	payload, err := os.ReadFile(outputZip)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	mb, _ := json.Marshal(manifest)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", "attachment; filename=converted.zip")
	w.Header().Set("X-Rikkaport-Manifest", string(mb))
	_, _ = w.Write(payload)
}

func (s *Server) maxUploadBytes() int64 {
	mb := s.cfg.MaxUploadMB
	if mb <= 0 {
		mb = 200
	}
	return int64(mb) << 20
}

// saveSingleUpload parses the form if needed and stores one uploaded archive
// in a temp directory. The returned cleanup removes the directory.
func (s *Server) saveSingleUpload(r *http.Request, field string) (string, func(), error) {
	if err := r.ParseMultipartForm(s.maxUploadBytes()); err != nil {
		return "", nil, err
	}
	paths, cleanup, err := s.saveUploads(r, field)
	if err != nil {
		return "", nil, err
	}
	if len(paths) == 0 {
		cleanup()
		return "", nil, fmt.Errorf("missing %q upload", field)
	}
	return paths[0], cleanup, nil
}

func (s *Server) saveUploads(r *http.Request, field string) ([]string, func(), error) {
	if r.MultipartForm == nil {
		return nil, func() {}, fmt.Errorf("multipart form not parsed")
	}
	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		return nil, func() {}, nil
	}

	tmpDir, err := os.MkdirTemp("", "rikkaport-upload-*")
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { _ = os.RemoveAll(tmpDir) }

	paths := make([]string, 0, len(headers))
	for i, hdr := range headers {
		src, err := hdr.Open()
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		ext := filepath.Ext(hdr.Filename)
		if ext == "" {
			ext = ".zip"
		}
		path := filepath.Join(tmpDir, fmt.Sprintf("input-%d%s", i+1, ext))
		dst, err := os.Create(path)
		if err != nil {
			src.Close()
			cleanup()
			return nil, nil, err
		}
		if _, err := io.Copy(dst, src); err != nil {
			dst.Close()
			src.Close()
			cleanup()
			return nil, nil, err
		}
		dst.Close()
		src.Close()
		paths = append(paths, path)
	}
	return paths, cleanup, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, canon.PrettyJSON(data))
}

func allowCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func fallback(v, d string) string {
	if strings.TrimSpace(v) == "" {
		return d
	}
	return strings.TrimSpace(v)
}
