package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/daaty/dashboard-mobilidade-urbana-main/bootstrap"
	"github.com/daaty/dashboard-mobilidade-urbana-main/cache"
	"github.com/daaty/dashboard-mobilidade-urbana-main/config"
	"github.com/daaty/dashboard-mobilidade-urbana-main/models"
	"github.com/daaty/dashboard-mobilidade-urbana-main/models/reports"
	"github.com/daaty/dashboard-mobilidade-urbana-main/utils"
	"github.com/daaty/dashboard-mobilidade-urbana-main/workflow"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const maxHistoryLimit = 200

type apiHandlers struct {
	imports   *workflow.ImportService
	reports   *reports.Service
	cache     cache.Cache
	logger    logrus.FieldLogger
	uploadDir string
	maxBytes  int64
}

func newAPIHandlers(app *bootstrap.App) *apiHandlers {
	return &apiHandlers{
		imports:   app.Imports,
		reports:   app.Reports,
		cache:     app.Cache,
		logger:    app.Logger,
		uploadDir: app.Config.Import.UploadDir,
		maxBytes:  app.Config.Import.MaxBytes,
	}
}

// saveUpload validates the multipart "file" field and stores it under the
// upload dir with a random name. The caller removes the returned path.
func (h *apiHandlers) saveUpload(c *gin.Context) (path, filename string, ok bool) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return "", "", false
	}
	if err := workflow.ValidateUpload(file.Filename, file.Size, h.maxBytes); err != nil {
		c.JSON(uploadErrorStatus(err), gin.H{"error": err.Error()})
		return "", "", false
	}
	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		config.LogError(h.logger, "imports.go", "saveUpload", "MkdirAll", h.uploadDir, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store upload"})
		return "", "", false
	}
	path = filepath.Join(h.uploadDir, uuid.NewString()+strings.ToLower(filepath.Ext(file.Filename)))
	if err := c.SaveUploadedFile(file, path); err != nil {
		config.LogError(h.logger, "imports.go", "saveUpload", "SaveUploadedFile", file.Filename, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store upload"})
		return "", "", false
	}
	return path, filepath.Base(file.Filename), true
}

func (h *apiHandlers) removeUpload(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		h.logger.WithError(err).WithField("path", path).Warn("upload not removed")
	}
}

func uploadErrorStatus(err error) int {
	switch {
	case errors.Is(err, utils.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, utils.ErrUnsupportedFileType),
		errors.Is(err, utils.ErrInvalidImportType),
		errors.Is(err, utils.ErrMissingColumn):
		return http.StatusBadRequest
	default:
		return http.StatusUnprocessableEntity
	}
}

func importTypeParam(c *gin.Context, raw string) (models.ImportType, bool) {
	t, ok := models.ParseImportType(raw)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be rides, drivers or targets"})
	}
	return t, ok
}

func (h *apiHandlers) previewImport(c *gin.Context) {
	importType, ok := importTypeParam(c, c.PostForm("type"))
	if !ok {
		return
	}
	path, _, ok := h.saveUpload(c)
	if !ok {
		return
	}
	defer h.removeUpload(path)

	preview, err := h.imports.Preview(path, importType)
	if err != nil {
		c.JSON(uploadErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, preview)
}

// runImport accepts an optional "mapping" form field holding a JSON object
// from import field to column name.
func (h *apiHandlers) runImport(c *gin.Context) {
	importType, ok := importTypeParam(c, c.Param("type"))
	if !ok {
		return
	}
	var mapping workflow.ColumnMapping
	if raw := strings.TrimSpace(c.PostForm("mapping")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "mapping must be a JSON object"})
			return
		}
	}
	path, filename, ok := h.saveUpload(c)
	if !ok {
		return
	}
	defer h.removeUpload(path)

	result, err := h.imports.Import(c.Request.Context(), path, filename, importType, mapping)
	if err != nil {
		if result == nil {
			c.JSON(uploadErrorStatus(err), gin.H{"success": false, "error": err.Error()})
			return
		}
		c.JSON(uploadErrorStatus(err), result)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *apiHandlers) importHistory(c *gin.Context) {
	limit := queryInt(c, "limit", 20, 1, maxHistoryLimit)
	logs, err := h.imports.History(c.Request.Context(), limit)
	if err != nil {
		config.LogError(h.logger, "imports.go", "importHistory", "History", limit, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load import history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"imports": logs})
}

// queryInt reads a positive integer query parameter clamped to [min, max].
// Missing or malformed values use def.
func queryInt(c *gin.Context, name string, def, min, max int) int {
	n, err := strconv.Atoi(strings.TrimSpace(c.Query(name)))
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}
