package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kestreldns/kestrel/internal/data"
	"github.com/kestreldns/kestrel/internal/stats"
	"github.com/kestreldns/kestrel/internal/store"
)

// maxConfigBody bounds a PUT /config request body.
const maxConfigBody = 1 << 20

// configVersionHeader carries the revision number alongside tree bodies.
const configVersionHeader = "X-Config-Version"

type handler struct {
	store  *store.Store
	stats  *stats.Collector
	logger *slog.Logger
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// statsSnapshot serves the collector snapshot. The canonical text of a
// tree is JSON, so it goes out verbatim.
func (h *handler) statsSnapshot(c *gin.Context) {
	c.Data(http.StatusOK, "application/json", []byte(h.stats.Snapshot().Str()))
}

func (h *handler) getConfig(c *gin.Context) {
	version, tree, err := h.store.Latest()
	if errors.Is(err, store.ErrNoRevision) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no config revision saved"})
		return
	}
	if err != nil {
		h.logger.Error("failed to load latest config", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load config"})
		return
	}
	c.Header(configVersionHeader, strconv.FormatInt(version, 10))
	c.Data(http.StatusOK, "application/json", []byte(tree.Str()))
}

func (h *handler) putConfig(c *gin.Context) {
	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxConfigBody)
	tree, err := data.FromReader(body)
	if err != nil {
		var perr *data.ParseError
		if errors.As(err, &perr) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":  fmt.Sprintf("parse error: %s", perr.Msg),
				"line":   perr.Line,
				"column": perr.Column,
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	version, err := h.store.Save(tree)
	if err != nil {
		h.logger.Error("failed to save config revision", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save config"})
		return
	}
	h.logger.Info("config revision saved", "version", version)
	c.JSON(http.StatusOK, gin.H{"version": version})
}

func (h *handler) configVersions(c *gin.Context) {
	versions, err := h.store.Versions()
	if err != nil {
		h.logger.Error("failed to list config revisions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list versions"})
		return
	}
	if versions == nil {
		versions = []int64{}
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions})
}

// findConfig serves one subtree of the latest revision, addressed by
// slash path.
func (h *handler) findConfig(c *gin.Context) {
	path := strings.Trim(c.Param("path"), "/")
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty config path"})
		return
	}

	version, tree, err := h.store.Latest()
	if errors.Is(err, store.ErrNoRevision) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no config revision saved"})
		return
	}
	if err != nil {
		h.logger.Error("failed to load latest config", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load config"})
		return
	}

	el, ok := tree.FindOK(path)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("config path %q not found", path)})
		return
	}
	c.Header(configVersionHeader, strconv.FormatInt(version, 10))
	c.Data(http.StatusOK, "application/json", []byte(el.Str()))
}
