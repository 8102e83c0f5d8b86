package scan2pdf

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/denysvitali/scan2pdf/pkg/acquire"
	"github.com/denysvitali/scan2pdf/pkg/batch"
	"github.com/denysvitali/scan2pdf/pkg/device"
	"github.com/denysvitali/scan2pdf/pkg/logutils"
	"github.com/denysvitali/scan2pdf/pkg/models"
	"github.com/denysvitali/scan2pdf/pkg/storage/fs"
	"github.com/denysvitali/scan2pdf/pkg/storage/model"
)

//go:embed static/index.html
var indexHTML []byte

var log = logrus.StandardLogger().WithField("package", "scan2pdf")

type ScannerLister interface {
	List(ctx context.Context) ([]models.Scanner, error)
}

type BatchRunner interface {
	Run(ctx context.Context, req batch.Request) (*batch.Result, error)
}

// PageArchive is where scanned pages are kept for verification
type PageArchive interface {
	model.Retriever
	model.Lister
}

type Server struct {
	e        *gin.Engine
	scanners ScannerLister
	runner   BatchRunner
	sink     *logutils.Sink
	archive  PageArchive

	defaultSavePath string
	defaultWaitTime time.Duration
}

type Option func(*Server)

// WithDefaults pre-fills the save path and wait time fields of the form
func WithDefaults(savePath string, waitTime time.Duration) Option {
	return func(s *Server) {
		s.defaultSavePath = savePath
		s.defaultWaitTime = waitTime
	}
}

// WithArchive serves the archived pages of past scans
func WithArchive(archive PageArchive) Option {
	return func(s *Server) {
		s.archive = archive
	}
}

func New(scanners ScannerLister, runner BatchRunner, sink *logutils.Sink, opts ...Option) *Server {
	s := &Server{
		e:               gin.New(),
		scanners:        scanners,
		runner:          runner,
		sink:            sink,
		defaultWaitTime: acquire.DefaultWaitTime,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.initRoutes()
	return s
}

func (s *Server) Run(addr string) error {
	log.Infof("listening on http://%s", addr)
	return s.e.Run(addr)
}

func (s *Server) Handler() http.Handler {
	return s.e
}

func (s *Server) initRoutes() {
	if s.sink != nil {
		s.e.Use(gin.LoggerWithWriter(s.sink))
	} else {
		s.e.Use(gin.Logger())
	}
	s.e.Use(gin.Recovery())
	s.e.Use(cors.Default())

	s.e.GET("/", s.handleIndex)
	g := s.e.Group("/api/v1")
	g.GET("/config", s.handleGetConfig)
	g.GET("/scanners", s.handleGetScanners)
	g.POST("/scans", s.handleScan)
	g.GET("/scans/:scanId/pages", s.handleListPages)
	g.GET("/scans/:scanId/pages/:seq", s.handleGetPage)
	g.GET("/documents", s.handleGetDocument)
	g.GET("/logs", s.handleLogs)
}

var badRequest = gin.H{
	"error": "bad request",
}

func (s *Server) handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}

type ConfigResponse struct {
	SavePath string  `json:"savePath"`
	WaitTime float64 `json:"waitTime"`
}

func (s *Server) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, ConfigResponse{
		SavePath: s.defaultSavePath,
		WaitTime: s.defaultWaitTime.Seconds(),
	})
}

func (s *Server) handleGetScanners(c *gin.Context) {
	scanners, err := s.scanners.List(c.Request.Context())
	if err != nil {
		log.Errorf("unable to list scanners: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if scanners == nil {
		scanners = []models.Scanner{}
	}
	c.JSON(http.StatusOK, scanners)
}

type ScanRequest struct {
	DeviceId string   `json:"deviceId"`
	SavePath string   `json:"savePath"`
	FileName string   `json:"fileName"`
	WaitTime *float64 `json:"waitTime"`
}

func (s *Server) handleScan(c *gin.Context) {
	var scanRequest ScanRequest
	if err := c.BindJSON(&scanRequest); err != nil {
		c.JSON(http.StatusBadRequest, badRequest)
		return
	}

	wait := s.defaultWaitTime
	if scanRequest.WaitTime != nil {
		if *scanRequest.WaitTime < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "wait time cannot be negative"})
			return
		}
		wait = time.Duration(*scanRequest.WaitTime * float64(time.Second))
	}
	savePath := scanRequest.SavePath
	if savePath == "" {
		savePath = s.defaultSavePath
	}

	res, err := s.runner.Run(c.Request.Context(), batch.Request{
		DeviceID:  scanRequest.DeviceId,
		OutputDir: savePath,
		FileName:  scanRequest.FileName,
		WaitTime:  wait,
	})
	if err != nil {
		status, message := scanErrorResponse(err)
		if status == http.StatusInternalServerError {
			log.Errorf("scan failed: %v", err)
		}
		c.JSON(status, gin.H{"error": message})
		return
	}
	c.JSON(http.StatusOK, res)
}

func scanErrorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, acquire.ErrNoDeviceSelected):
		return http.StatusBadRequest, "Please select a scanner."
	case errors.Is(err, batch.ErrInvalidOutputDir):
		return http.StatusBadRequest, "Please enter a valid save path."
	case errors.Is(err, device.ErrDeviceNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, batch.ErrBusy):
		return http.StatusConflict, "A scan is already running."
	case errors.Is(err, batch.ErrNoImages):
		return http.StatusUnprocessableEntity, "No images scanned."
	}
	return http.StatusInternalServerError, err.Error()
}

func storageErrorStatus(err error) int {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, fs.ErrInvalidPath):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func closeReader(r io.Reader) {
	if c, ok := r.(io.Closer); ok {
		_ = c.Close()
	}
}

func (s *Server) handleListPages(c *gin.Context) {
	if s.archive == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "page archive disabled"})
		return
	}
	pages, err := s.archive.ListFiles(c.Param("scanId"))
	if err != nil {
		c.JSON(storageErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	type pageResponse struct {
		SequenceId int    `json:"sequenceId"`
		MimeType   string `json:"mimeType"`
	}
	res := make([]pageResponse, 0, len(pages))
	for _, p := range pages {
		res = append(res, pageResponse{SequenceId: p.SequenceId, MimeType: p.MimeType})
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleGetPage(c *gin.Context) {
	if s.archive == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "page archive disabled"})
		return
	}
	seq, err := strconv.Atoi(c.Param("seq"))
	if err != nil || seq < 1 {
		c.JSON(http.StatusBadRequest, badRequest)
		return
	}
	page, err := s.archive.Retrieve(c.Param("scanId"), seq)
	if err != nil {
		c.JSON(storageErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	defer closeReader(page.Reader)
	c.Header("Content-Type", page.MimeType)
	http.ServeContent(c.Writer, c.Request, page.Id()+"."+page.Extension(), page.ScanTime, page.Reader)
}

// handleGetDocument serves a PDF written by a scan, given its full path
func (s *Server) handleGetDocument(c *gin.Context) {
	p := c.Query("path")
	if !strings.EqualFold(filepath.Ext(p), ".pdf") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "not a PDF file"})
		return
	}
	dir, err := fs.New(filepath.Dir(p))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	doc, err := dir.RetrieveDocument(filepath.Base(p))
	if err != nil {
		c.JSON(storageErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	defer closeReader(doc.Reader)
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", doc.Name))
	http.ServeContent(c.Writer, c.Request, doc.Name, doc.CreatedAt, doc.Reader)
}

// handleLogs streams the log as server-sent events, starting with the
// lines logged before the client connected.
func (s *Server) handleLogs(c *gin.Context) {
	if s.sink == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "log streaming disabled"})
		return
	}
	history, lines, cancel := s.sink.Subscribe()
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	for _, line := range history {
		c.SSEvent("log", line)
	}
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			c.SSEvent("log", line)
			c.Writer.Flush()
		}
	}
}
