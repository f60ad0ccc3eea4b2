package handlers

import (
	"bytes"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/careerforge/careerforge/internal/services"
	"github.com/careerforge/careerforge/internal/utils"
	"github.com/gin-gonic/gin"
)

type ResumeHandler struct {
	svc services.ResumeService
}

func NewResumeHandler(svc services.ResumeService) *ResumeHandler {
	return &ResumeHandler{svc: svc}
}

func (h *ResumeHandler) Upload(c *gin.Context) {
	const op = "ResumeHandler.Upload"

	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	fh, err := c.FormFile("resume")
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "missing multipart field 'resume'", err))
		return
	}
	if services.ResumeMIMEType(fh.Filename) == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "only PDF, DOC and DOCX files are allowed", nil))
		return
	}
	if fh.Size <= 0 || fh.Size > services.MaxResumeBytes {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "file too large (max 10MB)", nil))
		return
	}

	file, err := fh.Open()
	if err != nil {
		writeError(c, utils.E(utils.CodeInternal, op, "failed to open upload", err))
		return
	}
	defer file.Close()

	// sniff pdf uploads; office formats are zip/ole containers and are trusted by extension
	head := make([]byte, 512)
	n, _ := io.ReadFull(file, head)
	head = head[:n]
	if strings.EqualFold(filepath.Ext(fh.Filename), ".pdf") && http.DetectContentType(head) != "application/pdf" {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "invalid content type (must be pdf)", nil))
		return
	}

	row, err := h.svc.Upload(c.Request.Context(), userID, fh.Filename, fh.Size, io.MultiReader(bytes.NewReader(head), file))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusCreated, "Resume uploaded", gin.H{"resume": row})
}

func (h *ResumeHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	rows, err := h.svc.List(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{"resumes": rows})
}

func (h *ResumeHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	row, err := h.svc.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{"resume": row})
}

func (h *ResumeHandler) Analyze(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	a, err := h.svc.Analyze(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "Resume analyzed", gin.H{"analysis": a})
}

func (h *ResumeHandler) Download(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	url, err := h.svc.DownloadURL(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{"url": url})
}

func (h *ResumeHandler) Delete(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	if err := h.svc.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "Resume deleted", nil)
}
