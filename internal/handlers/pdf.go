package handlers

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/onepointltd/kbserver/internal/logger"
)

// PDFRenderer turns an HTML document into PDF bytes. The rendering engine is
// a deployment concern.
type PDFRenderer interface {
	Render(ctx context.Context, html string) ([]byte, error)
}

// CommandRenderer pipes HTML through the binary named by PDF_RENDERER_CMD
// (wkhtmltopdf-style: reads HTML on stdin, writes PDF to stdout).
type CommandRenderer struct {
	log *logger.Logger
}

func NewCommandRenderer(baseLog *logger.Logger) *CommandRenderer {
	return &CommandRenderer{log: baseLog.With("service", "CommandRenderer")}
}

func (r *CommandRenderer) Render(ctx context.Context, html string) ([]byte, error) {
	command := strings.TrimSpace(os.Getenv("PDF_RENDERER_CMD"))
	if command == "" {
		return nil, fmt.Errorf("no PDF renderer configured: set PDF_RENDERER_CMD")
	}
	parts := strings.Fields(command)
	cmd := exec.CommandContext(ctx, parts[0], append(parts[1:], "-", "-")...)
	cmd.Stdin = strings.NewReader(html)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("pdf render: %w", err)
	}
	return out, nil
}

// PDFHandler exposes PDF generation from caller-supplied HTML.
type PDFHandler struct {
	log      *logger.Logger
	rt       *Runtime
	renderer PDFRenderer
}

func NewPDFHandler(rt *Runtime, renderer PDFRenderer) *PDFHandler {
	return &PDFHandler{log: rt.Log.With("handler", "PDFHandler"), rt: rt, renderer: renderer}
}

type generatePDFRequest struct {
	HTML     string `json:"html"`
	FileName string `json:"file_name"`
}

// Generate renders HTML to a PDF download. Read-only tokens may call it; the
// route sits on the middleware whitelist.
func (h *PDFHandler) Generate(c *gin.Context) {
	var req generatePDFRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidResponse(c, http.StatusBadRequest, CodeInvalidInput, "Invalid input", err.Error())
		return
	}
	if req.HTML == "" {
		InvalidResponse(c, http.StatusBadRequest, CodeInvalidInput, "Invalid input", "html is required")
		return
	}
	pdf, err := h.renderer.Render(c.Request.Context(), req.HTML)
	if err != nil {
		InvalidResponse(c, http.StatusInternalServerError, CodeServerError, "PDF generation failed", err.Error())
		return
	}
	name := req.FileName
	if name == "" {
		name = "document.pdf"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "application/pdf", pdf)
}
