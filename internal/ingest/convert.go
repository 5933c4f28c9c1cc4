package ingest

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"

	"github.com/onepointltd/kbserver/internal/logger"
)

// Converter turns one uploaded PDF into markdown text. Implementations must
// be safe for concurrent use.
type Converter interface {
	Convert(ctx context.Context, pdf []byte) (string, error)
}

// DocumentAIConverter extracts PDF text through a Document AI OCR processor.
type DocumentAIConverter struct {
	log         *logger.Logger
	client      *documentai.DocumentProcessorClient
	processorID string
}

// NewDocumentAIConverter builds the converter from DOCUMENTAI_* env keys. A
// missing processor id means the deployment has no OCR; callers fall back to
// the passthrough converter.
func NewDocumentAIConverter(log *logger.Logger) (*DocumentAIConverter, error) {
	slog := log.With("service", "DocumentAIConverter")

	projectID := strings.TrimSpace(os.Getenv("DOCUMENTAI_PROJECT_ID"))
	processor := strings.TrimSpace(os.Getenv("DOCUMENTAI_PROCESSOR_ID"))
	if projectID == "" || processor == "" {
		return nil, fmt.Errorf("DOCUMENTAI_PROJECT_ID and DOCUMENTAI_PROCESSOR_ID required")
	}
	location := strings.TrimSpace(os.Getenv("DOCUMENTAI_LOCATION"))
	if location == "" {
		location = "us"
	}
	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", location)

	client, err := documentai.NewDocumentProcessorClient(context.Background(), option.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("documentai client: %w", err)
	}
	slog.Info("Document AI converter initialized", "endpoint", endpoint)
	return &DocumentAIConverter{
		log:         slog,
		client:      client,
		processorID: fmt.Sprintf("projects/%s/locations/%s/processors/%s", projectID, location, processor),
	}, nil
}

func (c *DocumentAIConverter) Convert(ctx context.Context, pdf []byte) (string, error) {
	if len(pdf) == 0 {
		return "", nil
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	resp, err := c.client.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: c.processorID,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  pdf,
				MimeType: "application/pdf",
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("documentai ProcessDocument: %w", err)
	}
	if resp == nil || resp.Document == nil {
		return "", nil
	}
	return resp.Document.GetText(), nil
}

func (c *DocumentAIConverter) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// PassthroughConverter is the no-OCR fallback: it emits a stub document so
// indexing still sees a text file per PDF.
type PassthroughConverter struct{}

func (PassthroughConverter) Convert(ctx context.Context, pdf []byte) (string, error) {
	return fmt.Sprintf("# Unprocessed PDF\n\nThis document was uploaded as a %d-byte PDF; no OCR processor is configured.\n", len(pdf)), nil
}
