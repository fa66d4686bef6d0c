// Package ingestor handles media attachments: download, type detection,
// durable storage (Google Drive with a local-disk fallback) and optional
// vision analysis. Every ingestion attempt ends in a documentos row, even
// when a step failed; the Status field records how far it got.
package ingestor

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/wdespachante/wa-service/internal/apperrors"
	"github.com/wdespachante/wa-service/internal/config"
	"github.com/wdespachante/wa-service/internal/drive"
	"github.com/wdespachante/wa-service/internal/llm"
	"github.com/wdespachante/wa-service/internal/model"
	"github.com/wdespachante/wa-service/internal/observer"
	"github.com/wdespachante/wa-service/internal/storage"
	"github.com/wdespachante/wa-service/pkg/logger"
	"github.com/wdespachante/wa-service/pkg/utils"
)

// Document ingestion statuses.
const (
	StatusStored         = "armazenado"
	StatusStoredLocal    = "armazenado_local"
	StatusDownloadFailed = "falha_download"
	StatusStoreFailed    = "falha_armazenamento"
)

// Storage destinations, used as metric labels.
const (
	destDrive = "drive"
	destLocal = "local"
	destNone  = "none"
)

const maxDownloadBytes = 32 << 20 // 32 MiB

// Ingestor downloads and stores customer documents.
type Ingestor struct {
	docs       storage.DocumentRepo
	uploader   drive.Uploader
	vision     *llm.Client
	cfg        config.IngestConfig
	uploadsDir string
	httpClient *http.Client
}

// New creates an ingestor. uploader and vision may be nil; the ingestor
// then falls back to local disk and skips analysis.
func New(docs storage.DocumentRepo, uploader drive.Uploader, vision *llm.Client, cfg config.IngestConfig, uploadsDir string) *Ingestor {
	return &Ingestor{
		docs:       docs,
		uploader:   uploader,
		vision:     vision,
		cfg:        cfg,
		uploadsDir: uploadsDir,
		httpClient: &http.Client{Timeout: cfg.DownloadTimeout},
	}
}

// Ingest processes one media attachment. It always writes a Document row;
// the returned error reports the first failed step for the caller's log.
func (i *Ingestor) Ingest(ctx context.Context, env *model.Envelope) (*model.Document, error) {
	media := env.Media
	doc := &model.Document{
		Phone:           env.From,
		SourceMessageID: env.MessageID,
		MimeType:        media.MimeType,
		FileName:        media.FileName,
		DocType:         DetectDocumentType(env.Text, media.FileName, media.MimeType),
	}

	data, downloadErr := i.download(ctx, media.URL)
	if downloadErr != nil {
		// The row still gets a local placeholder so the operator can see
		// which attachment to chase.
		logger.FromContext(ctx).Warn("Media download failed, storing placeholder",
			zap.String("phone", env.From), zap.Error(downloadErr))
		data = nil
	}

	doc.ByteSize = int64(len(data))
	if len(data) > 0 {
		doc.ContentHash = fmt.Sprintf("%x", md5.Sum(data))
	}

	fileName := i.structuredName(env.From, doc.DocType, media.FileName)
	doc.FileName = fileName

	locator, destination, storeErr := i.store(ctx, doc.DocType, fileName, media.MimeType, data)
	doc.StorageLocator = locator
	switch {
	case downloadErr != nil:
		doc.Status = StatusDownloadFailed
	case destination == destDrive:
		doc.Status = StatusStored
	case destination == destLocal:
		doc.Status = StatusStoredLocal
	default:
		doc.Status = StatusStoreFailed
	}

	if i.cfg.VisionEnabled && i.vision != nil && len(data) > 0 {
		if analysis, aerr := i.vision.AnalyzeDocument(ctx, media.MimeType, data); aerr == nil {
			doc.Analysis = datatypes.JSON(utils.MustMarshalJSON(analysis))
			if analysis.DocType != "" && analysis.DocType != "outro" {
				doc.DocType = analysis.DocType
			}
		} else {
			logger.FromContext(ctx).Warn("Vision analysis failed", zap.Error(aerr))
		}
	}

	i.persist(ctx, doc)
	observer.IncDocumentIngested(doc.DocType, destination)

	if downloadErr != nil {
		return doc, downloadErr
	}
	if storeErr != nil {
		return doc, storeErr
	}
	return doc, nil
}

func (i *Ingestor) download(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, i.cfg.DownloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: bad media url: %w", apperrors.ErrBadRequest, err)
	}

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: media download failed: %w", apperrors.ErrUpstreamDegraded, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: media download returned %d", apperrors.ErrUpstreamDegraded, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading media body: %w", apperrors.ErrUpstreamDegraded, err)
	}
	return data, nil
}

// store tries Drive first, then local disk. Returns the locator, the
// destination label and the error that forced a fallback (nil when Drive
// worked). Empty content goes straight to the local placeholder.
func (i *Ingestor) store(ctx context.Context, docType, fileName, mimeType string, data []byte) (string, string, error) {
	if i.uploader != nil && len(data) > 0 {
		locator, err := i.uploader.Upload(ctx, docType, fileName, mimeType, data)
		if err == nil {
			return locator, destDrive, nil
		}
		logger.FromContext(ctx).Warn("Drive upload failed, falling back to local disk",
			zap.String("file", fileName), zap.Error(err))
	}

	dir := filepath.Join(i.uploadsDir, docType)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", destNone, fmt.Errorf("%w: creating uploads dir: %w", apperrors.ErrUpstreamDegraded, err)
	}
	path := filepath.Join(dir, fileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", destNone, fmt.Errorf("%w: writing local copy: %w", apperrors.ErrUpstreamDegraded, err)
	}
	return path, destLocal, nil
}

func (i *Ingestor) persist(ctx context.Context, doc *model.Document) {
	if err := i.docs.SaveDocument(ctx, doc); err != nil {
		logger.FromContext(ctx).Error("Failed to persist document row",
			zap.String("phone", doc.Phone), zap.Error(err))
	}
}

// structuredName builds date_phone_type names so a Drive folder sorts
// chronologically.
func (i *Ingestor) structuredName(phone, docType, original string) string {
	ext := filepath.Ext(original)
	if ext == "" {
		ext = ".bin"
	}
	return fmt.Sprintf("%s_%s_%s%s", utils.Now().Format("2006-01-02"), phone, docType, ext)
}

// docTypeKeywords is checked in order against caption, filename and mime.
var docTypeKeywords = []struct {
	docType  string
	keywords []string
}{
	{"crlv", []string{"crlv", "licenciamento"}},
	{"cnh", []string{"cnh", "habilitacao", "habilitação"}},
	{"rg", []string{"rg", "identidade"}},
	{"cpf", []string{"cpf"}},
	{"comprovante_residencia", []string{"comprovante", "residencia", "residência", "endereco", "endereço"}},
	{"contrato", []string{"contrato", "procuracao", "procuração"}},
}

// DetectDocumentType guesses the business document type from the message
// caption, the file name and the mime type. Unrecognized files land in the
// generic documentos bucket.
func DetectDocumentType(caption, fileName, mimeType string) string {
	haystack := strings.ToLower(caption + " " + fileName)
	for _, entry := range docTypeKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(haystack, kw) {
				return entry.docType
			}
		}
	}
	if strings.Contains(strings.ToLower(mimeType), "pdf") ||
		strings.HasSuffix(strings.ToLower(fileName), ".pdf") {
		return "pdf"
	}
	return "documentos"
}
