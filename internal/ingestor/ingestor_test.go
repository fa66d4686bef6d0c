package ingestor

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wdespachante/wa-service/internal/config"
	"github.com/wdespachante/wa-service/internal/model"
)

type fakeDocRepo struct {
	saved []*model.Document
}

func (f *fakeDocRepo) SaveDocument(ctx context.Context, doc *model.Document) error {
	f.saved = append(f.saved, doc)
	return nil
}

func (f *fakeDocRepo) ListDocuments(ctx context.Context, phone string, limit int) ([]model.Document, error) {
	return nil, nil
}

func (f *fakeDocRepo) CountDocuments(ctx context.Context) (int64, error) {
	return int64(len(f.saved)), nil
}

type fakeUploader struct {
	fail    bool
	uploads []string
}

func (f *fakeUploader) Upload(ctx context.Context, folder, fileName, mimeType string, data []byte) (string, error) {
	if f.fail {
		return "", errors.New("drive quota exceeded")
	}
	f.uploads = append(f.uploads, folder+"/"+fileName)
	return "https://drive.google.com/file/d/abc123/view", nil
}

func mediaEnvelope(text, fileName, url string) *model.Envelope {
	return &model.Envelope{
		From:      "5521964474147",
		MessageID: "wamid-1",
		Text:      text,
		Parsed:    true,
		Media:     &model.MediaRef{URL: url, FileName: fileName, MimeType: "image/jpeg"},
	}
}

func testCfg() config.IngestConfig {
	return config.IngestConfig{DownloadTimeout: 5 * time.Second}
}

func TestIngest(t *testing.T) {
	t.Run("Drive upload path", func(t *testing.T) {
		content := []byte("fake-crlv-image-bytes")
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write(content)
		}))
		defer server.Close()

		repo := &fakeDocRepo{}
		uploader := &fakeUploader{}
		ing := New(repo, uploader, nil, testCfg(), t.TempDir())

		doc, err := ing.Ingest(context.Background(), mediaEnvelope("segue o crlv do carro", "foto.jpg", server.URL))
		require.NoError(t, err)

		assert.Equal(t, "crlv", doc.DocType)
		assert.Equal(t, StatusStored, doc.Status)
		assert.Equal(t, int64(len(content)), doc.ByteSize)
		assert.Equal(t, fmt.Sprintf("%x", md5.Sum(content)), doc.ContentHash)
		assert.Contains(t, doc.StorageLocator, "drive.google.com")
		require.Len(t, repo.saved, 1)
		require.Len(t, uploader.uploads, 1)
		assert.Contains(t, uploader.uploads[0], "crlv/")
		assert.Contains(t, uploader.uploads[0], "5521964474147")
	})

	t.Run("Local fallback when Drive fails", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("pdf-bytes"))
		}))
		defer server.Close()

		dir := t.TempDir()
		repo := &fakeDocRepo{}
		ing := New(repo, &fakeUploader{fail: true}, nil, testCfg(), dir)

		doc, err := ing.Ingest(context.Background(), mediaEnvelope("contrato assinado", "contrato.pdf", server.URL))
		require.NoError(t, err)

		assert.Equal(t, "contrato", doc.DocType)
		assert.Equal(t, StatusStoredLocal, doc.Status)

		saved, err := os.ReadFile(doc.StorageLocator)
		require.NoError(t, err)
		assert.Equal(t, []byte("pdf-bytes"), saved)
		assert.Equal(t, filepath.Join(dir, "contrato"), filepath.Dir(doc.StorageLocator))
	})

	t.Run("Download failure leaves a local placeholder", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		dir := t.TempDir()
		repo := &fakeDocRepo{}
		uploader := &fakeUploader{}
		ing := New(repo, uploader, nil, testCfg(), dir)

		doc, err := ing.Ingest(context.Background(), mediaEnvelope("", "foto.jpg", server.URL))
		assert.Error(t, err)
		assert.Equal(t, StatusDownloadFailed, doc.Status)
		assert.Zero(t, doc.ByteSize)
		assert.Empty(t, doc.ContentHash)

		// Empty content never reaches Drive; the row points at an empty
		// local file the operator can chase.
		assert.Empty(t, uploader.uploads)
		assert.Equal(t, filepath.Join(dir, "documentos"), filepath.Dir(doc.StorageLocator))
		saved, err := os.ReadFile(doc.StorageLocator)
		require.NoError(t, err)
		assert.Empty(t, saved)

		require.Len(t, repo.saved, 1)
		assert.Equal(t, StatusDownloadFailed, repo.saved[0].Status)
	})

	t.Run("No uploader goes straight to local disk", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("img"))
		}))
		defer server.Close()

		ing := New(&fakeDocRepo{}, nil, nil, testCfg(), t.TempDir())

		doc, err := ing.Ingest(context.Background(), mediaEnvelope("minha cnh", "cnh.jpg", server.URL))
		require.NoError(t, err)
		assert.Equal(t, "cnh", doc.DocType)
		assert.Equal(t, StatusStoredLocal, doc.Status)
	})
}

func TestDetectDocumentType(t *testing.T) {
	testCases := []struct {
		name     string
		caption  string
		fileName string
		mimeType string
		expected string
	}{
		{"CRLV in caption", "segue o crlv", "foto.jpg", "image/jpeg", "crlv"},
		{"CNH in filename", "", "minha_cnh.jpg", "image/jpeg", "cnh"},
		{"Comprovante", "comprovante de residencia", "conta.jpg", "image/jpeg", "comprovante_residencia"},
		{"Contract PDF", "contrato de compra", "doc.pdf", "application/pdf", "contrato"},
		{"Plain PDF", "segue em anexo", "arquivo.pdf", "application/pdf", "pdf"},
		{"PDF by mime", "segue em anexo", "arquivo", "application/pdf", "pdf"},
		{"Unknown image", "olha isso", "foto.jpg", "image/jpeg", "documentos"},
		{"Licenciamento maps to CRLV", "foto do licenciamento", "img.jpg", "image/jpeg", "crlv"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, DetectDocumentType(tc.caption, tc.fileName, tc.mimeType))
		})
	}
}
