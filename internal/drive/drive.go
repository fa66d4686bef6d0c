// Package drive uploads ingested customer documents to Google Drive,
// organized into per-type folders under a configured root folder.
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/wdespachante/wa-service/internal/apperrors"
	"github.com/wdespachante/wa-service/internal/config"
	"github.com/wdespachante/wa-service/pkg/logger"
)

// Uploader stores document bytes somewhere durable and returns a locator.
type Uploader interface {
	Upload(ctx context.Context, folder, fileName, mimeType string, data []byte) (string, error)
}

// Service uploads files to Google Drive using a stored OAuth token.
type Service struct {
	svc          *drive.Service
	rootFolderID string

	mu      sync.Mutex
	folders map[string]string // folder name -> drive ID
}

// NewService builds a Drive client from config. The token file must hold a
// previously-issued oauth2 refresh token; there is no interactive flow here.
func NewService(ctx context.Context, cfg config.DriveConfig) (*Service, error) {
	if !cfg.Enabled() {
		logger.Log.Info("Google Drive uploads disabled")
		return nil, nil
	}

	token, err := readToken(cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read drive token: %w", apperrors.ErrUpstreamDegraded, err)
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.google.com/o/oauth2/auth",
			TokenURL: "https://oauth2.googleapis.com/token",
		},
		Scopes: []string{drive.DriveFileScope},
	}

	svc, err := drive.NewService(ctx, option.WithTokenSource(oauthCfg.TokenSource(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create drive service: %w", apperrors.ErrUpstreamDegraded, err)
	}

	logger.Log.Info("Google Drive uploader initialized", zap.String("root_folder", cfg.FolderID))
	return &Service{
		svc:          svc,
		rootFolderID: cfg.FolderID,
		folders:      make(map[string]string),
	}, nil
}

// Upload writes the file into the named per-type subfolder, creating the
// subfolder on first use, and returns the Drive webViewLink.
func (s *Service) Upload(ctx context.Context, folder, fileName, mimeType string, data []byte) (string, error) {
	if s == nil {
		return "", fmt.Errorf("%w: drive uploader not configured", apperrors.ErrUpstreamDegraded)
	}

	folderID, err := s.ensureFolder(ctx, folder)
	if err != nil {
		return "", err
	}

	meta := &drive.File{
		Name:     fileName,
		Parents:  []string{folderID},
		MimeType: mimeType,
	}
	created, err := s.svc.Files.Create(meta).
		Context(ctx).
		Media(bytes.NewReader(data)).
		Fields("id, webViewLink").
		Do()
	if err != nil {
		return "", fmt.Errorf("%w: drive upload failed: %w", apperrors.ErrUpstreamDegraded, err)
	}

	logger.FromContext(ctx).Info("Document uploaded to Drive",
		zap.String("file", fileName),
		zap.String("folder", folder),
		zap.String("drive_id", created.Id))

	if created.WebViewLink != "" {
		return created.WebViewLink, nil
	}
	return fmt.Sprintf("https://drive.google.com/file/d/%s/view", created.Id), nil
}

// ensureFolder finds or creates the per-type subfolder under the root.
func (s *Service) ensureFolder(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	if id, ok := s.folders[name]; ok {
		s.mu.Unlock()
		return id, nil
	}
	s.mu.Unlock()

	query := fmt.Sprintf("name = '%s' and mimeType = 'application/vnd.google-apps.folder' and '%s' in parents and trashed = false",
		name, s.rootFolderID)
	list, err := s.svc.Files.List().Context(ctx).Q(query).Fields("files(id)").Do()
	if err != nil {
		return "", fmt.Errorf("%w: drive folder lookup failed: %w", apperrors.ErrUpstreamDegraded, err)
	}

	var folderID string
	if len(list.Files) > 0 {
		folderID = list.Files[0].Id
	} else {
		created, err := s.svc.Files.Create(&drive.File{
			Name:     name,
			MimeType: "application/vnd.google-apps.folder",
			Parents:  []string{s.rootFolderID},
		}).Context(ctx).Fields("id").Do()
		if err != nil {
			return "", fmt.Errorf("%w: drive folder create failed: %w", apperrors.ErrUpstreamDegraded, err)
		}
		folderID = created.Id
	}

	s.mu.Lock()
	s.folders[name] = folderID
	s.mu.Unlock()
	return folderID, nil
}

func readToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var token oauth2.Token
	if err := json.NewDecoder(f).Decode(&token); err != nil {
		return nil, fmt.Errorf("invalid token file %s: %w", path, err)
	}
	return &token, nil
}
