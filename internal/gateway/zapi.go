// Package gateway is the outbound WhatsApp side: a thin Z-API client.
// Sends are single-attempt on purpose; a retried send risks a duplicate
// message in the customer's chat, which is worse than a missed one.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/wdespachante/wa-service/internal/apperrors"
	"github.com/wdespachante/wa-service/internal/config"
	"github.com/wdespachante/wa-service/pkg/logger"
)

// Sender is the outbound surface the dispatcher depends on.
type Sender interface {
	SendText(ctx context.Context, phone, message string) error
	Status(ctx context.Context) error
}

// ZAPIClient sends messages through a Z-API WhatsApp instance.
type ZAPIClient struct {
	cfg        config.GatewayConfig
	httpClient *http.Client
}

// NewZAPIClient builds a client from config.
func NewZAPIClient(cfg config.GatewayConfig) *ZAPIClient {
	return &ZAPIClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.SendTimeout},
	}
}

// Configured reports whether credentials are present. An unconfigured
// client fails every send with ErrGateway instead of panicking.
func (c *ZAPIClient) Configured() bool {
	return c.cfg.InstanceID != "" && c.cfg.Token != ""
}

type sendTextRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// SendText posts one text message. Any non-2xx status or transport error
// maps to apperrors.ErrGateway with the upstream detail preserved.
func (c *ZAPIClient) SendText(ctx context.Context, phone, message string) error {
	if !c.Configured() {
		return fmt.Errorf("%w: gateway credentials not configured", apperrors.ErrGateway)
	}

	url := fmt.Sprintf("%s/instances/%s/token/%s/send-text",
		c.cfg.BaseURL, c.cfg.InstanceID, c.cfg.Token)

	body, err := json.Marshal(sendTextRequest{Phone: phone, Message: message})
	if err != nil {
		return fmt.Errorf("%w: failed to marshal send request: %w", apperrors.ErrGateway, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: failed to build send request: %w", apperrors.ErrGateway, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.ClientToken != "" {
		req.Header.Set("Client-Token", c.cfg.ClientToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.FromContext(ctx).Warn("Gateway send failed",
			zap.String("phone", phone), zap.Error(err))
		return fmt.Errorf("%w: send-text request failed: %w", apperrors.ErrGateway, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		logger.FromContext(ctx).Warn("Gateway rejected send",
			zap.String("phone", phone),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", detail))
		return fmt.Errorf("%w: send-text returned %d: %s", apperrors.ErrGateway, resp.StatusCode, string(detail))
	}

	logger.FromContext(ctx).Info("Message sent via gateway", zap.String("phone", phone))
	return nil
}

// Status checks instance connectivity. Used by the health endpoint.
func (c *ZAPIClient) Status(ctx context.Context) error {
	if !c.Configured() {
		return fmt.Errorf("%w: gateway credentials not configured", apperrors.ErrGateway)
	}

	url := fmt.Sprintf("%s/instances/%s/token/%s/status",
		c.cfg.BaseURL, c.cfg.InstanceID, c.cfg.Token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to build status request: %w", apperrors.ErrGateway, err)
	}
	if c.cfg.ClientToken != "" {
		req.Header.Set("Client-Token", c.cfg.ClientToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: status request failed: %w", apperrors.ErrGateway, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status returned %d", apperrors.ErrGateway, resp.StatusCode)
	}
	return nil
}
