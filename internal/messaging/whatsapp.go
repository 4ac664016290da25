// Package messaging holds the outbound WhatsApp gateway client. Expected
// failure modes (gateway down, bad number, unconfigured URL) are reported via
// SendResult, never raised as errors.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	md "metering_dashboard"
	"metering_dashboard/internal/logger"
)

const (
	requestTimeout   = 10 * time.Second
	maxErrorBodySize = 512
)

// WhatsAppClient posts messages to a WhatsApp HTTP gateway.
type WhatsAppClient struct {
	gatewayURL string
	token      string
	httpClient *http.Client
	log        *logger.Logger
}

func NewWhatsAppClient(gatewayURL, token string, log *logger.Logger) *WhatsAppClient {
	return &WhatsAppClient{
		gatewayURL: gatewayURL,
		token:      token,
		httpClient: &http.Client{Timeout: requestTimeout},
		log:        log,
	}
}

type sendPayload struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// Send delivers one message. Transport errors, non-2xx responses, and a
// missing gateway configuration all come back as Success=false.
func (c *WhatsAppClient) Send(ctx context.Context, phoneNumber, message string) md.SendResult {
	if c.gatewayURL == "" {
		return md.SendResult{Success: false, Error: "whatsapp gateway url not configured"}
	}

	body, err := json.Marshal(sendPayload{Phone: phoneNumber, Message: message})
	if err != nil {
		return md.SendResult{Success: false, Error: fmt.Sprintf("marshal payload: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gatewayURL, bytes.NewReader(body))
	if err != nil {
		return md.SendResult{Success: false, Error: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return md.SendResult{Success: false, Error: fmt.Sprintf("gateway unreachable: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		if c.log != nil {
			c.log.Warnw("whatsapp gateway rejected send", "status", resp.StatusCode, "phone", phoneNumber)
		}
		return md.SendResult{
			Success: false,
			Error:   fmt.Sprintf("gateway returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet)),
		}
	}
	return md.SendResult{Success: true}
}
