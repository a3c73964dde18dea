package delivery

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"paie/internal/attendance"
)

// Header names used on signed gateway requests.
const (
	HeaderTimestamp = "X-Paie-Timestamp"
	HeaderSignature = "X-Paie-Signature"
)

// Gateway posts codes to an HTTP messaging gateway (SMS, chat, mail relay).
type Gateway struct {
	BaseURL string
	Secret  string
	HTTP    *http.Client
	Skip    bool

	now func() time.Time
}

// NewGateway creates a client. With skip set, sends succeed without a call.
func NewGateway(baseURL, secret string, skip bool) *Gateway {
	return &Gateway{
		BaseURL: baseURL,
		Secret:  secret,
		Skip:    skip,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
		now:     time.Now,
	}
}

type gatewayMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	Code    string `json:"code"`
	Expires int    `json:"expires_in_minutes"`
}

// Deliver sends one message through the gateway.
func (g *Gateway) Deliver(ctx context.Context, d attendance.Delivery) error {
	if g.Skip {
		return nil
	}
	body, err := json.Marshal(gatewayMessage{
		To:      d.Address,
		Subject: Subject,
		Text:    Body(d),
		Code:    d.Code,
		Expires: d.ExpiryMinutes,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.Secret != "" {
		ts := strconv.FormatInt(g.now().Unix(), 10)
		req.Header.Set(HeaderTimestamp, ts)
		req.Header.Set(HeaderSignature, Sign(g.Secret, ts, body))
	}

	resp, err := g.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gateway error %s: %s", resp.Status, string(bodyBytes))
	}
	return nil
}

// Health checks if the gateway is available.
func (g *Gateway) Health(ctx context.Context) error {
	if g.Skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := g.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("gateway unavailable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("gateway unhealthy: %s", resp.Status)
	}
	return nil
}

// Sign computes the hex HMAC-SHA256 of "timestamp.body" under secret.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
