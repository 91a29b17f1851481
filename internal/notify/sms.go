package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const smsTimeout = 15 * time.Second

// SMSLocalChannel sends codes through the SMS Local OTP route.
type SMSLocalChannel struct {
	APIKey     string
	BaseURL    string
	Sender     string
	HTTPClient *http.Client
}

// NewSMSLocalChannel returns a channel for the given API key, base URL and optional sender id.
func NewSMSLocalChannel(apiKey, baseURL, sender string) *SMSLocalChannel {
	return &SMSLocalChannel{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		Sender:     sender,
		HTTPClient: &http.Client{Timeout: smsTimeout},
	}
}

func (c *SMSLocalChannel) Name() string { return "sms" }

// Deliver posts the code to the contact's phone. Contacts without a phone are skipped.
func (c *SMSLocalChannel) Deliver(ctx context.Context, to Contact, code string, expiresAt time.Time) (bool, error) {
	if to.Phone == "" {
		return false, nil
	}
	if c.APIKey == "" {
		return false, fmt.Errorf("sms: API key not configured")
	}
	body := map[string]string{
		"route":     "otp",
		"numbers":   to.Phone,
		"variables": code,
	}
	if c.Sender != "" {
		body["sender_id"] = c.Sender
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.APIKey)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return false, fmt.Errorf("sms: request failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return true, nil
}
