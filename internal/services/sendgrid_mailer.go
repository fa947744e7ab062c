package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/folio/backend/internal/models"
)

type SendGridMailer struct {
	APIKey     string
	FromEmail  string
	HTTPClient *http.Client
	Endpoint   string
}

func NewSendGridMailer(apiKey string, fromEmail string) *SendGridMailer {
	return &SendGridMailer{
		APIKey:    strings.TrimSpace(apiKey),
		FromEmail: strings.TrimSpace(fromEmail),
		Endpoint:  "https://api.sendgrid.com/v3/mail/send",
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type sendGridEmailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridPersonalization struct {
	To         []sendGridEmailAddress `json:"to"`
	Subject    string                 `json:"subject"`
	CustomArgs map[string]string      `json:"custom_args,omitempty"`
}

type sendGridMailSendRequest struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridEmailAddress      `json:"from"`
	Content          []sendGridContent         `json:"content"`
}

func (m *SendGridMailer) SendLowContentEmail(ctx context.Context, n *models.Notification) error {
	if m == nil {
		return fmt.Errorf("sendgrid mailer not configured")
	}
	if m.APIKey == "" {
		return fmt.Errorf("missing SENDGRID_API_KEY")
	}
	if m.FromEmail == "" {
		return fmt.Errorf("missing NOTIFY_FROM_EMAIL")
	}
	if strings.TrimSpace(n.Recipient.Email) == "" {
		return fmt.Errorf("missing NOTIFY_TO_EMAIL")
	}

	reqBody := sendGridMailSendRequest{
		Personalizations: []sendGridPersonalization{
			{
				To:      []sendGridEmailAddress{{Email: n.Recipient.Email, Name: n.Recipient.Name}},
				Subject: lowContentSubject(n),
				CustomArgs: map[string]string{
					"notification_id": n.ID,
				},
			},
		},
		From: sendGridEmailAddress{
			Email: m.FromEmail,
			Name:  "Portfolio Notifications",
		},
		Content: []sendGridContent{
			{Type: "text/plain", Value: lowContentBody(n)},
		},
	}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.APIKey)
	req.Header.Set("Content-Type", "application/json")

	client := m.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// SendGrid returns 202 Accepted on success.
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("sendgrid mail send http %d", resp.StatusCode)
	}
	return nil
}

func lowContentSubject(n *models.Notification) string {
	if len(n.Sections) == 1 {
		return fmt.Sprintf("Your portfolio needs more %s", n.Sections[0].DisplayName)
	}
	return fmt.Sprintf("%d portfolio sections need more content", len(n.Sections))
}

func lowContentBody(n *models.Notification) string {
	var sb strings.Builder
	name := strings.TrimSpace(n.Recipient.Name)
	if name == "" {
		name = "there"
	}
	fmt.Fprintf(&sb, "Hi %s,\n\nSome sections of your portfolio are running low:\n\n", name)
	for _, s := range n.Sections {
		fmt.Fprintf(&sb, "- %s: %d published, add %d more\n", s.DisplayName, s.Count, s.Needed)
	}
	sb.WriteString("\nAdding content keeps your site looking complete.\n")
	return sb.String()
}
