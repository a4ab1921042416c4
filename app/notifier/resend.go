package notifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

var ErrNoRecipients = errors.New("no alert recipients configured")

type ResendConfig struct {
	APIKey      string
	BaseURL     string
	FromEmail   string
	FromName    string
	AdminEmails []string
	HTTPTimeout time.Duration
}

// ResendNotifier emails the admins through the Resend API.
type ResendNotifier struct {
	cfg    ResendConfig
	client *resty.Client
}

func NewResendNotifier(cfg ResendConfig) *ResendNotifier {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json")

	return &ResendNotifier{cfg: cfg, client: client}
}

var gatewayAlertTemplate = template.Must(template.New("gateway_alert").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
<h1 style="color: #ef4444;">All payment gateways failed</h1>
<p><strong>Order:</strong> {{.OrderID}}</p>
<p><strong>User:</strong> {{.UserID}}</p>
<p><strong>Product:</strong> {{.ProductName}}</p>
<p><strong>Method:</strong> {{.Method}}</p>
<p><strong>Amount:</strong> R$ {{.Amount}}</p>
<p><strong>At:</strong> {{.At}}</p>
<h2>Attempts</h2>
<ul>
{{range .Failures}}<li><strong>{{.Gateway}}:</strong> {{.Error}} ({{.LatencyMS}}ms)</li>
{{end}}</ul>
</div>`))

type gatewayAlertView struct {
	entity.GatewayAlert
	Amount string
	At     string
}

func (n *ResendNotifier) GatewayChainFailed(ctx context.Context, alert entity.GatewayAlert) error {
	if len(n.cfg.AdminEmails) == 0 {
		return ErrNoRecipients
	}

	var html bytes.Buffer
	view := gatewayAlertView{
		GatewayAlert: alert,
		Amount:       fmt.Sprintf("%d.%02d", alert.AmountCents/100, alert.AmountCents%100),
		At:           alert.At.UTC().Format(time.RFC3339),
	}
	if err := gatewayAlertTemplate.Execute(&html, view); err != nil {
		return err
	}

	return n.send(ctx, fmt.Sprintf("URGENT: all payment gateways failed for order %s", alert.OrderID), html.String())
}

func (n *ResendNotifier) send(ctx context.Context, subject, html string) error {
	from := n.cfg.FromEmail
	if name := strings.TrimSpace(n.cfg.FromName); name != "" {
		from = fmt.Sprintf("%s <%s>", name, n.cfg.FromEmail)
	}

	var apiErr struct {
		Message string `json:"message"`
	}
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"from":    from,
			"to":      n.cfg.AdminEmails,
			"subject": subject,
			"html":    html,
		}).
		SetError(&apiErr).
		Post("/emails")
	if err != nil {
		return err
	}
	if resp.IsError() {
		msg := apiErr.Message
		if msg == "" {
			msg = strings.TrimSpace(string(resp.Body()))
		}
		return fmt.Errorf("resend request failed: status=%d message=%s", resp.StatusCode(), msg)
	}
	return nil
}
