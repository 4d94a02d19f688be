// Package notify emails a short summary when a run finishes.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("catalog-harvester/lib/notify")

type Config struct {
	SmtpAddr string   `json:"smtp_addr"`
	From     string   `json:"from"`
	To       []string `json:"to"`
	Username string   `json:"username"`
	Password string   `json:"password"`
}

func (c Config) Enabled() bool {
	return c.SmtpAddr != "" && c.From != "" && len(c.To) > 0
}

type Summary struct {
	Title string
	// Counts are rendered in order as "name: value" lines.
	Counts [][2]string
	// Failures are listed one per line below the counts.
	Failures []string
}

func (s Summary) Body() string {
	var sb strings.Builder
	sb.WriteString(s.Title)
	sb.WriteString("\n\n")
	for _, c := range s.Counts {
		fmt.Fprintf(&sb, "%s: %s\n", c[0], c[1])
	}
	if len(s.Failures) > 0 {
		fmt.Fprintf(&sb, "\nfailures (%d):\n", len(s.Failures))
		for _, f := range s.Failures {
			fmt.Fprintf(&sb, "  - %s\n", f)
		}
	}
	return sb.String()
}

func (c Config) message(summary Summary) *email.Email {
	e := email.NewEmail()
	e.From = c.From
	e.To = c.To
	e.Subject = "[harvester] " + summary.Title
	e.Text = []byte(summary.Body())
	return e
}

func (c Config) auth() (smtp.Auth, error) {
	if c.Username == "" {
		return nil, nil
	}
	host, _, err := net.SplitHostPort(c.SmtpAddr)
	if err != nil {
		return nil, err
	}
	return smtp.PlainAuth("", c.Username, c.Password, host), nil
}

func (c Config) Send(ctx context.Context, summary Summary) error {
	ctx, span := tracer.Start(ctx, "Send")
	defer span.End()

	auth, err := c.auth()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid smtp address")
		return err
	}
	err = c.message(summary).Send(c.SmtpAddr, auth)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
	}
	return err
}

// Deliver sends the summary if notifications are configured. Failing to
// send is logged and otherwise ignored.
func Deliver(ctx context.Context, cfg Config, summary Summary) {
	if !cfg.Enabled() {
		return
	}
	if err := cfg.Send(ctx, summary); err != nil {
		slog.WarnContext(ctx, "failed to send run summary", "to", cfg.To, "err", err)
	}
}
