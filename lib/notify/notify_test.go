package notify

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSummaryBody(t *testing.T) {
	summary := Summary{
		Title: "download finished",
		Counts: [][2]string{
			{"downloaded", "4"},
			{"failed", "1"},
		},
		Failures: []string{"https://example.com/broken.pdf: 500 Internal Server Error"},
	}
	expected := `download finished

downloaded: 4
failed: 1

failures (1):
  - https://example.com/broken.pdf: 500 Internal Server Error
`
	require.Equal(t, expected, summary.Body())
}

func TestMessage(t *testing.T) {
	cfg := Config{
		SmtpAddr: "smtp.example.com:587",
		From:     "harvester@example.com",
		To:       []string{"ops@example.com"},
		Username: "harvester",
		Password: "secret",
	}
	require.True(t, cfg.Enabled())

	raw, err := cfg.message(Summary{Title: "scrape finished"}).Bytes()
	require.NoError(t, err)
	require.True(t, strings.Contains(string(raw), "Subject: [harvester] scrape finished"))

	auth, err := cfg.auth()
	require.NoError(t, err)
	require.NotNil(t, auth)

	require.False(t, Config{SmtpAddr: "smtp.example.com:25"}.Enabled())
}

func TestDeliverDisabledIsNoop(t *testing.T) {
	// no smtp server is configured, so nothing should be attempted
	Deliver(context.Background(), Config{}, Summary{Title: "x"})
}
