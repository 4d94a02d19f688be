package notify

import (
	"context"
	"fmt"
	"io"
	"log"
	"testing"

	"catalog-harvester/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startSmtp runs a fake smtp server and returns its smtp address and the
// base url of its message api.
func startSmtp(t testing.TB) (string, string) {
	t.Helper()
	ctx := context.Background()

	// suppress logging
	testcontainers.Logger = log.New(io.Discard, "", 0)

	smtp, err := testcontainers.GenericContainer(
		ctx,
		testcontainers.GenericContainerRequest{
			Started: true,
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "haravich/fake-smtp-server",
				ExposedPorts: []string{"1025/tcp", "1080/tcp"},
				WaitingFor:   wait.ForLog("smtp://0.0.0.0:1025"),
			},
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		err := smtp.Terminate(context.Background())
		if err != nil {
			t.Fatal(err)
		}
	})

	smtpPort, err := smtp.MappedPort(ctx, "1025/tcp")
	if err != nil {
		t.Fatal(err)
	}
	apiPort, err := smtp.MappedPort(ctx, "1080/tcp")
	if err != nil {
		t.Fatal(err)
	}
	// plain auth is only allowed without tls when the host is localhost
	return fmt.Sprintf("localhost:%s", smtpPort.Port()),
		fmt.Sprintf("http://localhost:%s", apiPort.Port())
}

func TestSend(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	cleanup := telemetry.SetupForTesting(t, "test:lib/notify")
	defer cleanup()

	addr, api := startSmtp(t)
	cfg := Config{
		SmtpAddr: addr,
		From:     "harvester@email.com",
		To:       []string{"ops@email.com"},
		Username: "harvester@email.com",
		Password: "default",
	}

	err := cfg.Send(context.Background(), Summary{
		Title:    "download finished",
		Counts:   [][2]string{{"records", "5"}, {"failed", "1"}},
		Failures: []string{"https://example.com/broken.pdf: 500 Internal Server Error"},
	})
	require.NoError(t, err)

	res, err := resty.New().R().Get(api + "/messages/1.plain")
	require.NoError(t, err)
	require.False(t, res.IsError(), res.Status())
	require.Contains(t, res.String(), "records: 5")
	require.Contains(t, res.String(), "https://example.com/broken.pdf: 500 Internal Server Error")
}

func TestSendUnreachable(t *testing.T) {
	cfg := Config{
		SmtpAddr: "localhost:1",
		From:     "harvester@email.com",
		To:       []string{"ops@email.com"},
	}
	require.Error(t, cfg.Send(context.Background(), Summary{Title: "x"}))

	// delivery failures are only logged
	Deliver(context.Background(), cfg, Summary{Title: "x"})
}
