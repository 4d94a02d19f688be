package browser

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"testing"
	"time"

	"catalog-harvester/lib/navigator"
	"catalog-harvester/lib/telemetry"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const listing = `<html><body>
<ul id="list">
	<li class="item"><a href="/docs/alpha.pdf">Alpha</a></li>
	<li class="item"><a href="/docs/beta.pdf">Beta</a></li>
</ul>
<button id="more" onclick="document.getElementById('list').insertAdjacentHTML('beforeend', '<li class=item><a>Gamma</a></li>'); this.disabled = true">More</button>
</body></html>`

func startBrowser(t testing.TB) string {
	t.Helper()
	ctx := context.Background()

	// suppress logging
	testcontainers.Logger = log.New(io.Discard, "", 0)

	chrome, err := testcontainers.GenericContainer(
		ctx,
		testcontainers.GenericContainerRequest{
			Started: true,
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "chromedp/headless-shell",
				ExposedPorts: []string{"9222/tcp"},
				WaitingFor:   wait.ForHTTP("/json/version").WithPort("9222/tcp"),
			},
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		err := chrome.Terminate(context.Background())
		if err != nil {
			t.Fatal(err)
		}
	})

	port, err := chrome.MappedPort(ctx, "9222/tcp")
	if err != nil {
		t.Fatal(err)
	}
	return fmt.Sprintf("ws://localhost:%s", port.Port())
}

func TestRemoteSession(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	cleanup := telemetry.SetupForTesting(t, "test:lib/navigator/browser")
	defer cleanup()

	ctx := context.Background()
	sess, cancel, err := New(ctx, Options{
		Endpoint: startBrowser(t),
		Settle:   200 * time.Millisecond,
		Timeout:  20 * time.Second,
	})
	require.NoError(t, err)
	defer cancel()

	_, err = sess.QueryAll(ctx, ".item")
	require.ErrorIs(t, err, navigator.ErrNoPage)

	require.NoError(t, sess.Navigate(ctx, "data:text/html;charset=utf-8,"+url.PathEscape(listing)))

	items, err := sess.QueryAll(ctx, ".item")
	require.NoError(t, err)
	require.Len(t, items, 2)

	link, ok, err := sess.QueryOneIn(ctx, items[1], "a")
	require.NoError(t, err)
	require.True(t, ok)
	text, err := sess.Text(ctx, link)
	require.NoError(t, err)
	require.Equal(t, "Beta", text)

	href, ok, err := sess.Attribute(ctx, link, "href")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "/docs/beta.pdf", href)

	_, ok, err = sess.Attribute(ctx, link, "data-missing")
	require.NoError(t, err)
	require.False(t, ok)

	more, ok, err := sess.QueryOne(ctx, "#more")
	require.NoError(t, err)
	require.True(t, ok)
	disabled, err := navigator.Disabled(ctx, sess, more)
	require.NoError(t, err)
	require.False(t, disabled)

	require.NoError(t, sess.Click(ctx, more))

	_, err = sess.Text(ctx, link)
	require.ErrorIs(t, err, navigator.ErrStaleElement)

	items, err = sess.QueryAll(ctx, ".item")
	require.NoError(t, err)
	require.Len(t, items, 3)

	more, ok, err = sess.QueryOne(ctx, "#more")
	require.NoError(t, err)
	require.True(t, ok)
	disabled, err = navigator.Disabled(ctx, sess, more)
	require.NoError(t, err)
	require.True(t, disabled)
}
