package browser

import (
	"testing"

	"catalog-harvester/lib/navigator"

	"github.com/chromedp/cdproto/cdp"
	"github.com/stretchr/testify/require"
)

func TestEndpointURL(t *testing.T) {
	cases := []struct {
		endpoint string
		token    string
		expected string
	}{
		{"wss://chrome.browserless.io", "", "wss://chrome.browserless.io"},
		{"wss://chrome.browserless.io", "abc", "wss://chrome.browserless.io?token=abc"},
		{"ws://localhost:3000/?stealth=true", "t0k", "ws://localhost:3000/?stealth=true&token=t0k"},
	}
	for _, tc := range cases {
		result, err := endpointURL(tc.endpoint, tc.token)
		require.NoError(t, err)
		require.Equal(t, tc.expected, result)
	}
}

func TestStaleElement(t *testing.T) {
	s := &Session{generation: 2, loaded: true}

	_, err := s.unwrap(element{node: &cdp.Node{NodeName: "DIV"}, generation: 1})
	require.ErrorIs(t, err, navigator.ErrStaleElement)

	e, err := s.unwrap(element{node: &cdp.Node{NodeName: "DIV"}, generation: 2})
	require.NoError(t, err)
	require.Equal(t, "<div>", e.String())
}

func TestRemoteOptions(t *testing.T) {
	require.Len(t, remoteOptions("ws://localhost:9222"), 0)
	require.Len(t, remoteOptions("ws://localhost:9222/"), 0)
	require.Len(t, remoteOptions("wss://chrome.browserless.io?token=abc"), 1)
	require.Len(t, remoteOptions("ws://127.0.0.1:9222/devtools/browser/5a3e"), 1)
}
