package restyutil

import (
	"net/http/cookiejar"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

type ClientOptions struct {
	BaseUrl   string
	UserAgent string
	Timeout   time.Duration
	// wraps the transport with a cloudflare bot-protection bypass
	CloudflareBypass bool
	// name of the tracer used for request spans
	TracerName string
	// if set, full request/response dumps are written here in debug mode
	Output InstrumentOutput
}

// NewClient creates a resty client with a cookie jar, a browser user
// agent and request instrumentation.
func NewClient(opts ClientOptions) (*resty.Client, error) {
	client := resty.New()
	if opts.BaseUrl != "" {
		client.SetBaseURL(opts.BaseUrl)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	if opts.CloudflareBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	client.SetHeader("user-agent", userAgent)

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = time.Second * 30
	}
	client.SetTimeout(timeout)

	tracerName := opts.TracerName
	if tracerName == "" {
		tracerName = "resty"
	}
	InstrumentClient(client, otel.Tracer(tracerName), opts.Output)

	return client, nil
}
