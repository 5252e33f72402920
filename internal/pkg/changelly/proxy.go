package changelly

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/coinchartfun/coinchart-backend/internal/pkg/env"
)

const defaultUpstreamURL = "https://changelly.com/defi-swap"

// Proxy forwards DeFi swap requests from the dashboard to the Changelly API,
// attaching the server-side API key so it never reaches the browser.
type Proxy struct {
	UpstreamURL string
	APIKey      string

	HTTPClient *http.Client
}

// NewProxyFromEnv builds the proxy from CHANGELLY_* environment variables.
func NewProxyFromEnv() *Proxy {
	return &Proxy{
		UpstreamURL: strings.TrimRight(env.GetEnv("CHANGELLY_API_URL", defaultUpstreamURL), "/"),
		APIKey:      strings.TrimSpace(env.GetEnv("CHANGELLY_API_KEY", "")),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Handler proxies the request under the mount prefix to the upstream,
// preserving method, sub-path, query string and body.
func (p *Proxy) Handler(prefix string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		targetPath := strings.TrimPrefix(c.Path(), prefix)
		targetURL := p.UpstreamURL + targetPath
		if qs := string(c.Request().URI().QueryString()); qs != "" {
			targetURL += "?" + qs
		}

		var body io.Reader
		method := c.Method()
		if method == fiber.MethodPost || method == fiber.MethodPut || method == fiber.MethodPatch {
			body = strings.NewReader(string(c.Body()))
		}

		req, err := http.NewRequestWithContext(c.UserContext(), method, targetURL, body)
		if err != nil {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "invalid upstream request"})
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Api-Key", p.APIKey)
		if ct := c.Get(fiber.HeaderContentType); ct != "" {
			req.Header.Set(fiber.HeaderContentType, ct)
		}

		resp, err := p.HTTPClient.Do(req)
		if err != nil {
			log.Errorf("[changelly] upstream request failed: %v", err)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "upstream unavailable"})
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "upstream read failed"})
		}

		c.Status(resp.StatusCode)
		if ct := resp.Header.Get(fiber.HeaderContentType); ct != "" {
			c.Set(fiber.HeaderContentType, ct)
		}
		return c.Send(payload)
	}
}
