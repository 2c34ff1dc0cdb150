package httpx

import (
	"net/http"
	"time"
)

const defaultExternalHTTPTimeout = 30 * time.Second

// UserAgent is sent on every outbound request; the results site rejects
// requests without a browser-looking agent.
const UserAgent = "Mozilla/5.0"

var externalHTTPClient = &http.Client{
	Timeout: defaultExternalHTTPTimeout,
}

// Client returns the shared client used for webhooks, subscriber lists and
// the LLM HTTP providers.
func Client() *http.Client {
	return externalHTTPClient
}

func ConfigureExternalHTTPClient(timeoutSeconds int) time.Duration {
	timeout := defaultExternalHTTPTimeout
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	externalHTTPClient.Timeout = timeout
	return timeout
}
