package opensearch

import (
	"context"
	"crypto/tls"
	"net/http"
	"strings"
	"time"

	"github.com/mstgnz/monopay/infra/config"
	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

const (
	eventIndexPrefix = "monopay-events"
	systemLogIndex   = "monopay-system-logs"
)

// Client wraps the OpenSearch client
type Client struct {
	client  *opensearch.Client
	enabled bool
}

// NewClient creates a new OpenSearch client
func NewClient(cfg *config.AppConfig) (*Client, error) {
	opensearchConfig := opensearch.Config{
		Addresses: []string{cfg.OpenSearchURL},
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.Environment != "production",
			},
		},
		MaxRetries:    3,
		RetryOnStatus: []int{502, 503, 504, 429},
		RetryBackoff: func(i int) time.Duration {
			return time.Duration(i) * 100 * time.Millisecond
		},
	}

	if cfg.OpenSearchUser != "" && cfg.OpenSearchPass != "" {
		opensearchConfig.Username = cfg.OpenSearchUser
		opensearchConfig.Password = cfg.OpenSearchPass
	}

	client, err := opensearch.NewClient(opensearchConfig)
	if err != nil {
		return nil, err
	}

	return &Client{
		client:  client,
		enabled: cfg.EnableLogging,
	}, nil
}

// GetClient returns the underlying OpenSearch client
func (c *Client) GetClient() *opensearch.Client {
	return c.client
}

// IsEnabled reports whether documents should be indexed at all
func (c *Client) IsEnabled() bool {
	return c != nil && c.enabled
}

// EventIndexName returns the monthly index for payment events
func (c *Client) EventIndexName(t time.Time) string {
	return eventIndexPrefix + "-" + t.UTC().Format("2006.01")
}

// Ping checks that the cluster answers
func (c *Client) Ping(ctx context.Context) error {
	res, err := opensearchapi.PingRequest{}.Do(ctx, c.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return &ResponseError{Status: res.StatusCode, Body: res.String()}
	}
	return nil
}

// ResponseError is a non-2xx answer from OpenSearch
type ResponseError struct {
	Status int
	Body   string
}

func (e *ResponseError) Error() string {
	return "opensearch error: " + strings.TrimSpace(e.Body)
}
