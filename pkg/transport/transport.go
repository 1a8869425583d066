// Package transport delivers encoded documents to remote sites over HTTP.
package transport

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// AccessTokenHeader carries the destination's shared secret on every
// delivery request.
const AccessTokenHeader = "X-Access-Token"

// Client pushes documents to destination intake endpoints.
type Client struct {
	http   *httpclient.Client
	logger ectologger.Logger
}

func NewClient(http *httpclient.Client, logger ectologger.Logger) *Client {
	return &Client{
		http:   http,
		logger: logger,
	}
}

// Deliver posts the document to the destination's intake endpoint. A
// non-2xx response is an error; the caller decides whether to continue
// with other destinations.
func (c *Client) Deliver(ctx context.Context, dest *models.Destination, doc *models.ContentDocument) error {
	ctx, span := tracing.StartSpan(ctx, "transport.Client.Deliver")
	defer span.End()

	headers := map[string]string{
		AccessTokenHeader: dest.AccessToken,
	}

	resp, err := c.http.PostJSON(ctx, dest.URL, doc, headers)
	if err != nil {
		return fmt.Errorf("failed to deliver to %s: %w", dest.Name, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("failed to deliver to %s: status %d", dest.Name, resp.StatusCode)
	}

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"destination": dest.Name,
		"name":        doc.Name,
		"type":        doc.Type,
		"status":      resp.StatusCode,
	}).Info("Delivered document")

	return nil
}
