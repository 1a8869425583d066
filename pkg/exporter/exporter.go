// Package exporter pushes local content to every configured destination
// site. Each destination is independent: a failed delivery is logged and
// the rest still receive the documents.
package exporter

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Encoder builds the transportable documents for a content object.
type Encoder interface {
	Exportable(contentType string) bool
	EncodeWithLinked(ctx context.Context, contentID int64) ([]*models.ContentDocument, error)
}

// DestinationStore lists the sites documents are pushed to.
type DestinationStore interface {
	List(ctx context.Context, enabledOnly bool) ([]models.Destination, error)
}

// Deliverer sends one document to one destination.
type Deliverer interface {
	Deliver(ctx context.Context, dest *models.Destination, doc *models.ContentDocument) error
}

// Emitter publishes delivery lifecycle events.
type Emitter interface {
	EmitDocumentDelivered(ctx context.Context, doc *models.ContentDocument, target string) error
	EmitDeliveryFailed(ctx context.Context, doc *models.ContentDocument, target string, deliveryErr error) error
}

// Result summarizes one export run.
type Result struct {
	Documents    int      `json:"documents"`
	Destinations int      `json:"destinations"`
	Delivered    int      `json:"delivered"`
	Failed       []string `json:"failed,omitempty"`
}

// Exporter encodes a content object and fans it out to all enabled
// destinations.
type Exporter struct {
	encoder      Encoder
	destinations DestinationStore
	deliverer    Deliverer
	emitter      Emitter
	logger       ectologger.Logger
}

func New(encoder Encoder, destinations DestinationStore, deliverer Deliverer, logger ectologger.Logger) *Exporter {
	return &Exporter{
		encoder:      encoder,
		destinations: destinations,
		deliverer:    deliverer,
		logger:       logger,
	}
}

// WithEmitter publishes a delivered or failed event per destination.
func (e *Exporter) WithEmitter(emitter Emitter) *Exporter {
	e.emitter = emitter
	return e
}

// Export encodes the content object (with its linked documents, linked
// first) and delivers the batch to every enabled destination. Delivery
// failures are collected per destination, not propagated, so one dead
// site cannot block the rest.
func (e *Exporter) Export(ctx context.Context, contentID int64) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "exporter.Exporter.Export")
	defer span.End()

	docs, err := e.encoder.EncodeWithLinked(ctx, contentID)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, httperror.NewHTTPError(http.StatusUnprocessableEntity, "content is not exportable")
	}
	primary := docs[len(docs)-1]
	if !e.encoder.Exportable(primary.Type) {
		return nil, httperror.NewHTTPError(http.StatusUnprocessableEntity, "content type is not exportable")
	}

	dests, err := e.destinations.List(ctx, true)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Documents:    len(docs),
		Destinations: len(dests),
	}

	for i := range dests {
		dest := &dests[i]
		if err := e.deliverBatch(ctx, dest, docs); err != nil {
			result.Failed = append(result.Failed, dest.Name)
			continue
		}
		result.Delivered++
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"content_id":   contentID,
		"documents":    result.Documents,
		"destinations": result.Destinations,
		"delivered":    result.Delivered,
	}).Info("Export complete")

	return result, nil
}

// deliverBatch pushes the documents to one destination in order, linked
// documents before the primary. The batch stops at the first failure so
// the destination never holds a primary whose linked documents are absent.
func (e *Exporter) deliverBatch(ctx context.Context, dest *models.Destination, docs []*models.ContentDocument) error {
	for _, doc := range docs {
		if err := e.deliverer.Deliver(ctx, dest, doc); err != nil {
			e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"destination": dest.Name,
				"name":        doc.Name,
				"type":        doc.Type,
			}).Error("Delivery failed")
			if e.emitter != nil {
				_ = e.emitter.EmitDeliveryFailed(ctx, doc, dest.Name, err)
			}
			return err
		}
		if e.emitter != nil {
			_ = e.emitter.EmitDocumentDelivered(ctx, doc, dest.Name)
		}
	}
	return nil
}
