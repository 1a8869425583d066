// Package events handles event emission for document lifecycle changes
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Emitter publishes document lifecycle events. All emit methods are best
// effort from the caller's point of view; a publish failure never fails
// the pipeline step that triggered it.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitDocumentStaged emits an event after an inbound document has been
// written to the staging table.
func (e *Emitter) EmitDocumentStaged(ctx context.Context, record *models.StagingRecord, inserted bool) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitDocumentStaged")
	defer span.End()

	data, _ := json.Marshal(map[string]any{
		"schema_version": SchemaVersion,
		"record_id":      record.ID,
		"inserted":       inserted,
	})

	event := &kafka.DocumentEvent{
		EventType: "document.staged",
		Name:      record.Name,
		Type:      record.Type,
		Channel:   record.Channel,
		Status:    record.Status,
		Data:      data,
	}

	if err := e.producer.PublishDocumentEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit document.staged event")
		return err
	}

	return nil
}

// EmitContentMaterialized emits an event after a staged document has been
// turned into local content.
func (e *Emitter) EmitContentMaterialized(ctx context.Context, record *models.StagingRecord, contentID int64) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitContentMaterialized")
	defer span.End()

	event := &kafka.DocumentEvent{
		EventType: "content.materialized",
		Name:      record.Name,
		Type:      record.Type,
		Channel:   record.Channel,
		Status:    models.StatusUpToDate,
		ContentID: contentID,
	}

	if err := e.producer.PublishDocumentEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit content.materialized event")
		return err
	}

	return nil
}

// EmitDocumentDelivered emits an event after an outbound document has been
// accepted by a destination.
func (e *Emitter) EmitDocumentDelivered(ctx context.Context, doc *models.ContentDocument, target string) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitDocumentDelivered")
	defer span.End()

	event := &kafka.DocumentEvent{
		EventType: "document.delivered",
		Name:      doc.Name,
		Type:      doc.Type,
		Channel:   doc.Channel,
		Target:    target,
	}

	if err := e.producer.PublishDocumentEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit document.delivered event")
		return err
	}

	return nil
}

// EmitDeliveryFailed emits an event after delivery to a destination has
// exhausted its attempts.
func (e *Emitter) EmitDeliveryFailed(ctx context.Context, doc *models.ContentDocument, target string, deliveryErr error) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitDeliveryFailed")
	defer span.End()

	event := &kafka.DocumentEvent{
		EventType: "delivery.failed",
		Name:      doc.Name,
		Type:      doc.Type,
		Channel:   doc.Channel,
		Target:    target,
		Error:     deliveryErr.Error(),
	}

	if err := e.producer.PublishDocumentEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit delivery.failed event")
		return err
	}

	return nil
}
