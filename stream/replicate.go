// Package stream provides DynamoDB Streams handlers that replicate a domain
// table into another domain.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/opendelivery/domain"
)

// DefaultItemKey is the partition key attribute written by backend/dynamo.
const DefaultItemKey = "item_name"

// Handler replays stream records of a source domain table onto a target domain.
type Handler struct {
	target       *domain.Store
	targetDomain string
	itemKey      string
	logger       *slog.Logger
}

// NewHandler creates a new stream handler. An empty itemKey uses DefaultItemKey.
func NewHandler(target *domain.Store, targetDomain, itemKey string, logger *slog.Logger) *Handler {
	if itemKey == "" {
		itemKey = DefaultItemKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		target:       target,
		targetDomain: targetDomain,
		itemKey:      itemKey,
		logger:       logger,
	}
}

// HandleReplicate processes DynamoDB stream events from a domain table.
// This function is designed to be used as an AWS Lambda handler.
func (h *Handler) HandleReplicate(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to replicate record",
				"eventID", record.EventID,
				"domain", h.targetDomain,
				"error", err,
			)
			return err // Lambda retries the batch from this record
		}
	}
	return nil
}

func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	item := getStringAttr(record.Change.Keys, h.itemKey)
	if item == "" {
		h.logger.Warn("skipping record without item key",
			"eventID", record.EventID,
			"key", h.itemKey,
		)
		return nil
	}

	switch record.EventName {
	case "INSERT", "MODIFY":
		return h.replicateItem(ctx, item, record.Change.OldImage, record.Change.NewImage)
	case "REMOVE":
		if err := h.target.DestroyItem(ctx, h.targetDomain, item); err != nil {
			return fmt.Errorf("replicate remove of %s: %w", item, err)
		}
		h.logger.Info("replicated item removal", "domain", h.targetDomain, "item", item)
		return nil
	default:
		return nil
	}
}

func (h *Handler) replicateItem(ctx context.Context, item string, oldImage, newImage map[string]events.DynamoDBAttributeValue) error {
	oldProps := properties(oldImage, h.itemKey)
	newProps := properties(newImage, h.itemKey)

	for _, key := range sortedKeys(newProps) {
		value := newProps[key]
		if prev, ok := oldProps[key]; ok && prev == value {
			continue
		}
		if err := h.target.SetProperty(ctx, h.targetDomain, item, key, value); err != nil {
			return fmt.Errorf("replicate %s/%s: %w", item, key, err)
		}
	}

	for _, key := range sortedKeys(oldProps) {
		if _, ok := newProps[key]; ok {
			continue
		}
		if err := h.target.DeleteProperty(ctx, h.targetDomain, item, key); err != nil {
			return fmt.Errorf("replicate delete of %s/%s: %w", item, key, err)
		}
	}

	h.logger.Debug("replicated item",
		"domain", h.targetDomain,
		"item", item,
		"properties", len(newProps),
	)
	return nil
}

// properties reduces an image to one value per key, skipping the item key.
func properties(image map[string]events.DynamoDBAttributeValue, itemKey string) map[string]string {
	result := make(map[string]string, len(image))
	for key := range image {
		if key == itemKey {
			continue
		}
		if value, ok := firstValue(image, key); ok {
			result[key] = value
		}
	}
	return result
}

// firstValue returns the value a domain read would report for key: the
// smallest member of a string set, or a plain string or number.
func firstValue(image map[string]events.DynamoDBAttributeValue, key string) (string, bool) {
	v, ok := image[key]
	if !ok {
		return "", false
	}
	switch v.DataType() {
	case events.DataTypeString:
		return v.String(), true
	case events.DataTypeNumber:
		return v.Number(), true
	case events.DataTypeStringSet:
		values := getStringSetAttr(image, key)
		if len(values) == 0 {
			return "", false
		}
		return values[0], true
	default:
		return "", false
	}
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}

// getStringSetAttr extracts a string set attribute, sorted, from a DynamoDB stream image.
func getStringSetAttr(image map[string]events.DynamoDBAttributeValue, key string) []string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeStringSet {
		result := slices.Clone(v.StringSet())
		slices.Sort(result)
		return result
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
