// Package dynamo implements backend.Backend on DynamoDB.
//
// Each domain is a table keyed by item name. Attribute values are stored as
// string sets, so a key can hold several values the way the backend contract
// allows; the domain package keeps them single-valued.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/opendelivery/backend"
)

// ErrReservedKey is returned when an attribute key collides with the item key attribute.
var ErrReservedKey = errors.New("opendelivery: attribute key is reserved")

// API is the subset of the DynamoDB client used by Backend.
// *dynamodb.Client satisfies it.
type API interface {
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DeleteTable(ctx context.Context, params *dynamodb.DeleteTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Backend stores domains as DynamoDB tables.
type Backend struct {
	client API
	config Config
}

var (
	_ backend.Backend  = (*Backend)(nil)
	_ backend.Replacer = (*Backend)(nil)
)

// New creates a new Backend.
func New(client API, config Config) *Backend {
	config.validate()
	return &Backend{
		client: client,
		config: config,
	}
}

// TableName returns the table backing a domain.
func (b *Backend) TableName(domain string) string {
	return b.config.TablePrefix + domain
}

// ConsistentReads implements backend.Backend. GetItem and Scan honor ConsistentRead.
func (b *Backend) ConsistentReads() bool {
	return true
}

// DomainExists reports whether the table exists and is ACTIVE or UPDATING.
// Tables still CREATING or already DELETING count as absent.
func (b *Backend) DomainExists(ctx context.Context, domain string, _ bool) (bool, error) {
	out, err := b.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(b.TableName(domain)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if out.Table == nil {
		return false, nil
	}
	switch out.Table.TableStatus {
	case types.TableStatusActive, types.TableStatusUpdating:
		return true, nil
	default:
		return false, nil
	}
}

// DomainGone implements backend.GoneChecker. A DELETING table is not gone:
// CreateTable on it fails with ResourceInUseException until DescribeTable
// reports it not found.
func (b *Backend) DomainGone(ctx context.Context, domain string) (bool, error) {
	_, err := b.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(b.TableName(domain)),
	})
	if err == nil {
		return false, nil
	}
	if isNotFound(err) {
		return true, nil
	}
	return false, err
}

// CreateDomain creates the table. An existing table is not an error.
func (b *Backend) CreateDomain(ctx context.Context, domain string) error {
	input := &dynamodb.CreateTableInput{
		TableName: aws.String(b.TableName(domain)),
		AttributeDefinitions: []types.AttributeDefinition{{
			AttributeName: aws.String(b.config.ItemKey),
			AttributeType: types.ScalarAttributeTypeS,
		}},
		KeySchema: []types.KeySchemaElement{{
			AttributeName: aws.String(b.config.ItemKey),
			KeyType:       types.KeyTypeHash,
		}},
		BillingMode: types.BillingModePayPerRequest,
	}
	if b.config.Streams {
		input.StreamSpecification = &types.StreamSpecification{
			StreamEnabled:  aws.Bool(true),
			StreamViewType: types.StreamViewTypeNewAndOldImages,
		}
	}

	_, err := b.client.CreateTable(ctx, input)

	// Ignore in-use - table already exists
	var inUse *types.ResourceInUseException
	if errors.As(err, &inUse) {
		return nil
	}
	return err
}

// DeleteDomain deletes the table. Returns backend.ErrDomainNotFound if it does not exist.
func (b *Backend) DeleteDomain(ctx context.Context, domain string) error {
	_, err := b.client.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(b.TableName(domain)),
	})
	if isNotFound(err) {
		return backend.ErrDomainNotFound
	}
	return err
}

// GetAttributes reads one item. Missing tables and items return nil.
func (b *Backend) GetAttributes(ctx context.Context, domain, item string, consistent bool) (backend.Attributes, error) {
	out, err := b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(b.TableName(domain)),
		Key:            b.key(item),
		ConsistentRead: aws.Bool(consistent),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if out.Item == nil {
		return nil, nil
	}
	return b.decode(out.Item)
}

// PutAttributes adds values to the item's string sets, creating the item if needed.
func (b *Backend) PutAttributes(ctx context.Context, domain, item string, attrs backend.Attributes) error {
	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	var clauses []string

	keys := sortedKeys(attrs)
	for i, k := range keys {
		if k == b.config.ItemKey {
			return fmt.Errorf("%w: %s", ErrReservedKey, k)
		}
		set := uniqueValues(attrs[k])
		if len(set) == 0 {
			continue
		}
		nameKey := fmt.Sprintf("#attr%d", i)
		valueKey := fmt.Sprintf(":val%d", i)
		names[nameKey] = k
		values[valueKey] = &types.AttributeValueMemberSS{Value: set}
		clauses = append(clauses, nameKey+" "+valueKey)
	}
	if len(clauses) == 0 {
		return nil
	}

	_, err := b.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(b.TableName(domain)),
		Key:                       b.key(item),
		UpdateExpression:          aws.String("ADD " + joinStrings(clauses, ", ")),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	return err
}

// ReplaceAttribute implements backend.Replacer with a single SET.
func (b *Backend) ReplaceAttribute(ctx context.Context, domain, item, key, value string) error {
	if key == b.config.ItemKey {
		return fmt.Errorf("%w: %s", ErrReservedKey, key)
	}
	_, err := b.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(b.TableName(domain)),
		Key:              b.key(item),
		UpdateExpression: aws.String("SET #attr = :val"),
		ExpressionAttributeNames: map[string]string{
			"#attr": key,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":val": &types.AttributeValueMemberSS{Value: []string{value}},
		},
	})
	return err
}

// DeleteAttributes removes keys from the item, or the whole item when keys is nil.
func (b *Backend) DeleteAttributes(ctx context.Context, domain, item string, keys []string) error {
	if keys == nil {
		_, err := b.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(b.TableName(domain)),
			Key:       b.key(item),
		})
		if isNotFound(err) {
			return nil
		}
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	names := map[string]string{"#item": b.config.ItemKey}
	clauses := make([]string, 0, len(keys))
	for i, k := range keys {
		nameKey := fmt.Sprintf("#attr%d", i)
		names[nameKey] = k
		clauses = append(clauses, nameKey)
	}

	_, err := b.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(b.TableName(domain)),
		Key:                      b.key(item),
		UpdateExpression:         aws.String("REMOVE " + joinStrings(clauses, ", ")),
		ConditionExpression:      aws.String("attribute_exists(#item)"),
		ExpressionAttributeNames: names,
	})

	// Ignore condition failure - item does not exist
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) || isNotFound(err) {
		return nil
	}
	return err
}

// ListItems scans the table for items holding at least one attribute.
func (b *Backend) ListItems(ctx context.Context, domain string, consistent bool) ([]string, error) {
	var names []string
	paginator := dynamodb.NewScanPaginator(b.client, &dynamodb.ScanInput{
		TableName:      aws.String(b.TableName(domain)),
		ConsistentRead: aws.Bool(consistent),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			if isNotFound(err) {
				return nil, nil
			}
			return nil, err
		}
		for _, raw := range page.Items {
			if len(raw) <= 1 {
				continue
			}
			if v, ok := raw[b.config.ItemKey].(*types.AttributeValueMemberS); ok {
				names = append(names, v.Value)
			}
		}
	}
	if names == nil {
		names = []string{}
	}
	sort.Strings(names)
	return names, nil
}

func (b *Backend) key(item string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		b.config.ItemKey: &types.AttributeValueMemberS{Value: item},
	}
}

// decode converts a raw item to Attributes. Items holding only their key decode to nil.
func (b *Backend) decode(raw map[string]types.AttributeValue) (backend.Attributes, error) {
	attrs := backend.Attributes{}
	for k, v := range raw {
		if k == b.config.ItemKey {
			continue
		}
		switch av := v.(type) {
		case *types.AttributeValueMemberS:
			attrs[k] = []string{av.Value}
		case *types.AttributeValueMemberN:
			attrs[k] = []string{av.Value}
		default:
			var values []string
			if err := attributevalue.Unmarshal(v, &values); err != nil {
				return nil, fmt.Errorf("decode attribute %s: %w", k, err)
			}
			// sets come back unordered
			slices.Sort(values)
			attrs[k] = values
		}
	}
	if attrs.Len() == 0 {
		return nil, nil
	}
	return attrs, nil
}

func isNotFound(err error) bool {
	var notFound *types.ResourceNotFoundException
	return errors.As(err, &notFound)
}

func uniqueValues(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func sortedKeys(attrs backend.Attributes) []string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// joinStrings joins strings with a separator.
func joinStrings(strs []string, sep string) string {
	if len(strs) == 0 {
		return ""
	}
	result := strs[0]
	for _, s := range strs[1:] {
		result += sep + s
	}
	return result
}
