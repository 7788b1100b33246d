// Package dynamo implements the remote topic store on top of DynamoDB.
//
// Each topic is one item keyed by PK=TOPIC#<id>, SK=METADATA. Items are
// mapped to topic.Topic through ddbTopic; nothing outside this package sees
// attribute values.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/lazypower/topicgraph/internal/topic"
)

const (
	pkPrefix   = "TOPIC#"
	skMetadata = "METADATA"
)

// API is the subset of the DynamoDB client the store uses.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// ddbTopic is the item layout of a topic document.
type ddbTopic struct {
	PK        string   `dynamodbav:"PK"`
	SK        string   `dynamodbav:"SK"`
	TopicID   string   `dynamodbav:"TopicID"`
	Title     string   `dynamodbav:"Title"`
	TopicType string   `dynamodbav:"TopicType"`
	Parents   []string `dynamodbav:"Parents"`
	Content   string   `dynamodbav:"Content,omitempty"`
	CreatedAt string   `dynamodbav:"CreatedAt"`
	UpdatedAt string   `dynamodbav:"UpdatedAt"`
}

// Config selects the table and, for local development, an endpoint.
type Config struct {
	Table    string
	Region   string
	Endpoint string
}

// Store is a remote.Store backed by a DynamoDB table.
type Store struct {
	api    API
	table  string
	logger *zap.Logger
}

// New builds a Store from the default AWS credential chain.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewWithAPI(client, cfg.Table, logger), nil
}

// NewWithAPI wraps an existing client.
func NewWithAPI(api API, table string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{api: api, table: table, logger: logger}
}

func topicKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pkPrefix + id},
		"SK": &types.AttributeValueMemberS{Value: skMetadata},
	}
}

// GetTopic fetches one topic document.
func (s *Store) GetTopic(ctx context.Context, id string) (*topic.Topic, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       topicKey(id),
	})
	if err != nil {
		return nil, classify(fmt.Errorf("get topic %s: %w", id, err))
	}
	if len(out.Item) == 0 {
		return nil, topic.ErrNotFound
	}

	var item ddbTopic
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal topic %s: %w", id, err)
	}
	return fromItem(item)
}

// ChildTopics scans for documents whose Parents list contains parentID and
// whose TopicType is one of topicTypes. Results are ordered by creation time
// then ID, since scan order is not stable.
func (s *Store) ChildTopics(ctx context.Context, parentID string, topicTypes []string) ([]topic.Topic, error) {
	filt := expression.Name("SK").Equal(expression.Value(skMetadata)).
		And(expression.Name("Parents").Contains(parentID))
	if len(topicTypes) > 0 {
		others := make([]expression.OperandBuilder, 0, len(topicTypes)-1)
		for _, ty := range topicTypes[1:] {
			others = append(others, expression.Value(ty))
		}
		filt = filt.And(expression.Name("TopicType").In(expression.Value(topicTypes[0]), others...))
	}
	expr, err := expression.NewBuilder().WithFilter(filt).Build()
	if err != nil {
		return nil, fmt.Errorf("build child filter: %w", err)
	}

	var topics []topic.Topic
	var startKey map[string]types.AttributeValue
	pages := 0
	for {
		out, err := s.api.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String(s.table),
			FilterExpression:          expr.Filter(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, classify(fmt.Errorf("scan children of %s: %w", parentID, err))
		}
		pages++

		for _, raw := range out.Items {
			var item ddbTopic
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				s.logger.Warn("skipping malformed topic item", zap.Error(err))
				continue
			}
			t, err := fromItem(item)
			if err != nil {
				s.logger.Warn("skipping malformed topic item",
					zap.String("topic_id", item.TopicID), zap.Error(err))
				continue
			}
			topics = append(topics, *t)
		}

		startKey = out.LastEvaluatedKey
		if len(startKey) == 0 {
			break
		}
	}

	sort.SliceStable(topics, func(i, j int) bool {
		if !topics[i].CreatedAt.Equal(topics[j].CreatedAt) {
			return topics[i].CreatedAt.Before(topics[j].CreatedAt)
		}
		return topics[i].ID < topics[j].ID
	})
	s.logger.Debug("scanned child topics",
		zap.String("parent_id", parentID),
		zap.Int("pages", pages),
		zap.Int("found", len(topics)))
	return topics, nil
}

// PutTopic writes a topic document, replacing any existing one.
func (s *Store) PutTopic(ctx context.Context, t *topic.Topic) error {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	item, err := attributevalue.MarshalMap(toItem(t))
	if err != nil {
		return fmt.Errorf("marshal topic %s: %w", t.ID, err)
	}
	if _, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}); err != nil {
		return classify(fmt.Errorf("put topic %s: %w", t.ID, err))
	}
	return nil
}

// DeleteTopic removes a topic document, or returns topic.ErrNotFound.
func (s *Store) DeleteTopic(ctx context.Context, id string) error {
	out, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(s.table),
		Key:          topicKey(id),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return classify(fmt.Errorf("delete topic %s: %w", id, err))
	}
	if len(out.Attributes) == 0 {
		return topic.ErrNotFound
	}
	return nil
}

func toItem(t *topic.Topic) ddbTopic {
	parents := t.Parents
	if parents == nil {
		parents = []string{}
	}
	return ddbTopic{
		PK:        pkPrefix + t.ID,
		SK:        skMetadata,
		TopicID:   t.ID,
		Title:     t.Title,
		TopicType: t.Type,
		Parents:   parents,
		Content:   t.Content,
		CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: t.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func fromItem(item ddbTopic) (*topic.Topic, error) {
	id := item.TopicID
	if id == "" {
		id = strings.TrimPrefix(item.PK, pkPrefix)
	}
	if id == "" || item.TopicType == "" {
		return nil, fmt.Errorf("item %q missing id or type", item.PK)
	}
	created, err := time.Parse(time.RFC3339Nano, item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse CreatedAt of %s: %w", id, err)
	}
	updated, err := time.Parse(time.RFC3339Nano, item.UpdatedAt)
	if err != nil {
		updated = created
	}
	t := &topic.Topic{
		ID:        id,
		Title:     item.Title,
		Type:      item.TopicType,
		Content:   item.Content,
		CreatedAt: created,
		UpdatedAt: updated,
	}
	if len(item.Parents) > 0 {
		t.Parents = item.Parents
	}
	return t, nil
}

var throttleCodes = map[string]bool{
	"ProvisionedThroughputExceededException": true,
	"ThrottlingException":                    true,
	"RequestLimitExceeded":                   true,
}

// classify marks everything except non-throttling client faults as transient.
func classify(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorFault() == smithy.FaultClient && !throttleCodes[apiErr.ErrorCode()] {
		return err
	}
	return topic.Transient(err)
}
