package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"publier/backend/internal/domain"
)

// API 幂等存储使用的 DynamoDB 操作，便于在测试中替换
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// NewClient 按区域加载默认凭证链并创建 DynamoDB 客户端
func NewClient(ctx context.Context, region string) (*dynamodb.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg), nil
}

// item 表中的一行，expires_at 作为表的 TTL 属性
type item struct {
	Fingerprint string `dynamodbav:"fingerprint"`
	StatusCode  int    `dynamodbav:"status_code"`
	ContentType string `dynamodbav:"content_type"`
	Body        []byte `dynamodbav:"body"`
	StoredAt    int64  `dynamodbav:"stored_at"`
	ExpiresAt   int64  `dynamodbav:"expires_at"`
}

const conditionFingerprintAbsent = "attribute_not_exists(fingerprint) OR expires_at < :now"

// IdempotencyStore 基于 DynamoDB 条件写入的幂等响应存储
//
// DynamoDB 的 TTL 删除有延迟，读取时已过期的条目按未命中处理，
// 写入条件也允许覆盖已过期的条目。
type IdempotencyStore struct {
	client API
	table  string
	now    func() time.Time
}

// NewIdempotencyStore 创建 DynamoDB 幂等存储
func NewIdempotencyStore(client API, table string) *IdempotencyStore {
	return &IdempotencyStore{client: client, table: table, now: time.Now}
}

// Get 读取缓存的响应，未命中或已过期返回 nil
func (s *IdempotencyStore) Get(ctx context.Context, fingerprint string) (*domain.IdempotencyRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"fingerprint": &types.AttributeValueMemberS{Value: fingerprint},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}

	var it item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	if it.ExpiresAt <= s.now().Unix() {
		return nil, nil
	}

	return &domain.IdempotencyRecord{
		Fingerprint: it.Fingerprint,
		StatusCode:  it.StatusCode,
		ContentType: it.ContentType,
		Body:        it.Body,
		StoredAt:    time.Unix(it.StoredAt, 0).UTC(),
	}, nil
}

// SaveIfAbsent 条件写入，指纹已存在且未过期时返回 false
func (s *IdempotencyStore) SaveIfAbsent(ctx context.Context, record *domain.IdempotencyRecord, ttl time.Duration) (bool, error) {
	now := s.now()
	ttlSeconds := int64(ttl / time.Second)
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}

	av, err := attributevalue.MarshalMap(item{
		Fingerprint: record.Fingerprint,
		StatusCode:  record.StatusCode,
		ContentType: record.ContentType,
		Body:        record.Body,
		StoredAt:    record.StoredAt.Unix(),
		ExpiresAt:   now.Unix() + ttlSeconds,
	})
	if err != nil {
		return false, fmt.Errorf("marshal item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                av,
		ConditionExpression: aws.String(conditionFingerprintAbsent),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.Unix())},
		},
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException" {
			return false, nil
		}
		return false, fmt.Errorf("put item: %w", err)
	}
	return true, nil
}
