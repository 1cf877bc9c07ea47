package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var ErrItemNotFound = errors.New("item not found")

// Key is a primary key, attribute name to value.
type Key map[string]types.AttributeValue

func StringKey(attr, value string) Key {
	return Key{attr: AttrString(value)}
}

func AttrString(value string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: value}
}

// Table scopes item operations to one table.
type Table struct {
	api  API
	name string
}

func (c *DynamoDBClient) Table(name string) Table {
	return Table{api: c.svc, name: name}
}

func (t Table) Name() string {
	return t.name
}

func (t Table) Put(ctx context.Context, item any) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal %s item: %w", t.name, err)
	}
	if _, err := t.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(t.name),
		Item:      av,
	}); err != nil {
		return fmt.Errorf("put %s: %w", t.name, err)
	}
	return nil
}

// Get decodes the item at key into out, or wraps ErrItemNotFound.
func (t Table) Get(ctx context.Context, key Key, out any) error {
	res, err := t.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(t.name),
		Key:       key,
	})
	if err != nil {
		return fmt.Errorf("get %s: %w", t.name, err)
	}
	if len(res.Item) == 0 {
		return fmt.Errorf("%w in %s", ErrItemNotFound, t.name)
	}
	if err := attributevalue.UnmarshalMap(res.Item, out); err != nil {
		return fmt.Errorf("unmarshal %s item: %w", t.name, err)
	}
	return nil
}

// Delete is idempotent; a missing key is not an error.
func (t Table) Delete(ctx context.Context, key Key) error {
	if _, err := t.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(t.name),
		Key:       key,
	}); err != nil {
		return fmt.Errorf("delete %s: %w", t.name, err)
	}
	return nil
}

// QueryIndex reads every page matching attr = value on index into out,
// which must be a pointer to a slice. An empty index queries the table.
func (t Table) QueryIndex(ctx context.Context, index, attr, value string, out any) error {
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(t.name),
		KeyConditionExpression:    aws.String("#k = :v"),
		ExpressionAttributeNames:  map[string]string{"#k": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": AttrString(value)},
	}
	if index != "" {
		input.IndexName = aws.String(index)
	}

	var items []map[string]types.AttributeValue
	for {
		res, err := t.api.Query(ctx, input)
		if err != nil {
			return fmt.Errorf("query %s[%s]: %w", t.name, index, err)
		}
		items = append(items, res.Items...)
		if len(res.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = res.LastEvaluatedKey
	}

	if err := attributevalue.UnmarshalListOfMaps(items, out); err != nil {
		return fmt.Errorf("unmarshal %s items: %w", t.name, err)
	}
	return nil
}
