package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/ndidplatform/idp-agent/proto"
)

// UserRow is a Directory entry persisted in DynamoDB. The table key is
// (Namespace, Identifier); lookups by user id go through a GSI.
type UserRow struct {
	Namespace  string `dynamodbav:"Namespace"`
	Identifier string `dynamodbav:"Identifier"`
	ID         string `dynamodbav:"ID"`
}

func (r *UserRow) DatabaseKey() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"Namespace":  &types.AttributeValueMemberS{Value: r.Namespace},
		"Identifier": &types.AttributeValueMemberS{Value: r.Identifier},
	}
}

func (r *UserRow) User() proto.User {
	return proto.User{
		ID:         r.ID,
		Namespace:  r.Namespace,
		Identifier: r.Identifier,
	}
}

type UserIndices struct {
	ByID string
}

// UserTable is the durable Directory backend for deployments where
// registered identities must survive restarts.
type UserTable struct {
	db       DB
	tableARN string
	indices  UserIndices
}

var _ Directory = (*UserTable)(nil)

func NewUserTable(db DB, tableARN string, indices UserIndices) *UserTable {
	return &UserTable{
		db:       db,
		tableARN: tableARN,
		indices:  indices,
	}
}

func (t *UserTable) TableARN() string {
	return t.tableARN
}

func (t *UserTable) Register(ctx context.Context, namespace, identifier string) (proto.User, error) {
	row := UserRow{
		Namespace:  namespace,
		Identifier: identifier,
		ID:         uuid.NewString(),
	}
	if err := row.User().Validate(); err != nil {
		return proto.User{}, proto.ErrInvalidRequest.WithCause(err)
	}

	av, err := attributevalue.MarshalMap(row)
	if err != nil {
		return proto.User{}, proto.ErrDatabaseError.WithCausef("marshal input: %w", err)
	}
	_, err = t.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &t.tableARN,
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(Namespace)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return proto.User{}, proto.ErrDuplicateIdentity.WithCausef("identity %q already registered", namespace+":"+identifier)
		}
		return proto.User{}, proto.ErrDatabaseError.WithCausef("PutItem: %w", err)
	}
	return row.User(), nil
}

func (t *UserTable) ByIdentifier(ctx context.Context, namespace, identifier string) (proto.User, bool, error) {
	row := UserRow{Namespace: namespace, Identifier: identifier}

	out, err := t.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &t.tableARN,
		Key:       row.DatabaseKey(),
	})
	if err != nil {
		return proto.User{}, false, fmt.Errorf("GetItem: %w", err)
	}
	if len(out.Item) == 0 {
		return proto.User{}, false, nil
	}

	if err := attributevalue.UnmarshalMap(out.Item, &row); err != nil {
		return proto.User{}, false, fmt.Errorf("unmarshal result: %w", err)
	}
	return row.User(), true, nil
}

func (t *UserTable) ByID(ctx context.Context, userID string) (proto.User, bool, error) {
	out, err := t.db.Query(ctx, &dynamodb.QueryInput{
		TableName:              &t.tableARN,
		IndexName:              &t.indices.ByID,
		KeyConditionExpression: aws.String("ID = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: userID},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return proto.User{}, false, fmt.Errorf("query: %w", err)
	}
	if len(out.Items) == 0 || len(out.Items[0]) == 0 {
		return proto.User{}, false, nil
	}

	var row UserRow
	if err := attributevalue.UnmarshalMap(out.Items[0], &row); err != nil {
		return proto.User{}, false, fmt.Errorf("unmarshal result: %w", err)
	}
	return row.User(), true, nil
}
