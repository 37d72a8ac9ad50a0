package dynamodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// NewClient loads the default AWS configuration for region. A non-empty
// endpoint points the client at an alternate DynamoDB, such as LocalStack.
func NewClient(ctx context.Context, region, endpoint string) (*ddb.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return ddb.NewFromConfig(cfg, func(o *ddb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// TableCreator is the subset of the DynamoDB API Migrate uses.
type TableCreator interface {
	CreateTable(ctx context.Context, in *ddb.CreateTableInput, optFns ...func(*ddb.Options)) (*ddb.CreateTableOutput, error)
}

// Migrate creates the bins and reports tables. Existing tables are left alone.
func Migrate(ctx context.Context, c TableCreator, binsTable, reportsTable string) error {
	tables := []*ddb.CreateTableInput{
		{
			TableName: aws.String(binsTable),
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String("binId"), AttributeType: types.ScalarAttributeTypeS},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("binId"), KeyType: types.KeyTypeHash},
			},
			BillingMode: types.BillingModePayPerRequest,
		},
		{
			TableName: aws.String(reportsTable),
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String("binId"), AttributeType: types.ScalarAttributeTypeS},
				{AttributeName: aws.String("createdAt"), AttributeType: types.ScalarAttributeTypeS},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("binId"), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String("createdAt"), KeyType: types.KeyTypeRange},
			},
			BillingMode: types.BillingModePayPerRequest,
		},
	}

	for _, in := range tables {
		if _, err := c.CreateTable(ctx, in); err != nil {
			var exists *types.ResourceInUseException
			if errors.As(err, &exists) {
				continue
			}
			return fmt.Errorf("migrate: create %s: %w", aws.ToString(in.TableName), err)
		}
	}
	return nil
}
