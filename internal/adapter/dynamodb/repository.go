// Package dynamodb implements the bin average repository on Amazon DynamoDB.
package dynamodb

import (
	"context"
	"errors"
	"time"

	"binstatus/internal/domain"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// Client is the subset of the DynamoDB API the repository uses.
type Client interface {
	GetItem(ctx context.Context, in *ddb.GetItemInput, optFns ...func(*ddb.Options)) (*ddb.GetItemOutput, error)
	PutItem(ctx context.Context, in *ddb.PutItemInput, optFns ...func(*ddb.Options)) (*ddb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *ddb.UpdateItemInput, optFns ...func(*ddb.Options)) (*ddb.UpdateItemOutput, error)
}

// binRecord is one row of the bins table.
type binRecord struct {
	BinID        string `dynamodbav:"binId"`
	Status       int    `dynamodbav:"status"`
	LastUpdated  string `dynamodbav:"lastUpdated"`
	ReportsCount int    `dynamodbav:"reportsCount"`
}

// reportRecord is one row of the reports table.
type reportRecord struct {
	BinID     string `dynamodbav:"binId"`
	CreatedAt string `dynamodbav:"createdAt"`
	Status    int    `dynamodbav:"status"`
}

// Repository stores running averages and reports in two DynamoDB tables.
type Repository struct {
	client       Client
	binsTable    string
	reportsTable string

	// maxAttempts > 0 enables conditional writes on reportsCount.
	maxAttempts int
	newBackOff  func() backoff.BackOff
}

// Option configures a Repository.
type Option func(*Repository)

// WithOptimisticLocking makes UpdateStatus write conditionally on the
// reportsCount it read, retrying up to maxAttempts times on conflict.
func WithOptimisticLocking(maxAttempts int) Option {
	return func(r *Repository) {
		if maxAttempts < 1 {
			maxAttempts = 1
		}
		r.maxAttempts = maxAttempts
	}
}

// WithBackOff overrides the retry schedule used with optimistic locking.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(r *Repository) { r.newBackOff = fn }
}

// New creates a Repository over the given tables.
func New(client Client, binsTable, reportsTable string, opts ...Option) (*Repository, error) {
	if binsTable == "" {
		return nil, &domain.ConfigurationError{Key: "TRASH_BINS_TABLE", Msg: "table name is required"}
	}
	if reportsTable == "" {
		return nil, &domain.ConfigurationError{Key: "STATUS_REPORTS_TABLE", Msg: "table name is required"}
	}

	r := &Repository{
		client:       client,
		binsTable:    binsTable,
		reportsTable: reportsTable,
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = 20 * time.Millisecond
			bo.MaxElapsedTime = 2 * time.Second
			return bo
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Ensure interfaces are met.
var _ domain.AverageRepository = (*Repository)(nil)

// UpdateStatus reads the bin, folds status into its average and writes it back.
// Without optimistic locking the last writer wins.
func (r *Repository) UpdateStatus(ctx context.Context, id domain.BinID, status domain.FillLevel, at time.Time) error {
	if r.maxAttempts == 0 {
		return r.update(ctx, id, status, at, false)
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(r.newBackOff(), uint64(r.maxAttempts-1)), ctx)
	err := backoff.Retry(func() error {
		err := r.update(ctx, id, status, at, true)
		var conflict *types.ConditionalCheckFailedException
		if err != nil && !errors.As(err, &conflict) {
			return backoff.Permanent(err)
		}
		return err
	}, bo)
	if err == nil {
		return nil
	}

	var serr *domain.StorageError
	if errors.As(err, &serr) {
		return err
	}
	return &domain.StorageError{Op: "update status", Err: err}
}

func (r *Repository) update(ctx context.Context, id domain.BinID, status domain.FillLevel, at time.Time, conditional bool) error {
	out, err := r.client.GetItem(ctx, &ddb.GetItemInput{
		TableName:      aws.String(r.binsTable),
		Key:            binKey(id),
		ConsistentRead: aws.Bool(conditional),
	})
	if err != nil {
		return &domain.StorageError{Op: "get bin", Err: err}
	}

	var cur binRecord
	if len(out.Item) > 0 {
		if err := attributevalue.UnmarshalMap(out.Item, &cur); err != nil {
			return &domain.StorageError{Op: "decode bin", Err: err}
		}
	}

	next := domain.NextAverage(cur.Status, cur.ReportsCount, status.Int())
	upd := expression.
		Set(expression.Name("status"), expression.Value(next)).
		Set(expression.Name("lastUpdated"), expression.Value(at.UTC().Format(time.RFC3339Nano))).
		Set(expression.Name("reportsCount"), expression.Value(cur.ReportsCount+1))
	builder := expression.NewBuilder().WithUpdate(upd)

	if conditional {
		var cond expression.ConditionBuilder
		switch {
		case len(out.Item) == 0:
			cond = expression.AttributeNotExists(expression.Name("binId"))
		case cur.ReportsCount == 0:
			cond = expression.Or(
				expression.AttributeNotExists(expression.Name("reportsCount")),
				expression.Name("reportsCount").Equal(expression.Value(0)),
			)
		default:
			cond = expression.Name("reportsCount").Equal(expression.Value(cur.ReportsCount))
		}
		builder = builder.WithCondition(cond)
	}

	expr, err := builder.Build()
	if err != nil {
		return &domain.StorageError{Op: "build update", Err: err}
	}

	_, err = r.client.UpdateItem(ctx, &ddb.UpdateItemInput{
		TableName:                 aws.String(r.binsTable),
		Key:                       binKey(id),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return &domain.StorageError{Op: "update bin", Err: err}
	}

	avg := domain.ClampFillLevel(next)
	log.Debug().
		Str("bin_id", id.String()).
		Stringer("average", avg).
		Int("percent", avg.Percent()).
		Int("reports_count", cur.ReportsCount+1).
		Bool("conditional", conditional).
		Msg("bin average updated")
	return nil
}

// AddReport inserts one report row.
func (r *Repository) AddReport(ctx context.Context, id domain.BinID, status domain.FillLevel, at time.Time) error {
	item, err := attributevalue.MarshalMap(reportRecord{
		BinID:     id.String(),
		CreatedAt: at.UTC().Format(time.RFC3339Nano),
		Status:    status.Int(),
	})
	if err != nil {
		return &domain.StorageError{Op: "encode report", Err: err}
	}

	if _, err := r.client.PutItem(ctx, &ddb.PutItemInput{
		TableName: aws.String(r.reportsTable),
		Item:      item,
	}); err != nil {
		return &domain.StorageError{Op: "put report", Err: err}
	}
	return nil
}

func binKey(id domain.BinID) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"binId": &types.AttributeValueMemberS{Value: id.String()},
	}
}
