package northward

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// StorageEngine persists the set of applied migration identifiers.
// Engine unavailability is fatal: errors propagate to the caller and the
// engine itself owns any retry policy.
type StorageEngine interface {
	// HasRun reports whether the identifier is recorded as applied.
	HasRun(ctx context.Context, id string) (bool, error)
	// Store records the identifier as applied.
	Store(ctx context.Context, id string) error
	// Delete removes the identifier from the applied set.
	Delete(ctx context.Context, id string) error
	// GetLastN returns up to n applied identifiers, most recent first
	// (lexicographically descending by identifier).
	GetLastN(ctx context.Context, n int) ([]string, error)
}

// storageKeyAttr is the hash key attribute of the DynamoDB table.
const storageKeyAttr = "filename"

// tableCreateTimeout bounds the wait for a freshly created table to
// become active.
const tableCreateTimeout = 2 * time.Minute

// DynamoDBAPI captures the DynamoDB operations the engine issues.
// *dynamodb.Client satisfies it.
type DynamoDBAPI interface {
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// NewDynamoDBClient builds a DynamoDB client from the ambient AWS
// configuration, optionally overriding the service endpoint (for local
// DynamoDB).
//
// Parameters:
//   - ctx: Context to use.
//   - endpointURL: Optional endpoint override; empty uses the default.
//
// Returns:
//   - *dynamodb.Client: The configured client.
//   - error: An error if the AWS configuration cannot be loaded.
func NewDynamoDBClient(ctx context.Context, endpointURL string) (*dynamodb.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpointURL != "" {
			o.BaseEndpoint = aws.String(endpointURL)
		}
	}), nil
}

// DynamoDBStorageEngine records applied migrations in a DynamoDB table
// with a single string hash key. The table is created on first use if it
// does not exist.
type DynamoDBStorageEngine struct {
	Client    DynamoDBAPI
	TableName string
	Logger    *zap.Logger

	ensureMu     sync.Mutex
	tableEnsured bool
}

// NewDynamoDBStorageEngine returns a new DynamoDBStorageEngine.
//
// Parameters:
//   - client: The DynamoDB client to use.
//   - tableName: The table recording applied migrations.
//
// Returns:
//   - *DynamoDBStorageEngine: A new DynamoDBStorageEngine instance.
func NewDynamoDBStorageEngine(client DynamoDBAPI, tableName string) *DynamoDBStorageEngine {
	return &DynamoDBStorageEngine{
		Client:    client,
		TableName: tableName,
		Logger:    zap.NewNop(),
	}
}

// WithLogger returns a new DynamoDBStorageEngine with the given logger.
//
// Parameters:
//   - logger: The logger to use.
//
// Returns:
//   - *DynamoDBStorageEngine: A new DynamoDBStorageEngine instance.
func (e *DynamoDBStorageEngine) WithLogger(logger *zap.Logger) *DynamoDBStorageEngine {
	new := &DynamoDBStorageEngine{
		Client:    e.Client,
		TableName: e.TableName,
		Logger:    logger,
	}
	return new
}

// ensureTable creates the table if it does not exist and waits for it to
// become active. The check runs once per engine instance.
func (e *DynamoDBStorageEngine) ensureTable(ctx context.Context) error {
	e.ensureMu.Lock()
	defer e.ensureMu.Unlock()
	if e.tableEnsured {
		return nil
	}

	_, err := e.Client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(e.TableName),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if !errors.As(err, &notFound) {
			return fmt.Errorf("describing table %s: %w", e.TableName, err)
		}

		e.Logger.Debug("Creating migration table", zap.String("table", e.TableName))
		_, err = e.Client.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName: aws.String(e.TableName),
			KeySchema: []types.KeySchemaElement{{
				AttributeName: aws.String(storageKeyAttr),
				KeyType:       types.KeyTypeHash,
			}},
			AttributeDefinitions: []types.AttributeDefinition{{
				AttributeName: aws.String(storageKeyAttr),
				AttributeType: types.ScalarAttributeTypeS,
			}},
			ProvisionedThroughput: &types.ProvisionedThroughput{
				ReadCapacityUnits:  aws.Int64(5),
				WriteCapacityUnits: aws.Int64(5),
			},
		})
		if err != nil {
			return fmt.Errorf("creating table %s: %w", e.TableName, err)
		}

		e.Logger.Debug("Waiting for migration table to be created", zap.String("table", e.TableName))
		waiter := dynamodb.NewTableExistsWaiter(e.Client)
		if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{
			TableName: aws.String(e.TableName),
		}, tableCreateTimeout); err != nil {
			return fmt.Errorf("waiting for table %s: %w", e.TableName, err)
		}
		e.Logger.Debug("Migration table created", zap.String("table", e.TableName))
	}

	e.tableEnsured = true
	return nil
}

// HasRun reports whether the identifier is recorded in the table.
func (e *DynamoDBStorageEngine) HasRun(ctx context.Context, id string) (bool, error) {
	if err := e.ensureTable(ctx); err != nil {
		return false, err
	}

	e.Logger.Debug("Checking if migration has run", zap.String("id", id))
	out, err := e.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(e.TableName),
		Key: map[string]types.AttributeValue{
			storageKeyAttr: &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return false, fmt.Errorf("getting item %s: %w", id, err)
	}
	return len(out.Item) > 0, nil
}

// Store records the identifier in the table.
func (e *DynamoDBStorageEngine) Store(ctx context.Context, id string) error {
	if err := e.ensureTable(ctx); err != nil {
		return err
	}

	e.Logger.Debug("Storing migration", zap.String("id", id))
	_, err := e.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(e.TableName),
		Item: map[string]types.AttributeValue{
			storageKeyAttr: &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return fmt.Errorf("storing item %s: %w", id, err)
	}
	return nil
}

// Delete removes the identifier from the table.
func (e *DynamoDBStorageEngine) Delete(ctx context.Context, id string) error {
	if err := e.ensureTable(ctx); err != nil {
		return err
	}

	e.Logger.Debug("Deleting migration", zap.String("id", id))
	_, err := e.Client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(e.TableName),
		Key: map[string]types.AttributeValue{
			storageKeyAttr: &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting item %s: %w", id, err)
	}
	return nil
}

// GetLastN returns up to n applied identifiers, most recent first.
func (e *DynamoDBStorageEngine) GetLastN(ctx context.Context, n int) ([]string, error) {
	if err := e.ensureTable(ctx); err != nil {
		return nil, err
	}

	var ids []string
	paginator := dynamodb.NewScanPaginator(e.Client, &dynamodb.ScanInput{
		TableName: aws.String(e.TableName),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scanning table %s: %w", e.TableName, err)
		}
		for _, item := range page.Items {
			if attr, ok := item[storageKeyAttr].(*types.AttributeValueMemberS); ok {
				ids = append(ids, attr.Value)
			}
		}
	}

	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	if len(ids) > n {
		ids = ids[:n]
	}
	return ids, nil
}

// MemoryStorageEngine records applied migrations in an in-process map.
// Useful for testing, but has no persistence.
type MemoryStorageEngine struct {
	mu   sync.Mutex
	data map[string]bool
}

// NewMemoryStorageEngine returns a new MemoryStorageEngine.
//
// Returns:
//   - *MemoryStorageEngine: A new MemoryStorageEngine instance.
func NewMemoryStorageEngine() *MemoryStorageEngine {
	return &MemoryStorageEngine{data: make(map[string]bool)}
}

// HasRun reports whether the identifier is recorded.
func (e *MemoryStorageEngine) HasRun(ctx context.Context, id string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.data[id], nil
}

// Store records the identifier.
func (e *MemoryStorageEngine) Store(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.data[id] = true
	return nil
}

// Delete removes the identifier.
func (e *MemoryStorageEngine) Delete(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.data, id)
	return nil
}

// GetLastN returns up to n applied identifiers, most recent first.
func (e *MemoryStorageEngine) GetLastN(ctx context.Context, n int) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]string, 0, len(e.data))
	for id := range e.data {
		ids = append(ids, id)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	if len(ids) > n {
		ids = ids[:n]
	}
	return ids, nil
}
