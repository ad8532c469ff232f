package connectiondao

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/savaki/ddb"
)

// DAO provides access to the WebSocket connections table.
type DAO struct {
	table     *ddb.Table
	api       dynamodbiface.DynamoDBAPI
	tableName string
}

// New creates a new connections DAO.
func New(api dynamodbiface.DynamoDBAPI, tableName string) *DAO {
	return &DAO{
		table:     ddb.New(api).MustTable(tableName, Connection{}),
		api:       api,
		tableName: tableName,
	}
}

// Put stores a connection record.
func (d *DAO) Put(ctx context.Context, conn Connection) error {
	return d.table.Put(conn).RunWithContext(ctx)
}

// Get retrieves a connection record by ID.
func (d *DAO) Get(ctx context.Context, connectionID string) (*Connection, error) {
	var conn Connection
	if err := d.table.Get(connectionID).ScanWithContext(ctx, &conn); err != nil {
		if ddb.IsItemNotFoundError(err) {
			return nil, fmt.Errorf("connection %v not found", connectionID)
		}
		return nil, fmt.Errorf("failed to get connection %v: %w", connectionID, err)
	}
	return &conn, nil
}

// Delete removes a connection record by ID. Deleting an absent record is not
// an error; disconnects race TTL expiry.
func (d *DAO) Delete(ctx context.Context, connectionID string) error {
	return d.table.Delete(connectionID).RunWithContext(ctx)
}

// Touch refreshes a connection's last-activity timestamp and pushes out its
// expiry.
func (d *DAO) Touch(ctx context.Context, connectionID string, lastActivity, expiresAt time.Time) error {
	return d.table.Update(connectionID).
		Set("#LastActivity = ?", lastActivity.Unix()).
		Set("#TTL = ?", expiresAt.Unix()).
		RunWithContext(ctx)
}

// QueryByUser returns all connections for a given user using the UserIndex GSI.
func (d *DAO) QueryByUser(ctx context.Context, userID string) ([]Connection, error) {
	var conns []Connection
	err := d.table.Query("#UserID = ?", userID).
		IndexName("UserIndex").
		FindAllWithContext(ctx, &conns)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections by user %v: %w", userID, err)
	}
	return conns, nil
}

// DeleteByUser removes all connections for a given user.
func (d *DAO) DeleteByUser(ctx context.Context, userID string) error {
	conns, err := d.QueryByUser(ctx, userID)
	if err != nil {
		return err
	}

	var ids []string
	for _, conn := range conns {
		ids = append(ids, conn.ConnectionID)
	}
	return d.batchDelete(ctx, ids)
}

// batchDelete removes the given connection records in chunks of 25 (DynamoDB limit).
func (d *DAO) batchDelete(ctx context.Context, connectionIDs []string) error {
	const batchSize = 25
	for i := 0; i < len(connectionIDs); i += batchSize {
		end := i + batchSize
		if end > len(connectionIDs) {
			end = len(connectionIDs)
		}
		chunk := connectionIDs[i:end]

		writeRequests := make([]*dynamodb.WriteRequest, len(chunk))
		for j, id := range chunk {
			key, err := dynamodbattribute.MarshalMap(map[string]string{"pk": id})
			if err != nil {
				return fmt.Errorf("failed to marshal key for connection %v: %w", id, err)
			}
			writeRequests[j] = &dynamodb.WriteRequest{
				DeleteRequest: &dynamodb.DeleteRequest{Key: key},
			}
		}

		unprocessed := map[string][]*dynamodb.WriteRequest{
			d.tableName: writeRequests,
		}

		const maxRetries = 5
		for attempt := 0; attempt < maxRetries; attempt++ {
			output, err := d.api.BatchWriteItemWithContext(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: unprocessed,
			})
			if err != nil {
				return fmt.Errorf("failed to batch delete connections: %w", err)
			}
			if len(output.UnprocessedItems) == 0 {
				break
			}
			unprocessed = output.UnprocessedItems
			if attempt < maxRetries-1 {
				backoff := time.Duration(1<<attempt) * 100 * time.Millisecond
				timer := time.NewTimer(backoff)
				select {
				case <-ctx.Done():
					timer.Stop()
					return fmt.Errorf("context cancelled during batch delete retry: %w", ctx.Err())
				case <-timer.C:
				}
			} else {
				return fmt.Errorf("failed to delete all connections: %d items unprocessed after %d retries", len(unprocessed[d.tableName]), maxRetries)
			}
		}
	}

	return nil
}

// CountByUser returns the number of connection records for a given user.
func (d *DAO) CountByUser(ctx context.Context, userID string) (int64, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(d.tableName),
		IndexName:              aws.String("UserIndex"),
		KeyConditionExpression: aws.String("user_id = :user_id"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":user_id": {S: aws.String(userID)},
		},
		Select: aws.String("COUNT"),
	}

	output, err := d.api.QueryWithContext(ctx, input)
	if err != nil {
		return 0, fmt.Errorf("failed to count connections for user %v: %w", userID, err)
	}

	return *output.Count, nil
}

// Census summarizes the live connection population.
type Census struct {
	Total  int            `json:"total"`
	ByUser map[string]int `json:"byUser"`
}

// TakeCensus scans the connections table and tallies live records per user.
// Records whose TTL has already passed are excluded even if DynamoDB hasn't
// purged them yet.
func (d *DAO) TakeCensus(ctx context.Context, now time.Time) (Census, error) {
	census := Census{ByUser: map[string]int{}}

	input := &dynamodb.ScanInput{
		TableName:            aws.String(d.tableName),
		ProjectionExpression: aws.String("pk, user_id, #t"),
		ExpressionAttributeNames: map[string]*string{
			"#t": aws.String("ttl"),
		},
	}
	err := d.api.ScanPagesWithContext(ctx, input, func(page *dynamodb.ScanOutput, lastPage bool) bool {
		for _, item := range page.Items {
			var conn Connection
			if err := dynamodbattribute.UnmarshalMap(item, &conn); err != nil {
				continue
			}
			if conn.TTL <= now.Unix() {
				continue
			}
			census.Total++
			census.ByUser[conn.UserID]++
		}
		return true
	})
	if err != nil {
		return Census{}, fmt.Errorf("failed to scan connections table: %w", err)
	}

	return census, nil
}

// SweepExpired deletes connection records whose TTL has passed but which
// DynamoDB's background reaper hasn't purged yet. Returns the number of
// records removed.
func (d *DAO) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	var expired []string

	input := &dynamodb.ScanInput{
		TableName:            aws.String(d.tableName),
		FilterExpression:     aws.String("#t <= :now"),
		ProjectionExpression: aws.String("pk"),
		ExpressionAttributeNames: map[string]*string{
			"#t": aws.String("ttl"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":now": {N: aws.String(fmt.Sprintf("%v", now.Unix()))},
		},
	}
	err := d.api.ScanPagesWithContext(ctx, input, func(page *dynamodb.ScanOutput, lastPage bool) bool {
		for _, item := range page.Items {
			if pk := item["pk"]; pk != nil && pk.S != nil {
				expired = append(expired, *pk.S)
			}
		}
		return true
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan for expired connections: %w", err)
	}

	if len(expired) == 0 {
		return 0, nil
	}
	if err := d.batchDelete(ctx, expired); err != nil {
		return 0, err
	}
	return len(expired), nil
}
