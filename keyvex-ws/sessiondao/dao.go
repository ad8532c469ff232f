package sessiondao

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/savaki/ddb"
)

// DAO provides access to the job-sessions table.
type DAO struct {
	table     *ddb.Table
	api       dynamodbiface.DynamoDBAPI
	tableName string
}

// New creates a new job-sessions DAO.
func New(api dynamodbiface.DynamoDBAPI, tableName string) *DAO {
	return &DAO{
		table:     ddb.New(api).MustTable(tableName, Session{}),
		api:       api,
		tableName: tableName,
	}
}

// Put stores or overwrites the session record for a job.
func (d *DAO) Put(ctx context.Context, session Session) error {
	return d.table.Put(session).RunWithContext(ctx)
}

// Get retrieves the session record for a job. Returns nil if not found.
func (d *DAO) Get(ctx context.Context, jobID string) (*Session, error) {
	var session Session
	if err := d.table.Get(jobID).ScanWithContext(ctx, &session); err != nil {
		if ddb.IsItemNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session for job %v: %w", jobID, err)
	}
	return &session, nil
}

// Delete removes the session record for a job.
func (d *DAO) Delete(ctx context.Context, jobID string) error {
	return d.table.Delete(jobID).RunWithContext(ctx)
}
