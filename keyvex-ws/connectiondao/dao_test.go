package connectiondao

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/savaki/ddb"
	"github.com/tj/assert"
)

// requires DynamoDB Local on :8000, like the rest of the DAO tests
func withTable(t *testing.T, callback func(ctx context.Context, dao *DAO)) {
	var (
		s = session.Must(session.NewSession(aws.NewConfig().
			WithCredentials(credentials.NewStaticCredentials("blah", "blah", "")).
			WithEndpoint("http://localhost:8000").
			WithRegion("us-west-2")))
		api       = dynamodb.New(s)
		client    = ddb.New(api)
		tableName = fmt.Sprintf("table-%v", time.Now().UnixNano())
		table     = client.MustTable(tableName, Connection{})
		dao       = New(api, tableName)
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := table.CreateTableIfNotExists(ctx)
	assert.Nil(t, err)
	defer table.DeleteTableIfExists(ctx)

	callback(ctx, dao)
}

func TestDAO(t *testing.T) {
	withTable(t, func(ctx context.Context, dao *DAO) {
		now := time.Now()
		connA := Connection{
			ConnectionID: "connA",
			UserID:       "user1",
			SessionID:    "sess1",
			Endpoint:     "https://example.execute-api.us-west-2.amazonaws.com/dev",
			ConnectedAt:  now.Unix(),
			LastActivity: now.Unix(),
			TTL:          now.Add(2 * time.Hour).Unix(),
		}
		connB := Connection{
			ConnectionID: "connB",
			UserID:       "user1",
			Endpoint:     connA.Endpoint,
			ConnectedAt:  now.Unix(),
			LastActivity: now.Unix(),
			TTL:          now.Add(2 * time.Hour).Unix(),
		}
		other := Connection{
			ConnectionID: "connC",
			UserID:       "user2",
			Endpoint:     connA.Endpoint,
			ConnectedAt:  now.Unix(),
			LastActivity: now.Unix(),
			TTL:          now.Add(2 * time.Hour).Unix(),
		}

		assert.Nil(t, dao.Put(ctx, connA))
		assert.Nil(t, dao.Put(ctx, connB))
		assert.Nil(t, dao.Put(ctx, other))

		got, err := dao.Get(ctx, "connA")
		assert.Nil(t, err)
		assert.Equal(t, "user1", got.UserID)
		assert.Equal(t, "sess1", got.SessionID)

		conns, err := dao.QueryByUser(ctx, "user1")
		assert.Nil(t, err)
		assert.Len(t, conns, 2)

		count, err := dao.CountByUser(ctx, "user1")
		assert.Nil(t, err)
		assert.EqualValues(t, 2, count)

		// refresh activity pushes the expiry out
		later := now.Add(30 * time.Minute)
		assert.Nil(t, dao.Touch(ctx, "connA", later, later.Add(2*time.Hour)))
		got, err = dao.Get(ctx, "connA")
		assert.Nil(t, err)
		assert.Equal(t, later.Unix(), got.LastActivity)
		assert.Equal(t, later.Add(2*time.Hour).Unix(), got.TTL)

		// delete is idempotent
		assert.Nil(t, dao.Delete(ctx, "connA"))
		assert.Nil(t, dao.Delete(ctx, "connA"))

		conns, err = dao.QueryByUser(ctx, "user1")
		assert.Nil(t, err)
		assert.Len(t, conns, 1)
		assert.Equal(t, "connB", conns[0].ConnectionID)

		// drop everything the user still holds
		assert.Nil(t, dao.DeleteByUser(ctx, "user1"))
		conns, err = dao.QueryByUser(ctx, "user1")
		assert.Nil(t, err)
		assert.Len(t, conns, 0)

		// user2 untouched
		conns, err = dao.QueryByUser(ctx, "user2")
		assert.Nil(t, err)
		assert.Len(t, conns, 1)
	})
}

func TestSweepExpired(t *testing.T) {
	withTable(t, func(ctx context.Context, dao *DAO) {
		now := time.Now()
		live := Connection{
			ConnectionID: "live",
			UserID:       "user1",
			ConnectedAt:  now.Unix(),
			TTL:          now.Add(time.Hour).Unix(),
		}
		dead := Connection{
			ConnectionID: "dead",
			UserID:       "user1",
			ConnectedAt:  now.Add(-3 * time.Hour).Unix(),
			TTL:          now.Add(-time.Hour).Unix(),
		}
		assert.Nil(t, dao.Put(ctx, live))
		assert.Nil(t, dao.Put(ctx, dead))

		removed, err := dao.SweepExpired(ctx, now)
		assert.Nil(t, err)
		assert.Equal(t, 1, removed)

		census, err := dao.TakeCensus(ctx, now)
		assert.Nil(t, err)
		assert.Equal(t, 1, census.Total)
		assert.Equal(t, 1, census.ByUser["user1"])
	})
}
