package connectiondao

// Connection represents one live WebSocket connection stored in DynamoDB. A
// user may hold any number of simultaneous connections; the UserIndex GSI
// serves the "all connections for user X" lookup without a table scan.
type Connection struct {
	ConnectionID string `dynamodbav:"pk" ddb:"hash"`
	UserID       string `dynamodbav:"user_id" ddb:"gsi_hash:UserIndex"`
	SessionID    string `dynamodbav:"session_id,omitempty"`
	Endpoint     string `dynamodbav:"endpoint"`
	ConnectedAt  int64  `dynamodbav:"connected_at"`
	LastActivity int64  `dynamodbav:"last_activity"`
	TTL          int64  `dynamodbav:"ttl"`
}
