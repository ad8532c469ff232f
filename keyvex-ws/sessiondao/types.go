package sessiondao

// Session maps an asynchronous job to the user who owns it. The dispatcher
// uses it to resolve the target user when a progress envelope carries only a
// job id.
type Session struct {
	JobID     string `dynamodbav:"pk" ddb:"hash"`
	UserID    string `dynamodbav:"user_id"`
	SessionID string `dynamodbav:"session_id,omitempty"`
	StartedAt int64  `dynamodbav:"started_at"`
	TTL       int64  `dynamodbav:"ttl"`
}
