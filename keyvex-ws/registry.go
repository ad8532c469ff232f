package keyvexws

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lmnhd/keyvex-go-utils/keyvex-ws/connectiondao"
)

// RegistryTTL is how long a connection record lives without a refresh. The
// upstream handlers disagreed on this value; it is fixed here and every call
// site defaults from it.
const RegistryTTL = 2 * time.Hour

var (
	// ErrMissingUser is returned when a connect event arrives without a user
	// identity. Rejected before any store interaction.
	ErrMissingUser = errors.New("userId is required")

	// ErrStoreUnavailable wraps failures to reach the connection store. Callers
	// in the connection lifecycle log and continue; the connection simply goes
	// untracked until the next register.
	ErrStoreUnavailable = errors.New("connection store unavailable")
)

// ConnectionStore is the persistence surface the registry needs. Implemented
// by connectiondao.DAO.
type ConnectionStore interface {
	Put(ctx context.Context, conn connectiondao.Connection) error
	Delete(ctx context.Context, connectionID string) error
	Touch(ctx context.Context, connectionID string, lastActivity, expiresAt time.Time) error
	QueryByUser(ctx context.Context, userID string) ([]connectiondao.Connection, error)
}

// Registry tracks which connections belong to which user.
type Registry struct {
	Store ConnectionStore
	TTL   time.Duration    // defaults to RegistryTTL
	Now   func() time.Time // defaults to time.Now
}

// NewRegistry creates a registry over the given store with default TTL and clock.
func NewRegistry(store ConnectionStore) *Registry {
	return &Registry{Store: store}
}

func (r *Registry) ttl() time.Duration {
	if r.TTL > 0 {
		return r.TTL
	}
	return RegistryTTL
}

func (r *Registry) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Register records a new connection for the user. The sessionID is optional
// and correlates the connection to a logical job session.
func (r *Registry) Register(ctx context.Context, userID, connectionID, sessionID, endpoint string) error {
	if userID == "" {
		return ErrMissingUser
	}
	if connectionID == "" {
		return fmt.Errorf("connectionId is required")
	}

	now := r.now()
	conn := connectiondao.Connection{
		ConnectionID: connectionID,
		UserID:       userID,
		SessionID:    sessionID,
		Endpoint:     endpoint,
		ConnectedAt:  now.Unix(),
		LastActivity: now.Unix(),
		TTL:          now.Add(r.ttl()).Unix(),
	}
	if err := r.Store.Put(ctx, conn); err != nil {
		return fmt.Errorf("%w: registering connection %v: %v", ErrStoreUnavailable, connectionID, err)
	}
	return nil
}

// Unregister removes a connection record. Removing an absent record is a
// no-op; disconnect events race TTL expiry.
func (r *Registry) Unregister(ctx context.Context, connectionID string) error {
	if err := r.Store.Delete(ctx, connectionID); err != nil {
		return fmt.Errorf("%w: unregistering connection %v: %v", ErrStoreUnavailable, connectionID, err)
	}
	return nil
}

// Refresh updates a connection's last-activity timestamp and extends its expiry.
func (r *Registry) Refresh(ctx context.Context, connectionID string) error {
	now := r.now()
	if err := r.Store.Touch(ctx, connectionID, now, now.Add(r.ttl())); err != nil {
		return fmt.Errorf("%w: refreshing connection %v: %v", ErrStoreUnavailable, connectionID, err)
	}
	return nil
}

// FindByUser returns the user's live connections, excluding records whose TTL
// has passed but which the store's reaper hasn't purged yet. A user with no
// connections yields an empty slice, not an error.
func (r *Registry) FindByUser(ctx context.Context, userID string) ([]connectiondao.Connection, error) {
	conns, err := r.Store.QueryByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: finding connections for user %v: %v", ErrStoreUnavailable, userID, err)
	}

	now := r.now().Unix()
	live := conns[:0]
	for _, conn := range conns {
		if conn.TTL > now {
			live = append(live, conn)
		}
	}
	return live, nil
}
