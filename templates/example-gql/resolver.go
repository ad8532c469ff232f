package main

import (
	"context"
	"time"

	_ "embed"

	keyvexcli "github.com/lmnhd/keyvex-go-utils/keyvex-cli"
	keyvexgql "github.com/lmnhd/keyvex-go-utils/keyvex-gql"
	keyvexws "github.com/lmnhd/keyvex-go-utils/keyvex-ws"
	"github.com/lmnhd/keyvex-go-utils/keyvex-ws/connectiondao"
	"github.com/lmnhd/keyvex-go-utils/keyvex-ws/sessiondao"
)

//go:embed example.gql
var schema string

type Resolver struct {
	registry    *keyvexws.Registry
	connections *connectiondao.DAO
	sessions    *sessiondao.DAO
}

func (r *Resolver) Schema() string {
	return keyvexgql.MergeSchemas(schema, keyvexgql.Common)
}

func (r *Resolver) Config() *keyvexgql.BaseConfig {
	return &keyvexgql.BaseConfig{
		Logger:  keyvexcli.Logger(service),
		Service: service,
	}
}

type Connection struct {
	ConnectionID string
	UserID       string
	SessionID    *string
	ConnectedAt  string
	LastActivity string
	ExpiresAt    string
}

type Session struct {
	JobID     string
	UserID    string
	StartedAt string
}

func (r *Resolver) Connections(ctx context.Context, args struct{ UserID string }) ([]Connection, error) {
	conns, err := r.registry.FindByUser(ctx, args.UserID)
	if err != nil {
		return nil, err
	}

	out := make([]Connection, 0, len(conns))
	for _, conn := range conns {
		c := Connection{
			ConnectionID: conn.ConnectionID,
			UserID:       conn.UserID,
			ConnectedAt:  time.Unix(conn.ConnectedAt, 0).UTC().Format(time.RFC3339),
			LastActivity: time.Unix(conn.LastActivity, 0).UTC().Format(time.RFC3339),
			ExpiresAt:    time.Unix(conn.TTL, 0).UTC().Format(time.RFC3339),
		}
		if conn.SessionID != "" {
			sessionID := conn.SessionID
			c.SessionID = &sessionID
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *Resolver) Census(ctx context.Context) (keyvexgql.JSON, error) {
	census, err := r.connections.TakeCensus(ctx, time.Now())
	if err != nil {
		return keyvexgql.JSON{}, err
	}
	return keyvexgql.JSON{Data: census}, nil
}

func (r *Resolver) Session(ctx context.Context, args struct{ JobID string }) (*Session, error) {
	session, err := r.sessions.Get(ctx, args.JobID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}
	return &Session{
		JobID:     session.JobID,
		UserID:    session.UserID,
		StartedAt: time.Unix(session.StartedAt, 0).UTC().Format(time.RFC3339),
	}, nil
}
