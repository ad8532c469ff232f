// Package keyvexgql provides GraphQL server utilities with built-in CORS,
// logging middleware, and common GraphQL scalar types.
//
// This package includes server setup with sensible defaults, a JSON scalar
// for free-form payloads, and schema introspection controls.
package keyvexgql

import (
	keyvexcli "github.com/lmnhd/keyvex-go-utils/keyvex-cli"
)

func AllowIntrospection() bool {
	return keyvexcli.CommonOpts.Env != "prod" || keyvexcli.CommonOpts.Console
}

type Resolver interface {
	Schema() string
	Config() *BaseConfig
}
