// Package keyvexcron provides utilities for building scheduled Lambda functions.
package keyvexcron

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"

	keyvexcli "github.com/lmnhd/keyvex-go-utils/keyvex-cli"
)

type RunCallback func(ctx context.Context) error

type Handler struct {
	service keyvexcli.Service
	logger  zerolog.Logger

	runOnce RunCallback
}

func NewHandler(
	service keyvexcli.Service,
	runOnce RunCallback,
) *Handler {
	return &Handler{
		service: service,
		logger:  keyvexcli.Logger(service),
		runOnce: runOnce,
	}
}

func (h *Handler) RunOnce(ctx context.Context, _ json.RawMessage) error {
	h.logger.Info().Msg("running scheduled task")
	return h.runOnce(ctx)
}

func (h *Handler) Start() error {
	switch {
	case keyvexcli.CommonOpts.Console:
		return h.runOnce(context.Background())

	default:
		lambda.Start(h.RunOnce)
	}
	return nil
}
