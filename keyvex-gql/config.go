package keyvexgql

import (
	"os"

	"github.com/rs/zerolog"

	keyvexcli "github.com/lmnhd/keyvex-go-utils/keyvex-cli"
)

type BaseConfig struct {
	Logger  zerolog.Logger
	Service keyvexcli.Service
}

func NewConfig(service keyvexcli.Service) BaseConfig {
	return BaseConfig{
		Logger: zerolog.New(os.Stdout).With().
			Str("service", service.Name).
			Str("version", service.Version).
			Logger(),
		Service: service,
	}
}
