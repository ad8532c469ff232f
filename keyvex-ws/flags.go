package keyvexws

import (
	keyvexcli "github.com/lmnhd/keyvex-go-utils/keyvex-cli"
	"github.com/urfave/cli/v2"
)

var WSOpts struct {
	StreamName string
	Replay     bool
}

var StreamNameFlag = keyvexcli.StringFlag("stream-name", "The progress-events stream to read records from", &WSOpts.StreamName)
var ReplayFlag = keyvexcli.BoolFlag("replay", "Whether to replay the stream from the beginning, or start from the next message", &WSOpts.Replay)

var WSFlags = []cli.Flag{
	StreamNameFlag,
	ReplayFlag,
}
