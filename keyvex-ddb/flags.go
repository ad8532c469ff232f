package keyvexddb

import (
	keyvexcli "github.com/lmnhd/keyvex-go-utils/keyvex-cli"
	"github.com/urfave/cli/v2"
)

var DDBOpts struct {
	DAXCluster string
	DAXRegion  string
	TableName  string
}

var DAXClusterFlag = keyvexcli.StringFlag("dax-cluster", "The DAX cluster to connect to", &DDBOpts.DAXCluster)
var DAXRegionFlag = keyvexcli.StringFlag("dax-region", "The region the DAX cluster lives in", &DDBOpts.DAXRegion, "us-east-1")
var TableNameFlag = keyvexcli.StringFlag("table-name", "The table name to read streams from", &DDBOpts.TableName)

var DDBFlags = []cli.Flag{
	DAXClusterFlag,
	DAXRegionFlag,
	TableNameFlag,
}
