package keyvexreport

import (
	keyvexcli "github.com/lmnhd/keyvex-go-utils/keyvex-cli"
	"github.com/urfave/cli/v2"
)

var ReportOpts struct {
	Bucket string

	OutFile   string
	GetLatest bool
}

var BucketFlag = keyvexcli.StringFlag("bucket", "The bucket to write the report to", &ReportOpts.Bucket)
var OutFileFlag = keyvexcli.StringFlag("out-file", "The file to write the report to, when running in dry mode", &ReportOpts.OutFile)
var GetLatestFlag = keyvexcli.BoolFlag("get-latest", "Get the latest report from the bucket instead of generating a new one", &ReportOpts.GetLatest)

var ReportFlags = []cli.Flag{
	BucketFlag,
	OutFileFlag,
	GetLatestFlag,
}
