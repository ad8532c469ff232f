package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/urfave/cli/v2"

	keyvexcli "github.com/lmnhd/keyvex-go-utils/keyvex-cli"
	keyvexddb "github.com/lmnhd/keyvex-go-utils/keyvex-ddb"
	"github.com/lmnhd/keyvex-go-utils/keyvex-ws/connectiondao"
)

var service = keyvexcli.NewService("example-ttl-observer")

var metrics keyvexcli.Metrics

func main() {
	app := keyvexcli.App(
		service,
		action,
		append(
			keyvexcli.CommonFlags,
			keyvexddb.DDBFlags...,
		)...,
	)
	err := app.Run(os.Args)
	if err != nil {
		log.Fatalln(err)
	}
}

// onDelete fires for explicit disconnects and for TTL-reaped records; either
// way the connection is gone, so count it.
func onDelete(ctx context.Context, oldValue map[string]*dynamodb.AttributeValue) error {
	var conn connectiondao.Connection
	if err := keyvexddb.ParseItem(oldValue, &conn); err != nil {
		return err
	}

	metrics.Event(ctx, keyvexcli.ConnectionsExpiredMetric, map[keyvexcli.DimensionName]string{
		keyvexcli.OperationNameDimension: "ttl-observer",
	})
	return nil
}

func action(_ *cli.Context) error {
	sess := session.Must(session.NewSession(aws.NewConfig()))
	metrics = keyvexcli.NewMetrics(service, cloudwatch.New(sess))

	if keyvexddb.DDBOpts.TableName == "" {
		keyvexddb.DDBOpts.TableName = connectiondao.TableName(keyvexcli.CommonOpts.Env)
	}

	handler := keyvexddb.NewHandler(service, nil, nil, onDelete)
	return handler.Start()
}
