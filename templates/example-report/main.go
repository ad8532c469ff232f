package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/urfave/cli/v2"

	keyvexcli "github.com/lmnhd/keyvex-go-utils/keyvex-cli"
	keyvexddb "github.com/lmnhd/keyvex-go-utils/keyvex-ddb"
	keyvexreport "github.com/lmnhd/keyvex-go-utils/keyvex-report"
	"github.com/lmnhd/keyvex-go-utils/keyvex-ws/connectiondao"
)

var service = keyvexcli.NewService("example-report")

var connections *connectiondao.DAO

func main() {
	app := keyvexcli.App(
		service,
		action,
		append(
			append(
				keyvexcli.CommonFlags,
				keyvexreport.ReportFlags...,
			),
			keyvexddb.DDBFlags...,
		)...,
	)
	err := app.Run(os.Args)
	if err != nil {
		log.Fatalln(err)
	}
}

func action(_ *cli.Context) error {
	sess := session.Must(session.NewSession(aws.NewConfig()))
	api, err := keyvexddb.DynamoDBAPI(sess)
	if err != nil {
		return err
	}
	connections = connectiondao.Build(api, keyvexcli.CommonOpts.Env)

	handler := keyvexreport.NewHandler(service, "connection-census", generate)
	return handler.Start()
}

func generate(ctx context.Context) (interface{}, error) {
	census, err := connections.TakeCensus(ctx, time.Now())
	if err != nil {
		return nil, err
	}

	var report struct {
		GeneratedAt time.Time            `json:"generatedAt"`
		Census      connectiondao.Census `json:"census"`
	}
	report.GeneratedAt = time.Now().UTC()
	report.Census = census
	return report, nil
}
