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
	keyvexcron "github.com/lmnhd/keyvex-go-utils/keyvex-cron"
	keyvexddb "github.com/lmnhd/keyvex-go-utils/keyvex-ddb"
	"github.com/lmnhd/keyvex-go-utils/keyvex-ws/connectiondao"
)

var service = keyvexcli.NewService("example-sweeper")

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

func action(_ *cli.Context) error {
	sess := session.Must(session.NewSession(aws.NewConfig()))
	api, err := keyvexddb.DynamoDBAPI(sess)
	if err != nil {
		return err
	}

	logger := keyvexcli.Logger(service)
	connections := connectiondao.Build(api, keyvexcli.CommonOpts.Env)

	// DynamoDB's TTL reaper can lag by hours; sweep anything it hasn't caught up with
	handler := keyvexcron.NewHandler(service, func(ctx context.Context) error {
		if keyvexcli.CommonOpts.Dry {
			logger.Info().Msg("dry run, not sweeping")
			return nil
		}
		removed, err := connections.SweepExpired(ctx, time.Now())
		if err != nil {
			return err
		}
		logger.Info().Int("removed", removed).Msg("swept expired connections")
		return nil
	})
	return handler.Start()
}
