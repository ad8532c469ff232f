package main

import (
	"log"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/urfave/cli/v2"

	keyvexcli "github.com/lmnhd/keyvex-go-utils/keyvex-cli"
	keyvexddb "github.com/lmnhd/keyvex-go-utils/keyvex-ddb"
	keyvexws "github.com/lmnhd/keyvex-go-utils/keyvex-ws"
	"github.com/lmnhd/keyvex-go-utils/keyvex-ws/connectiondao"
	"github.com/lmnhd/keyvex-go-utils/keyvex-ws/sessiondao"
)

var service = keyvexcli.NewService("example-ws-dispatch")

func main() {
	app := keyvexcli.App(
		service,
		action,
		append(
			append(
				keyvexcli.CommonFlags,
				keyvexddb.DDBFlags...,
			),
			keyvexws.WSFlags...,
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
	dispatcher := &keyvexws.Dispatcher{
		Broadcaster: &keyvexws.Broadcaster{
			Registry: keyvexws.NewRegistry(connectiondao.Build(api, keyvexcli.CommonOpts.Env)),
			Sender:   &keyvexws.APIGatewaySender{},
			Logger:   logger,
		},
		Sessions: sessiondao.Build(api, keyvexcli.CommonOpts.Env),
		Logger:   logger,
	}
	return dispatcher.Start()
}
