package main

import (
	"log"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/urfave/cli/v2"

	keyvexcli "github.com/lmnhd/keyvex-go-utils/keyvex-cli"
	keyvexddb "github.com/lmnhd/keyvex-go-utils/keyvex-ddb"
	keyvexgql "github.com/lmnhd/keyvex-go-utils/keyvex-gql"
	keyvexws "github.com/lmnhd/keyvex-go-utils/keyvex-ws"
	"github.com/lmnhd/keyvex-go-utils/keyvex-ws/connectiondao"
	"github.com/lmnhd/keyvex-go-utils/keyvex-ws/sessiondao"
)

var service = keyvexcli.NewService("example-gql")

func main() {
	app := keyvexcli.App(
		service,
		action,
		append(
			append(
				keyvexcli.CommonFlags,
				keyvexcli.PortFlag(5001),
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

	connections := connectiondao.Build(api, keyvexcli.CommonOpts.Env)
	resolver := &Resolver{
		registry:    keyvexws.NewRegistry(connections),
		connections: connections,
		sessions:    sessiondao.Build(api, keyvexcli.CommonOpts.Env),
	}
	return keyvexgql.Webserver(resolver)
}
