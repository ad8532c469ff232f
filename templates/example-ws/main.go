package main

import (
	"crypto/subtle"
	"fmt"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/urfave/cli/v2"

	keyvexcli "github.com/lmnhd/keyvex-go-utils/keyvex-cli"
	keyvexddb "github.com/lmnhd/keyvex-go-utils/keyvex-ddb"
	keyvexsecret "github.com/lmnhd/keyvex-go-utils/keyvex-secret"
	keyvexws "github.com/lmnhd/keyvex-go-utils/keyvex-ws"
	"github.com/lmnhd/keyvex-go-utils/keyvex-ws/connectiondao"
)

var service = keyvexcli.NewService("example-ws")

var opts struct {
	AuthSecret string
}

func main() {
	app := keyvexcli.App(
		service,
		action,
		append(
			append(
				keyvexcli.CommonFlags,
				keyvexcli.StringFlag("auth-secret", "Secrets Manager secret holding the connect token; connects are open when unset", &opts.AuthSecret),
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

	handler := &keyvexws.Handler{
		Registry: keyvexws.NewRegistry(connectiondao.Build(api, keyvexcli.CommonOpts.Env)),
		Sender:   &keyvexws.APIGatewaySender{},
		Logger:   keyvexcli.Logger(service),
	}

	if opts.AuthSecret != "" {
		var secret struct {
			Token string `json:"token"`
		}
		if err := keyvexsecret.LoadSecret(sess, opts.AuthSecret, &secret); err != nil {
			return err
		}
		handler.Auth = func(req events.APIGatewayWebsocketProxyRequest) error {
			token := req.QueryStringParameters["token"]
			if subtle.ConstantTimeCompare([]byte(token), []byte(secret.Token)) != 1 {
				return fmt.Errorf("invalid connect token")
			}
			return nil
		}
	}

	return handler.Start()
}
