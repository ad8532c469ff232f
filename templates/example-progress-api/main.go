package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	keyvexcli "github.com/lmnhd/keyvex-go-utils/keyvex-cli"
	keyvexddb "github.com/lmnhd/keyvex-go-utils/keyvex-ddb"
	keyvexrest "github.com/lmnhd/keyvex-go-utils/keyvex-rest"
	keyvexws "github.com/lmnhd/keyvex-go-utils/keyvex-ws"
	"github.com/lmnhd/keyvex-go-utils/keyvex-ws/publish"
	"github.com/lmnhd/keyvex-go-utils/keyvex-ws/sessiondao"
)

var service = keyvexcli.NewService("example-progress-api")

func main() {
	app := keyvexcli.App(
		service,
		action,
		append(
			append(
				keyvexcli.CommonFlags,
				keyvexcli.PortFlag(5002),
			),
			keyvexddb.DDBFlags...,
		)...,
	)
	err := app.Run(os.Args)
	if err != nil {
		log.Fatalln(err)
	}
}

type api struct {
	publisher *publish.Publisher
	sessions  *sessiondao.DAO
}

func action(_ *cli.Context) error {
	sess := session.Must(session.NewSession(aws.NewConfig()))
	ddbAPI, err := keyvexddb.DynamoDBAPI(sess)
	if err != nil {
		return err
	}

	a := &api{
		publisher: publish.Build(keyvexcli.CommonOpts.Env),
		sessions:  sessiondao.Build(ddbAPI, keyvexcli.CommonOpts.Env),
	}

	routes := keyvexrest.Middlewares(service, chi.NewRouter())
	routes.Post("/progress", a.postProgress)
	routes.Post("/sessions", a.postSession)
	routes.Get("/healthz", healthz)

	return keyvexrest.Webserver(service, routes)
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// postProgress publishes a progress event onto the stream; delivery to the
// user's connections happens asynchronously in the dispatcher.
func (a *api) postProgress(w http.ResponseWriter, req *http.Request) {
	logger := zerolog.Ctx(req.Context())

	var body struct {
		UserID string                 `json:"userId"`
		Event  keyvexws.ProgressEvent `json:"event"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Event.Timestamp.IsZero() {
		body.Event.Timestamp = time.Now()
	}
	if err := body.Event.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if keyvexcli.CommonOpts.Dry {
		logger.Info().Str("job_id", body.Event.JobID).Msg("dry run, not publishing")
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if err := a.publisher.Send(req.Context(), body.UserID, body.Event.JobID, body.Event); err != nil {
		logger.Error().Err(err).Str("job_id", body.Event.JobID).Msg("failed to publish progress event")
		http.Error(w, "failed to publish", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// postSession records which user owns a job so later envelopes may omit the user id.
func (a *api) postSession(w http.ResponseWriter, req *http.Request) {
	logger := zerolog.Ctx(req.Context())

	var body struct {
		JobID     string `json:"jobId"`
		UserID    string `json:"userId"`
		SessionID string `json:"sessionId,omitempty"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.JobID == "" || body.UserID == "" {
		http.Error(w, "jobId and userId are required", http.StatusBadRequest)
		return
	}

	now := time.Now()
	session := sessiondao.Session{
		JobID:     body.JobID,
		UserID:    body.UserID,
		SessionID: body.SessionID,
		StartedAt: now.Unix(),
		TTL:       now.Add(keyvexws.RegistryTTL).Unix(),
	}
	if err := a.sessions.Put(req.Context(), session); err != nil {
		logger.Error().Err(err).Str("job_id", body.JobID).Msg("failed to store job session")
		http.Error(w, "failed to store session", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
}
