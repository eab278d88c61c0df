package main

// nolint: lll
import (
	"context"
	"net/http"

	libHTTP "github.com/brigadecore/brigade-foundations/http"
	"github.com/brigadecore/brigade-foundations/signals"
	"github.com/brigadecore/brigade-foundations/version"
	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
	"github.com/patchpanda/patchpanda-gateway/internal/authz"
	"github.com/patchpanda/patchpanda-gateway/internal/github"
	"github.com/patchpanda/patchpanda-gateway/internal/queue"
	"github.com/patchpanda/patchpanda-gateway/internal/repoconfig"
	"github.com/patchpanda/patchpanda-gateway/internal/secrets"
	"github.com/patchpanda/patchpanda-gateway/internal/signature"
	"github.com/patchpanda/patchpanda-gateway/receiver/internal/webhooks"
)

func main() {
	level, err := logLevel()
	if err != nil {
		log.Fatal(err)
	}
	log.SetLevel(level)

	log.Info(
		"Starting PatchPanda Gateway Receiver",
		"version", version.Version(),
		"commit", version.Commit(),
	)

	ctx := signals.Context()

	var secretsManager *secrets.Manager
	{
		config, err := secretsConfig()
		if err != nil {
			log.Fatal(err)
		}
		secretsManager = secrets.NewManager(config)
	}

	var verifier *signature.Verifier
	{
		webhookSecret, ok := secretsManager.WebhookSecret(ctx)
		if !ok {
			log.Warn(
				"no webhook secret could be resolved; every delivery will be rejected",
			)
		}
		verifier = signature.NewVerifier(webhookSecret)
	}

	var identity *github.IdentityService
	{
		app, err := githubAppConfig()
		if err != nil {
			log.Fatal(err)
		}
		if identity, err = github.NewIdentityService(app, secretsManager); err != nil {
			log.Fatal(err)
		}
	}

	var queueService queue.Service
	{
		config, err := queueConfig()
		if err != nil {
			log.Fatal(err)
		}
		q, err := queue.New(ctx, config)
		if err != nil {
			log.Fatal(err)
		}
		queueService = queue.NewService(q, config.Timeout)
	}

	var webhooksService webhooks.Service
	{
		checks := github.NewChecksService(identity, detailsURL())
		configLoader := repoconfig.NewLoader(identity)
		webhooksService = webhooks.NewService(
			verifier,
			webhooks.NewCommentHandler(
				identity,
				checks,
				queueService,
				authz.NewAuthorizer(allowedAuthorAssociations(), identity),
				configLoader,
			),
			webhooks.NewPullRequestHandler(
				identity,
				checks,
				queueService,
				configLoader,
			),
		)
	}

	var server libHTTP.Server
	{
		appTargetFilter := webhooks.NewAppTargetFilter(identity.AppID())
		handler := http.HandlerFunc(
			appTargetFilter.Decorate(webhooks.NewHandler(webhooksService).ServeHTTP),
		)
		router := mux.NewRouter()
		router.StrictSlash(true)
		router.Handle("/webhooks/github", handler).Methods(http.MethodPost)
		router.Handle("/events", handler).Methods(http.MethodPost)
		router.HandleFunc("/healthz", libHTTP.Healthz).Methods(http.MethodGet)
		serverConfig, err := serverConfig()
		if err != nil {
			log.Fatal(err)
		}
		server = libHTTP.NewServer(router, &serverConfig)
	}

	if err = server.ListenAndServe(ctx); err != nil &&
		err != context.Canceled {
		log.Error(err)
	}
}
