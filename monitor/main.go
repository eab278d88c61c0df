package main

import (
	"github.com/brigadecore/brigade-foundations/signals"
	"github.com/brigadecore/brigade-foundations/version"
	"github.com/brigadecore/brigade/sdk/v2/core"
	"github.com/brigadecore/brigade/sdk/v2/system"
	"github.com/charmbracelet/log"
	"github.com/patchpanda/patchpanda-gateway/internal/github"
	"github.com/patchpanda/patchpanda-gateway/internal/secrets"
)

func main() {
	level, err := logLevel()
	if err != nil {
		log.Fatal(err)
	}
	log.SetLevel(level)

	log.Info(
		"Starting PatchPanda Gateway Monitor",
		"version", version.Version(),
		"commit", version.Commit(),
	)

	// Brigade System and Events API clients
	var systemClient system.APIClient
	var eventsClient core.EventsClient
	{
		address, token, opts, err := apiClientConfig()
		if err != nil {
			log.Fatal(err)
		}
		systemClient = system.NewAPIClient(address, token, &opts)
		eventsClient = core.NewEventsClient(address, token, &opts)
	}

	var checks github.ChecksService
	{
		secretsConfig, err := secretsConfig()
		if err != nil {
			log.Fatal(err)
		}
		app, err := githubAppConfig()
		if err != nil {
			log.Fatal(err)
		}
		identity, err := github.NewIdentityService(
			app,
			secrets.NewManager(secretsConfig),
		)
		if err != nil {
			log.Fatal(err)
		}
		checks = github.NewChecksService(identity, detailsURL())
	}

	var monitor *monitor
	{
		config, err := getMonitorConfig()
		if err != nil {
			log.Fatal(err)
		}
		monitor = newMonitor(systemClient, eventsClient, checks, config)
	}

	// Run it!
	log.Info(monitor.run(signals.Context()))
}
