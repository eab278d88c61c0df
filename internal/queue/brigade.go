package queue

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/brigadecore/brigade/sdk/v2/core"
	"github.com/pkg/errors"
)

// BrigadeEventSource is the source of every event this gateway emits into
// Brigade.
const BrigadeEventSource = "patchpanda.dev/gateway"

// Keys of the source state attached to events emitted into Brigade. Events
// whose source state has SourceStateTracking set to "true" are followed up on
// until their worker finishes and the check run they carry is completed.
const (
	SourceStateInstallationID = "installationID"
	SourceStateOwner          = "owner"
	SourceStateRepo           = "repo"
	SourceStateHeadSHA        = "headSHA"
	SourceStateCheckRunID     = "checkRunID"
	SourceStateTracking       = "tracking"
)

// BrigadeQueue is a Queue that emits each job into Brigade's event bus as an
// event whose type is the queue name. Brigade projects subscribed to those
// events act as the workers.
type BrigadeQueue struct {
	eventsClient core.EventsClient
}

// NewBrigadeQueue returns a BrigadeQueue that emits events using the provided
// client.
func NewBrigadeQueue(eventsClient core.EventsClient) *BrigadeQueue {
	return &BrigadeQueue{
		eventsClient: eventsClient,
	}
}

func (b *BrigadeQueue) Enqueue(
	ctx context.Context,
	queueName string,
	payload interface{},
) (string, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrapf(
			err,
			"error marshaling payload for queue %q",
			queueName,
		)
	}
	event := core.Event{
		Source:  BrigadeEventSource,
		Type:    queueName,
		Payload: string(payloadJSON),
	}
	if ref, ok := pullRequestRefOf(payload); ok {
		event.Qualifiers = map[string]string{
			"repo": ref.Owner + "/" + ref.Repo,
		}
		event.Git = &core.GitDetails{
			Commit: ref.HeadSHA,
			Ref:    ref.HeadRef,
		}
		event.SourceState = &core.SourceState{
			State: map[string]string{
				SourceStateInstallationID: strconv.FormatInt(ref.InstallationID, 10),
				SourceStateOwner:          ref.Owner,
				SourceStateRepo:           ref.Repo,
				SourceStateHeadSHA:        ref.HeadSHA,
			},
		}
		if job, ok := payload.(TestGenerationJob); ok && job.CheckRunID != 0 {
			event.SourceState.State[SourceStateCheckRunID] =
				strconv.FormatInt(job.CheckRunID, 10)
			event.SourceState.State[SourceStateTracking] = "true"
		}
	}
	events, err := b.eventsClient.Create(ctx, event)
	if err != nil {
		return "", errors.Wrap(err, "error emitting event into Brigade")
	}
	if len(events.Items) == 0 {
		// No project subscribes to this event type, so nothing will act on it.
		return "", errors.Errorf(
			"no Brigade project is subscribed to %s events",
			queueName,
		)
	}
	return events.Items[0].ID, nil
}

func pullRequestRefOf(payload interface{}) (PullRequestRef, bool) {
	switch job := payload.(type) {
	case TestGenerationJob:
		return job.PullRequestRef, true
	case CoverageJob:
		return job.PullRequestRef, true
	case PullRequestRef:
		return job, true
	}
	return PullRequestRef{}, false
}
