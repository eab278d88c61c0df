package main

import (
	"context"
	"strconv"
	"time"

	"github.com/armon/circbuf"
	"github.com/brigadecore/brigade/sdk/v2/core"
	"github.com/brigadecore/brigade/sdk/v2/meta"
	"github.com/charmbracelet/log"
	"github.com/google/go-github/v69/github"
	ghlib "github.com/patchpanda/patchpanda-gateway/internal/github"
	"github.com/patchpanda/patchpanda-gateway/internal/queue"
	"github.com/pkg/errors"
)

// GitHub rejects check run output text longer than this.
const maxLogBytes = 65535

const truncationNotice = "(Previous text omitted)\n"

// checkRunTarget identifies the test generation check run an event reports on.
type checkRunTarget struct {
	installationID int64
	owner          string
	repo           string
	checkRunID     int64
}

func (m *monitor) manageEvents(ctx context.Context) {
	// Maintain a map of functions for canceling the follow-up loop for each of
	// the events we're watching
	loopCancelFns := map[string]func(){}

	ticker := time.NewTicker(m.config.listEventsInterval)
	defer ticker.Stop()

	for {

		// Build a set of current events. This makes it a little faster and easier
		// to search for events later in this algorithm.
		currentEvents := map[string]struct{}{}
		listOpts := &meta.ListOptions{Limit: 100}
		for {
			events, err := m.eventsClient.List(
				ctx,
				&core.EventsSelector{
					Source: queue.BrigadeEventSource,
					Type:   queue.TestGenerationQueue,
					// Every phase but pending. A worker canceled before it started still
					// leaves a queued check run behind that needs completing.
					WorkerPhases: []core.WorkerPhase{
						core.WorkerPhaseAborted,
						core.WorkerPhaseCanceled,
						core.WorkerPhaseFailed,
						core.WorkerPhaseRunning,
						core.WorkerPhaseStarting,
						core.WorkerPhaseSucceeded,
						core.WorkerPhaseTimedOut,
						core.WorkerPhaseUnknown,
					},
					SourceState: map[string]string{
						queue.SourceStateTracking: "true",
					},
				},
				listOpts,
			)
			if err != nil {
				select {
				case m.errCh <- errors.Wrap(err, "error listing events"):
				case <-ctx.Done():
				}
				return
			}
			for _, event := range events.Items {
				currentEvents[event.ID] = struct{}{}
			}
			if events.RemainingItemCount > 0 {
				listOpts.Continue = events.Continue
			} else {
				break
			}
		}

		// Stop following events that are no longer selected. Most likely we
		// finished with them and cleared their source state.
		for eventID, cancelFn := range loopCancelFns {
			if _, stillExists := currentEvents[eventID]; !stillExists {
				cancelFn()
				delete(loopCancelFns, eventID)
			}
		}

		// Start following any new events that have been discovered
		for eventID := range currentEvents {
			if _, known := loopCancelFns[eventID]; !known {
				loopCtx, loopCtxCancelFn := context.WithCancel(ctx)
				loopCancelFns[eventID] = loopCtxCancelFn
				go m.monitorEventFn(loopCtx, eventID)
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}

}

func (m *monitor) monitorEvent(ctx context.Context, eventID string) {
	logger := log.With("event", eventID)
	logger.Info("following test generation event")
	defer logger.Info("done following test generation event")
	if err := m.monitorEventInternal(ctx, eventID); err != nil {
		logger.Error(err)
	}
}

func (m *monitor) monitorEventInternal(
	ctx context.Context,
	eventID string,
) error {
	// The status most recently reported to GitHub. Check runs start out queued.
	reported := ghlib.CheckStatusQueued

	ticker := time.NewTicker(m.config.eventFollowUpInterval)
	defer ticker.Stop()
	for {
		event, err := m.eventsClient.Get(ctx, eventID)
		if err != nil {
			return errors.Wrapf(
				err,
				"error following up on event %q status; giving up",
				eventID,
			)
		}
		target, err := checkRunTargetFromEvent(event)
		if err != nil {
			return err
		}

		var phase core.WorkerPhase
		if event.Worker != nil {
			phase = event.Worker.Status.Phase
		}
		status, conclusion := checkRunStatusAndConclusionFromWorkerPhase(phase)

		if status != reported {
			output := checkRunOutput(status, conclusion)
			if status == ghlib.CheckStatusCompleted {
				logs, err := m.getWorkerLogsFn(ctx, event)
				if err != nil {
					// The outcome is worth more than the logs
					log.Warn(
						"error getting worker logs",
						"event", eventID,
						"err", err,
					)
				} else if logs != "" {
					output.Text = github.String(logs)
				}
			}
			if err = m.checks.UpdateTestGenerationCheck(
				ctx,
				target.installationID,
				target.owner,
				target.repo,
				target.checkRunID,
				status,
				conclusion,
				output,
			); err != nil {
				return errors.Wrapf(
					err,
					"error updating check run %d for event %q; giving up",
					target.checkRunID,
					eventID,
				)
			}
			reported = status
		}

		if status == ghlib.CheckStatusCompleted {
			// Blank out the event's source state to reflect that we're done following
			// up on it
			if err = m.eventsClient.UpdateSourceState(
				ctx,
				eventID,
				core.SourceState{},
			); err != nil {
				return errors.Wrapf(
					err,
					"error clearing source state for event %q; giving up",
					eventID,
				)
			}
			return nil
		}

		// Wait before looping around so we're not CONSTANTLY hitting the API
		// server for status updates.
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil
		}
	}
}

// checkRunTargetFromEvent recovers the check run an event reports on from the
// source state the gateway attached when it emitted the event.
func checkRunTargetFromEvent(event core.Event) (checkRunTarget, error) {
	target := checkRunTarget{}
	state := map[string]string{}
	if event.SourceState != nil && event.SourceState.State != nil {
		state = event.SourceState.State
	}
	var err error
	if target.installationID, err = strconv.ParseInt(
		state[queue.SourceStateInstallationID],
		10,
		64,
	); err != nil {
		return target, errors.Wrapf(
			err,
			"error parsing installationID %q from event %q; giving up",
			state[queue.SourceStateInstallationID],
			event.ID,
		)
	}
	if target.checkRunID, err = strconv.ParseInt(
		state[queue.SourceStateCheckRunID],
		10,
		64,
	); err != nil {
		return target, errors.Wrapf(
			err,
			"error parsing checkRunID %q from event %q; giving up",
			state[queue.SourceStateCheckRunID],
			event.ID,
		)
	}
	target.owner = state[queue.SourceStateOwner]
	target.repo = state[queue.SourceStateRepo]
	if target.owner == "" || target.repo == "" {
		return target, errors.Errorf(
			"no repository found in event %q; giving up",
			event.ID,
		)
	}
	return target, nil
}

func checkRunStatusAndConclusionFromWorkerPhase(
	workerPhase core.WorkerPhase,
) (ghlib.CheckStatus, ghlib.CheckConclusion) {
	switch workerPhase {
	case "", core.WorkerPhasePending, core.WorkerPhaseStarting:
		return ghlib.CheckStatusQueued, ""
	case core.WorkerPhaseRunning:
		return ghlib.CheckStatusInProgress, ""
	case core.WorkerPhaseSucceeded:
		return ghlib.CheckStatusCompleted, ghlib.CheckConclusionSuccess
	case core.WorkerPhaseTimedOut:
		return ghlib.CheckStatusCompleted, ghlib.CheckConclusionTimedOut
	case core.WorkerPhaseAborted, core.WorkerPhaseCanceled:
		return ghlib.CheckStatusCompleted, ghlib.CheckConclusionCancelled
	}
	// Failed, unknown, and anything newer than this code
	return ghlib.CheckStatusCompleted, ghlib.CheckConclusionFailure
}

func checkRunOutput(
	status ghlib.CheckStatus,
	conclusion ghlib.CheckConclusion,
) *github.CheckRunOutput {
	var title, summary string
	switch {
	case status == ghlib.CheckStatusInProgress:
		title = "Generating tests"
		summary = "PatchPanda is generating tests for this commit."
	case conclusion == ghlib.CheckConclusionSuccess:
		title = "Test generation succeeded"
		summary = "PatchPanda finished generating tests for this commit."
	case conclusion == ghlib.CheckConclusionTimedOut:
		title = "Test generation timed out"
		summary = "PatchPanda ran out of time generating tests for this commit."
	case conclusion == ghlib.CheckConclusionCancelled:
		title = "Test generation canceled"
		summary = "Test generation for this commit was canceled."
	default:
		title = "Test generation failed"
		summary = "PatchPanda could not generate tests for this commit."
	}
	return &github.CheckRunOutput{
		Title:   github.String(title),
		Summary: github.String(summary),
	}
}

// getWorkerLogs returns the tail of a finished worker's logs. It returns an
// empty string if the worker hasn't finished.
func (m *monitor) getWorkerLogs(
	ctx context.Context,
	event core.Event,
) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel() // Cancel when we return so that we hang up on the log stream!
	if event.Worker == nil || !event.Worker.Status.Phase.IsTerminal() {
		return "", nil
	}
	buf, err := circbuf.NewBuffer(maxLogBytes)
	if err != nil {
		return "", err
	}
	logCh, errCh, err := m.logsClient.Stream(
		ctx,
		event.ID,
		&core.LogsSelector{},
		nil,
	)
	if err != nil {
		return "", err
	}
logLoop:
	for {
		select {
		case logEntry, ok := <-logCh:
			if !ok { // The channel was closed. We got everything.
				break logLoop
			}
			if _, err = buf.Write([]byte(logEntry.Message + "\n")); err != nil {
				return "", err
			}
		case err, ok := <-errCh:
			if ok { // Not simply the end of the channel
				return "", err
			}
			errCh = nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	logs := buf.String()
	if buf.TotalWritten() > buf.Size() {
		logs = truncationNotice + logs[len(truncationNotice):]
	}
	return logs, nil
}
