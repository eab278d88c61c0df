package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brigadecore/brigade/sdk/v2/core"
	"github.com/brigadecore/brigade/sdk/v2/meta"
	coreTesting "github.com/brigadecore/brigade/sdk/v2/testing/core"
	"github.com/google/go-github/v69/github"
	ghlib "github.com/patchpanda/patchpanda-gateway/internal/github"
	"github.com/patchpanda/patchpanda-gateway/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEventID = "tunguska"

func testEvent(phase core.WorkerPhase) core.Event {
	return core.Event{
		ObjectMeta: meta.ObjectMeta{ID: testEventID},
		Source:     queue.BrigadeEventSource,
		Type:       queue.TestGenerationQueue,
		SourceState: &core.SourceState{
			State: map[string]string{
				queue.SourceStateInstallationID: "99",
				queue.SourceStateOwner:          "acme",
				queue.SourceStateRepo:           "widgets",
				queue.SourceStateHeadSHA:        "abc123",
				queue.SourceStateCheckRunID:     "42",
				queue.SourceStateTracking:       "true",
			},
		},
		Worker: &core.Worker{
			Status: core.WorkerStatus{Phase: phase},
		},
	}
}

// phases returns a GetFn that walks through the given worker phases, one per
// call, and then stays on the last one.
func phases(workerPhases ...core.WorkerPhase) func(
	context.Context,
	string,
) (core.Event, error) {
	i := 0
	return func(_ context.Context, eventID string) (core.Event, error) {
		phase := workerPhases[i]
		if i < len(workerPhases)-1 {
			i++
		}
		event := testEvent(phase)
		event.ID = eventID
		return event, nil
	}
}

type checkRunUpdate struct {
	status     ghlib.CheckStatus
	conclusion ghlib.CheckConclusion
	output     *github.CheckRunOutput
}

type updateRecorder struct {
	t       *testing.T
	updates []checkRunUpdate
}

func (u *updateRecorder) checks() *ghlib.MockChecksService {
	return &ghlib.MockChecksService{
		UpdateTestGenerationCheckFn: func(
			_ context.Context,
			installationID int64,
			owner string,
			repo string,
			checkRunID int64,
			status ghlib.CheckStatus,
			conclusion ghlib.CheckConclusion,
			output *github.CheckRunOutput,
		) error {
			require.Equal(u.t, int64(99), installationID)
			require.Equal(u.t, "acme", owner)
			require.Equal(u.t, "widgets", repo)
			require.Equal(u.t, int64(42), checkRunID)
			u.updates = append(
				u.updates,
				checkRunUpdate{
					status:     status,
					conclusion: conclusion,
					output:     output,
				},
			)
			return nil
		},
	}
}

func TestManageEvents(t *testing.T) {
	testCases := []struct {
		name       string
		monitor    func(chan<- string) *monitor
		assertions func(followed string, err error)
	}{
		{
			name: "error listing events",
			monitor: func(chan<- string) *monitor {
				return &monitor{
					eventsClient: &coreTesting.MockEventsClient{
						ListFn: func(
							context.Context,
							*core.EventsSelector,
							*meta.ListOptions,
						) (core.EventList, error) {
							return core.EventList{}, errors.New("something went wrong")
						},
					},
				}
			},
			assertions: func(_ string, err error) {
				require.Error(t, err)
				require.Contains(t, err.Error(), "something went wrong")
				require.Contains(t, err.Error(), "error listing events")
			},
		},
		{
			name: "success",
			monitor: func(followedCh chan<- string) *monitor {
				return &monitor{
					eventsClient: &coreTesting.MockEventsClient{
						ListFn: func(
							_ context.Context,
							selector *core.EventsSelector,
							_ *meta.ListOptions,
						) (core.EventList, error) {
							require.Equal(t, queue.BrigadeEventSource, selector.Source)
							require.Equal(t, queue.TestGenerationQueue, selector.Type)
							require.Equal(
								t,
								map[string]string{queue.SourceStateTracking: "true"},
								selector.SourceState,
							)
							require.NotContains(
								t,
								selector.WorkerPhases,
								core.WorkerPhasePending,
							)
							require.Contains(
								t,
								selector.WorkerPhases,
								core.WorkerPhaseCanceled,
							)
							return core.EventList{
								Items: []core.Event{
									{
										ObjectMeta: meta.ObjectMeta{
											ID: testEventID,
										},
									},
								},
							}, nil
						},
					},
					monitorEventFn: func(_ context.Context, eventID string) {
						followedCh <- eventID
					},
				}
			},
			assertions: func(followed string, err error) {
				require.NoError(t, err)
				require.Equal(t, testEventID, followed)
			},
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			followedCh := make(chan string, 1)
			monitor := testCase.monitor(followedCh)
			monitor.config = monitorConfig{listEventsInterval: time.Second}
			monitor.errCh = make(chan error)
			go monitor.manageEvents(ctx)
			// Listen for errors
			select {
			case err := <-monitor.errCh:
				testCase.assertions("", err)
			case eventID := <-followedCh:
				testCase.assertions(eventID, nil)
			case <-ctx.Done():
				testCase.assertions("", nil)
			}
		})
	}
}

func TestMonitorEventInternal(t *testing.T) {
	noLogs := func(context.Context, core.Event) (string, error) {
		return "", nil
	}
	sourceStateCleared := func(cleared *bool) func(
		context.Context,
		string,
		core.SourceState,
	) error {
		return func(_ context.Context, eventID string, state core.SourceState) error {
			require.Equal(t, testEventID, eventID)
			require.Empty(t, state.State)
			*cleared = true
			return nil
		}
	}
	testCases := []struct {
		name       string
		setup      func(*updateRecorder) (*monitor, *bool)
		assertions func(updates []checkRunUpdate, cleared bool, err error)
	}{
		{
			name: "error getting event",
			setup: func(*updateRecorder) (*monitor, *bool) {
				return &monitor{
					eventsClient: &coreTesting.MockEventsClient{
						GetFn: func(context.Context, string) (core.Event, error) {
							return core.Event{}, errors.New("something went wrong")
						},
					},
				}, new(bool)
			},
			assertions: func(_ []checkRunUpdate, _ bool, err error) {
				require.Error(t, err)
				require.Contains(t, err.Error(), "something went wrong")
				require.Contains(t, err.Error(), "error following up on event")
			},
		},
		{
			name: "installation ID missing from source state",
			setup: func(*updateRecorder) (*monitor, *bool) {
				return &monitor{
					eventsClient: &coreTesting.MockEventsClient{
						GetFn: func(context.Context, string) (core.Event, error) {
							return core.Event{
								ObjectMeta: meta.ObjectMeta{ID: testEventID},
							}, nil
						},
					},
				}, new(bool)
			},
			assertions: func(_ []checkRunUpdate, _ bool, err error) {
				require.Error(t, err)
				require.Contains(t, err.Error(), "error parsing installationID")
			},
		},
		{
			name: "check run ID not parseable",
			setup: func(*updateRecorder) (*monitor, *bool) {
				return &monitor{
					eventsClient: &coreTesting.MockEventsClient{
						GetFn: func(context.Context, string) (core.Event, error) {
							event := testEvent(core.WorkerPhaseRunning)
							event.SourceState.State[queue.SourceStateCheckRunID] = "foo"
							return event, nil
						},
					},
				}, new(bool)
			},
			assertions: func(_ []checkRunUpdate, _ bool, err error) {
				require.Error(t, err)
				require.Contains(t, err.Error(), "error parsing checkRunID")
				require.Contains(t, err.Error(), "foo")
			},
		},
		{
			name: "repository missing from source state",
			setup: func(*updateRecorder) (*monitor, *bool) {
				return &monitor{
					eventsClient: &coreTesting.MockEventsClient{
						GetFn: func(context.Context, string) (core.Event, error) {
							event := testEvent(core.WorkerPhaseRunning)
							delete(event.SourceState.State, queue.SourceStateRepo)
							return event, nil
						},
					},
				}, new(bool)
			},
			assertions: func(_ []checkRunUpdate, _ bool, err error) {
				require.Error(t, err)
				require.Contains(t, err.Error(), "no repository found in event")
			},
		},
		{
			name: "worker runs and succeeds",
			setup: func(recorder *updateRecorder) (*monitor, *bool) {
				cleared := false
				return &monitor{
					eventsClient: &coreTesting.MockEventsClient{
						GetFn: phases(
							core.WorkerPhaseStarting,
							core.WorkerPhaseRunning,
							core.WorkerPhaseRunning,
							core.WorkerPhaseSucceeded,
						),
						UpdateSourceStateFn: sourceStateCleared(&cleared),
					},
					getWorkerLogsFn: func(
						_ context.Context,
						event core.Event,
					) (string, error) {
						require.Equal(t, core.WorkerPhaseSucceeded, event.Worker.Status.Phase)
						return "wrote 3 tests\n", nil
					},
					checks: recorder.checks(),
				}, &cleared
			},
			assertions: func(updates []checkRunUpdate, cleared bool, err error) {
				require.NoError(t, err)
				require.True(t, cleared)
				require.Len(t, updates, 2)
				require.Equal(t, ghlib.CheckStatusInProgress, updates[0].status)
				require.Empty(t, updates[0].conclusion)
				require.Equal(t, "Generating tests", updates[0].output.GetTitle())
				require.Equal(t, ghlib.CheckStatusCompleted, updates[1].status)
				require.Equal(t, ghlib.CheckConclusionSuccess, updates[1].conclusion)
				require.Equal(
					t,
					"Test generation succeeded",
					updates[1].output.GetTitle(),
				)
				require.Equal(t, "wrote 3 tests\n", updates[1].output.GetText())
			},
		},
		{
			name: "worker canceled before it starts",
			setup: func(recorder *updateRecorder) (*monitor, *bool) {
				cleared := false
				return &monitor{
					eventsClient: &coreTesting.MockEventsClient{
						GetFn:               phases(core.WorkerPhaseCanceled),
						UpdateSourceStateFn: sourceStateCleared(&cleared),
					},
					getWorkerLogsFn: noLogs,
					checks:          recorder.checks(),
				}, &cleared
			},
			assertions: func(updates []checkRunUpdate, cleared bool, err error) {
				require.NoError(t, err)
				require.True(t, cleared)
				require.Len(t, updates, 1)
				require.Equal(t, ghlib.CheckStatusCompleted, updates[0].status)
				require.Equal(t, ghlib.CheckConclusionCancelled, updates[0].conclusion)
				require.Nil(t, updates[0].output.Text)
			},
		},
		{
			name: "worker times out",
			setup: func(recorder *updateRecorder) (*monitor, *bool) {
				cleared := false
				return &monitor{
					eventsClient: &coreTesting.MockEventsClient{
						GetFn: phases(
							core.WorkerPhaseRunning,
							core.WorkerPhaseTimedOut,
						),
						UpdateSourceStateFn: sourceStateCleared(&cleared),
					},
					getWorkerLogsFn: noLogs,
					checks:          recorder.checks(),
				}, &cleared
			},
			assertions: func(updates []checkRunUpdate, cleared bool, err error) {
				require.NoError(t, err)
				require.True(t, cleared)
				require.Len(t, updates, 2)
				require.Equal(t, ghlib.CheckConclusionTimedOut, updates[1].conclusion)
			},
		},
		{
			name: "worker fails and logs are unavailable",
			setup: func(recorder *updateRecorder) (*monitor, *bool) {
				cleared := false
				return &monitor{
					eventsClient: &coreTesting.MockEventsClient{
						GetFn:               phases(core.WorkerPhaseFailed),
						UpdateSourceStateFn: sourceStateCleared(&cleared),
					},
					getWorkerLogsFn: func(context.Context, core.Event) (string, error) {
						return "", errors.New("something went wrong")
					},
					checks: recorder.checks(),
				}, &cleared
			},
			assertions: func(updates []checkRunUpdate, cleared bool, err error) {
				require.NoError(t, err)
				require.True(t, cleared)
				require.Len(t, updates, 1)
				require.Equal(t, ghlib.CheckConclusionFailure, updates[0].conclusion)
				require.Equal(t, "Test generation failed", updates[0].output.GetTitle())
				require.Nil(t, updates[0].output.Text)
			},
		},
		{
			name: "error updating check run",
			setup: func(*updateRecorder) (*monitor, *bool) {
				return &monitor{
					eventsClient: &coreTesting.MockEventsClient{
						GetFn: phases(core.WorkerPhaseRunning),
					},
					checks: &ghlib.MockChecksService{
						UpdateTestGenerationCheckFn: func(
							context.Context,
							int64,
							string,
							string,
							int64,
							ghlib.CheckStatus,
							ghlib.CheckConclusion,
							*github.CheckRunOutput,
						) error {
							return errors.New("something went wrong")
						},
					},
				}, new(bool)
			},
			assertions: func(_ []checkRunUpdate, _ bool, err error) {
				require.Error(t, err)
				require.Contains(t, err.Error(), "something went wrong")
				require.Contains(t, err.Error(), "error updating check run 42")
			},
		},
		{
			name: "error clearing source state",
			setup: func(recorder *updateRecorder) (*monitor, *bool) {
				return &monitor{
					eventsClient: &coreTesting.MockEventsClient{
						GetFn: phases(core.WorkerPhaseSucceeded),
						UpdateSourceStateFn: func(
							context.Context,
							string,
							core.SourceState,
						) error {
							return errors.New("something went wrong")
						},
					},
					getWorkerLogsFn: noLogs,
					checks:          recorder.checks(),
				}, new(bool)
			},
			assertions: func(updates []checkRunUpdate, _ bool, err error) {
				require.Error(t, err)
				require.Contains(t, err.Error(), "something went wrong")
				require.Contains(t, err.Error(), "error clearing source state")
				require.Len(t, updates, 1)
			},
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			recorder := &updateRecorder{t: t}
			monitor, cleared := testCase.setup(recorder)
			monitor.config = monitorConfig{
				eventFollowUpInterval: 10 * time.Millisecond,
			}
			err := monitor.monitorEventInternal(context.Background(), testEventID)
			testCase.assertions(recorder.updates, *cleared, err)
		})
	}
}

func TestMonitorEventInternalStopsWhenCanceled(t *testing.T) {
	recorder := &updateRecorder{t: t}
	m := &monitor{
		config: monitorConfig{eventFollowUpInterval: 10 * time.Millisecond},
		eventsClient: &coreTesting.MockEventsClient{
			GetFn: phases(core.WorkerPhaseRunning),
		},
		checks: recorder.checks(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, m.monitorEventInternal(ctx, testEventID))
	// A worker that stays running is only reported once
	require.Len(t, recorder.updates, 1)
	require.Equal(t, ghlib.CheckStatusInProgress, recorder.updates[0].status)
}

func TestCheckRunStatusAndConclusionFromWorkerPhase(t *testing.T) {
	testCases := []struct {
		workerPhase        core.WorkerPhase
		expectedStatus     ghlib.CheckStatus
		expectedConclusion ghlib.CheckConclusion
	}{
		{
			workerPhase:    "",
			expectedStatus: ghlib.CheckStatusQueued,
		},
		{
			workerPhase:    core.WorkerPhasePending,
			expectedStatus: ghlib.CheckStatusQueued,
		},
		{
			workerPhase:    core.WorkerPhaseStarting,
			expectedStatus: ghlib.CheckStatusQueued,
		},
		{
			workerPhase:    core.WorkerPhaseRunning,
			expectedStatus: ghlib.CheckStatusInProgress,
		},
		{
			workerPhase:        core.WorkerPhaseSucceeded,
			expectedStatus:     ghlib.CheckStatusCompleted,
			expectedConclusion: ghlib.CheckConclusionSuccess,
		},
		{
			workerPhase:        core.WorkerPhaseFailed,
			expectedStatus:     ghlib.CheckStatusCompleted,
			expectedConclusion: ghlib.CheckConclusionFailure,
		},
		{
			workerPhase:        core.WorkerPhaseUnknown,
			expectedStatus:     ghlib.CheckStatusCompleted,
			expectedConclusion: ghlib.CheckConclusionFailure,
		},
		{
			workerPhase:        core.WorkerPhaseTimedOut,
			expectedStatus:     ghlib.CheckStatusCompleted,
			expectedConclusion: ghlib.CheckConclusionTimedOut,
		},
		{
			workerPhase:        core.WorkerPhaseAborted,
			expectedStatus:     ghlib.CheckStatusCompleted,
			expectedConclusion: ghlib.CheckConclusionCancelled,
		},
		{
			workerPhase:        core.WorkerPhaseCanceled,
			expectedStatus:     ghlib.CheckStatusCompleted,
			expectedConclusion: ghlib.CheckConclusionCancelled,
		},
	}
	for _, testCase := range testCases {
		t.Run(string(testCase.workerPhase), func(t *testing.T) {
			status, conclusion :=
				checkRunStatusAndConclusionFromWorkerPhase(testCase.workerPhase)
			require.Equal(t, testCase.expectedStatus, status)
			require.Equal(t, testCase.expectedConclusion, conclusion)
		})
	}
}

func TestGetWorkerLogs(t *testing.T) {
	// streamLines returns a StreamFn that sends n one-char lines
	streamLines := func(n int) func(
		context.Context,
		string,
		*core.LogsSelector,
		*core.LogStreamOptions,
	) (<-chan core.LogEntry, <-chan error, error) {
		return func(
			ctx context.Context,
			eventID string,
			selector *core.LogsSelector,
			_ *core.LogStreamOptions,
		) (<-chan core.LogEntry, <-chan error, error) {
			require.Equal(t, testEventID, eventID)
			// The worker's own logs
			require.Empty(t, selector.Job)
			logEntryCh := make(chan core.LogEntry)
			errCh := make(chan error)
			go func() {
				for i := 0; i < n; i++ {
					select {
					case logEntryCh <- core.LogEntry{Message: "l"}:
					case <-ctx.Done():
						return
					}
				}
				close(logEntryCh)
			}()
			return logEntryCh, errCh, nil
		}
	}
	testCases := []struct {
		name       string
		monitor    *monitor
		event      core.Event
		assertions func(logs string, err error)
	}{
		{
			name:    "worker is not terminal",
			monitor: &monitor{},
			event:   testEvent(core.WorkerPhaseRunning),
			assertions: func(logs string, err error) {
				require.NoError(t, err)
				require.Empty(t, logs)
			},
		},
		{
			name:    "event has no worker",
			monitor: &monitor{},
			event:   core.Event{ObjectMeta: meta.ObjectMeta{ID: testEventID}},
			assertions: func(logs string, err error) {
				require.NoError(t, err)
				require.Empty(t, logs)
			},
		},
		{
			name: "error starting log stream",
			monitor: &monitor{
				logsClient: &coreTesting.MockLogsClient{
					StreamFn: func(
						context.Context,
						string,
						*core.LogsSelector,
						*core.LogStreamOptions,
					) (<-chan core.LogEntry, <-chan error, error) {
						return nil, nil, errors.New("something went wrong")
					},
				},
			},
			event: testEvent(core.WorkerPhaseSucceeded),
			assertions: func(_ string, err error) {
				require.Error(t, err)
				require.Contains(t, err.Error(), "something went wrong")
			},
		},
		{
			name: "error streaming logs",
			monitor: &monitor{
				logsClient: &coreTesting.MockLogsClient{
					StreamFn: func(
						context.Context,
						string,
						*core.LogsSelector,
						*core.LogStreamOptions,
					) (<-chan core.LogEntry, <-chan error, error) {
						logEntryCh := make(chan core.LogEntry)
						errCh := make(chan error)
						go func() {
							errCh <- errors.New("something went wrong")
						}()
						return logEntryCh, errCh, nil
					},
				},
			},
			event: testEvent(core.WorkerPhaseFailed),
			assertions: func(_ string, err error) {
				require.Error(t, err)
				require.Contains(t, err.Error(), "something went wrong")
			},
		},
		{
			name: "success streaming logs, with truncation",
			monitor: &monitor{
				logsClient: &coreTesting.MockLogsClient{
					// 32768 one-char lines for 65536 bytes total (one-char msg +
					// one-char newline)
					StreamFn: streamLines(32768),
				},
			},
			event: testEvent(core.WorkerPhaseSucceeded),
			assertions: func(logs string, err error) {
				require.NoError(t, err)
				assert.Equal(t, maxLogBytes, len(logs))
				assert.Contains(t, logs, truncationNotice)
				assert.Equal(t, truncationNotice, logs[:len(truncationNotice)])
			},
		},
		{
			name: "success streaming logs, no truncation",
			monitor: &monitor{
				logsClient: &coreTesting.MockLogsClient{
					StreamFn: streamLines(32767),
				},
			},
			event: testEvent(core.WorkerPhaseSucceeded),
			assertions: func(logs string, err error) {
				require.NoError(t, err)
				assert.NotContains(t, logs, truncationNotice)
				assert.Equal(t, 65534, len(logs))
			},
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			logs, err := testCase.monitor.getWorkerLogs(
				context.Background(),
				testCase.event,
			)
			testCase.assertions(logs, err)
		})
	}
}
