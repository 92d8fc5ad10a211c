package release

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/artpar/fnrelease/internal/core/domain"
	"github.com/artpar/fnrelease/internal/shell/ledger"
)

// =============================================================================
// Fake Control Plane
// =============================================================================

type aliasCall struct {
	Name        string
	VersionID   string
	Description string
}

// fakeControlPlane replays scripted states and errors. The last state is
// repeated once the script runs out.
type fakeControlPlane struct {
	mu sync.Mutex

	states      []domain.FunctionState
	stateErrs   []error
	updateErr   error
	publishErrs []error
	aliasErr    error

	stateCalls   int
	publishCalls int
	nextVersion  int
	calls        []string
	updates      []domain.ArtifactLocation
	descriptions []string
	aliases      []aliasCall
}

func newFakeControlPlane(states ...domain.FunctionState) *fakeControlPlane {
	if len(states) == 0 {
		states = []domain.FunctionState{readyState()}
	}
	return &fakeControlPlane{states: states}
}

func readyState() domain.FunctionState {
	return domain.FunctionState{State: domain.StateActive, LastUpdateStatus: domain.UpdateSuccessful}
}

func pendingState() domain.FunctionState {
	return domain.FunctionState{State: domain.StateActive, LastUpdateStatus: domain.UpdateInProgress}
}

func failedState(reason string) domain.FunctionState {
	return domain.FunctionState{State: domain.StateActive, LastUpdateStatus: domain.UpdateFailed, Reason: reason}
}

func (f *fakeControlPlane) GetState(ctx context.Context, function string) (domain.FunctionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.stateCalls
	f.stateCalls++
	f.calls = append(f.calls, "GetState")

	if i < len(f.stateErrs) && f.stateErrs[i] != nil {
		return domain.FunctionState{}, f.stateErrs[i]
	}
	if i >= len(f.states) {
		i = len(f.states) - 1
	}
	return f.states[i], nil
}

func (f *fakeControlPlane) UpdateCode(ctx context.Context, function string, location domain.ArtifactLocation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "UpdateCode")
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, location)
	return nil
}

func (f *fakeControlPlane) PublishVersion(ctx context.Context, function, description string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.publishCalls
	f.publishCalls++
	f.calls = append(f.calls, "PublishVersion")

	if i < len(f.publishErrs) && f.publishErrs[i] != nil {
		return "", f.publishErrs[i]
	}
	f.nextVersion++
	f.descriptions = append(f.descriptions, description)
	return strconv.Itoa(f.nextVersion), nil
}

func (f *fakeControlPlane) CreateOrUpdateAlias(ctx context.Context, function, aliasName, versionID, description string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "CreateOrUpdateAlias")
	if f.aliasErr != nil {
		return f.aliasErr
	}
	f.aliases = append(f.aliases, aliasCall{Name: aliasName, VersionID: versionID, Description: description})
	return nil
}

func (f *fakeControlPlane) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

// =============================================================================
// Fake Clock
// =============================================================================

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration

	// cancel, when set, fires once cancelAfter sleeps have happened.
	cancelAfter int
	cancel      context.CancelFunc
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	n := len(c.sleeps)
	c.mu.Unlock()

	if c.cancel != nil && n >= c.cancelAfter {
		c.cancel()
		return ctx.Err()
	}
	return nil
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// =============================================================================
// Fake Ledger
// =============================================================================

type failingLedger struct {
	ledger.NopStore
}

func (failingLedger) RecordRun(context.Context, ledger.Run) error {
	return fmt.Errorf("disk full")
}

// =============================================================================
// Helpers
// =============================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
