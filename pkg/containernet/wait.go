package containernet

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/dauaaa/containernet/pkg/cancel"
)

// pollInterval is how long a wait_with_timeout supervision pass sleeps
// between round-robin sweeps over the pending container names.
const pollInterval = 256 * time.Millisecond

// terminateSettleDelay is slept before terminate_all on a failure, giving
// sibling containers a moment to write any "ProbablyNotRootCauseError"
// context to their logs before they're force-stopped.
const terminateSettleDelay = 300 * time.Millisecond

// WaitWithTimeoutAll waits on every Active container. See WaitWithTimeout
// for the duration=0 and terminateOnFailure semantics.
func (e *Engine) WaitWithTimeoutAll(ctx context.Context, terminateOnFailure bool, duration time.Duration) error {
	return e.WaitWithTimeout(ctx, e.ActiveNames(), terminateOnFailure, duration)
}

// WaitWithTimeout supervises the named Active containers until every one
// exits or the shared duration budget expires, whichever comes first.
// Supervision proceeds in round-robin passes: each pass polls every
// pending name once (non-blocking), then sleeps pollInterval before the
// next pass — so N names share one duration budget rather than each
// getting its own. Once the budget has elapsed, one extra "grace round"
// pass runs with no sleep before it, and only then does the wait time out;
// so duration=0 is one pass plus that immediate grace round: a container
// that already exited is reported normally, one still running yields a
// Timeout error rather than blocking, avoiding the race a naive
// context.WithTimeout(ctx, 0) would have between ctx's immediate expiry
// and the process having already finished.
//
// Each pass also checks the process-wide cancellation latch
// (pkg/cancel.Issued); if set, the whole engine is torn down with
// TerminateAll (every container, then the network) and a Cancelled error
// returns immediately. If any container exits unsuccessfully and
// terminateOnFailure is set, the engine is likewise torn down with
// TerminateAll (after a short settle delay) before an aggregated error,
// built from ErrorCompilation, returns — so a failing container's
// siblings don't keep running unsupervised.
func (e *Engine) WaitWithTimeout(ctx context.Context, names []string, terminateOnFailure bool, duration time.Duration) error {
	for _, name := range names {
		cs := e.containerByName(name)
		if cs == nil {
			return newErr(Validation, fmt.Sprintf("container %s not found", name), nil)
		}
		phase, _, _, _ := cs.snapshot()
		if phase != Active {
			return newErr(Validation, fmt.Sprintf("container %s is not active", name), nil)
		}
	}

	pending := append([]string{}, names...)
	start := time.Now()
	skipFail := true
	i := 0

	for {
		if cancel.Issued() {
			_ = e.TerminateAll(context.Background())
			return newErr(Cancelled, "wait_with_timeout terminating because of cancellation", nil)
		}
		if len(pending) == 0 {
			return nil
		}
		if i >= len(pending) {
			i = 0
			if time.Since(start) > duration {
				if skipFail {
					skipFail = false
				} else {
					if terminateOnFailure {
						time.Sleep(terminateSettleDelay)
						_ = e.TerminateContainers(context.Background(), names)
					}
					return newErr(Timeout, fmt.Sprintf("timeout waiting for container names %v to complete", pending), nil)
				}
			} else {
				select {
				case <-time.After(pollInterval):
				case <-ctx.Done():
					return newErr(Cancelled, "wait_with_timeout", ctx.Err())
				}
			}
		}

		name := pending[i]
		cs := e.containerByName(name)
		_, _, handle, _ := cs.snapshot()

		res, done := handle.TryWait()
		if !done {
			i++
			continue
		}

		cs.mu.Lock()
		cs.run = RunState{Phase: PostActive, Result: res}
		cs.mu.Unlock()
		cs.closeLogs()

		if !res.Successful() && terminateOnFailure {
			time.Sleep(terminateSettleDelay)
			_ = e.TerminateAll(context.Background())
			if err := e.ErrorCompilation(); err != nil {
				return err
			}
			return newErr(ExternalCommand, fmt.Sprintf("container %s exited %d", name, res.ExitCode), nil)
		}

		pending = append(pending[:i], pending[i+1:]...)
	}
}

// WaitGetIPAddr polls `docker inspect` for name's address on the engine's
// network, retrying up to numRetries times with delay between attempts,
// since a freshly started container may not have an address assigned yet.
func (e *Engine) WaitGetIPAddr(ctx context.Context, name string, numRetries int, delay time.Duration) (string, error) {
	cs := e.containerByName(name)
	if cs == nil {
		return "", newErr(Validation, fmt.Sprintf("container %s not found", name), nil)
	}

	var lastErr error
	for i := 0; i <= numRetries; i++ {
		_, id, _, _ := cs.snapshot()
		if id == "" {
			lastErr = newErr(Validation, fmt.Sprintf("container %s has no id yet", name), nil)
		} else if ip, err := e.cli.InspectIPAddr(ctx, id, e.NetworkName); err == nil {
			return ip, nil
		} else {
			lastErr = err
		}

		if i < numRetries {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", newErr(Cancelled, fmt.Sprintf("container %s: wait for ip address", name), ctx.Err())
			}
		}
	}
	return "", newErr(Timeout, fmt.Sprintf("container %s: no ip address after %d retries", name, numRetries), lastErr)
}

var (
	errStackMarker = "Error { stack: ["
	panicMarker    = regexp.MustCompile(`thread .* panicked at`)
	notRootCause   = "ProbablyNotRootCauseError"
)

// findLastErrorMarker returns the substring of output starting at the last
// line that looks like the start of an error report (either an aggregated
// error stack or a panic message), unless that tail also contains the
// "not root cause" marker, in which case the error is considered already
// explained elsewhere and is not reported.
func findLastErrorMarker(output []byte) (string, bool) {
	lines := strings.Split(string(output), "\n")
	last := -1
	for i, line := range lines {
		if strings.Contains(line, errStackMarker) || panicMarker.MatchString(line) {
			last = i
		}
	}
	if last == -1 {
		return "", false
	}
	tail := strings.Join(lines[last:], "\n")
	if strings.Contains(tail, notRootCause) {
		return "", false
	}
	return tail, true
}

// ErrorCompilation scans every PostActive container's captured stdout for
// an error report and aggregates what it finds, giving a caller one place
// to look after a failed run instead of grepping each container's logs by
// hand.
func (e *Engine) ErrorCompilation() error {
	e.mu.Lock()
	order := append([]string{}, e.order...)
	e.mu.Unlock()

	var merr *multierror.Error
	for _, name := range order {
		cs := e.containerByName(name)
		phase, _, _, res := cs.snapshot()
		if phase != PostActive {
			continue
		}
		if snippet, ok := findLastErrorMarker(res.Stdout); ok {
			merr = multierror.Append(merr, newErr(Aggregate, fmt.Sprintf("container %s reported an error", name), fmt.Errorf("%s", snippet)))
		} else if !res.Successful() {
			merr = multierror.Append(merr, newErr(Aggregate, fmt.Sprintf("container %s unsuccessful but no stack", name), nil))
		}
	}
	return merr.ErrorOrNil()
}
