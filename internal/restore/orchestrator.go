package restore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"snaprestore.io/snaprestore-cli/internal/cluster"
)

const (
	// StartPollInterval is the wait while the cluster has not begun the restore.
	StartPollInterval = 3 * time.Second
	// RecoveryPollInterval is the wait between progress polls.
	RecoveryPollInterval = 10 * time.Second
)

// Cluster is the part of the cluster API a restore needs.
type Cluster interface {
	VerifyRepository(ctx context.Context, repository string) error
	Restore(ctx context.Context, repository, snapshot, index string, opts cluster.RestoreOptions) (*cluster.RestoreResponse, error)
	Recovery(ctx context.Context, index string) (cluster.RecoveryResponse, error)
}

// RepositoryCheck is an extra reachability check of a repository's storage,
// run before the cluster verifies the repository.
type RepositoryCheck interface {
	Check(ctx context.Context) error
}

// ProgressReporter renders restore progress.
type ProgressReporter interface {
	Update(total, current int64)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Transition records a state change of a run.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// Result describes a finished run.
type Result struct {
	Request     Request
	State       State
	Progress    Progress
	Polls       int
	Transitions []Transition
	StartedAt   time.Time
	FinishedAt  time.Time
	// Err is the *Failure when State is StateFailed.
	Err error
}

// Duration returns how long the run took.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Orchestrator runs index restores: it verifies the repository, asks the
// cluster to restore the index without waiting, then polls recovery status
// until every shard restored from the snapshot is done.
// An Orchestrator holds no per-run state and may run several restores.
type Orchestrator struct {
	cluster         Cluster
	repoCheck       RepositoryCheck
	progress        ProgressReporter
	out             io.Writer
	logger          zerolog.Logger
	sleep           SleepFunc
	now             func() time.Time
	maxQueryRetries int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRepositoryCheck adds a storage check before repository verification.
func WithRepositoryCheck(c RepositoryCheck) Option {
	return func(o *Orchestrator) { o.repoCheck = c }
}

// WithProgress sets the progress reporter.
func WithProgress(p ProgressReporter) Option {
	return func(o *Orchestrator) { o.progress = p }
}

// WithOutput sets where operator notices are written.
func WithOutput(w io.Writer) Option {
	return func(o *Orchestrator) { o.out = w }
}

// WithLogger sets the orchestrator logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l.With().Str("component", "restore_orchestrator").Logger()
	}
}

// WithSleep replaces the wait between polls.
func WithSleep(s SleepFunc) Option {
	return func(o *Orchestrator) { o.sleep = s }
}

// WithClock replaces the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithMaxQueryRetries bounds consecutive transient recovery query failures.
// Zero fails on the first one.
func WithMaxQueryRetries(n int) Option {
	return func(o *Orchestrator) {
		if n < 0 {
			n = 0
		}
		o.maxQueryRetries = n
	}
}

type noProgress struct{}

func (noProgress) Update(total, current int64) {}

// NewOrchestrator creates a restore orchestrator.
func NewOrchestrator(c Cluster, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cluster:  c,
		progress: noProgress{},
		out:      io.Discard,
		logger:   zerolog.Nop(),
		sleep:    Sleep,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run restores req.Index and blocks until the restore completes or fails.
// Cancelling ctx stops observation only; the cluster keeps restoring.
// The returned Result is never nil; the error is a *Failure.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	r := &run{
		o:   o,
		req: req,
		result: &Result{
			Request:   req,
			State:     StateIdle,
			StartedAt: o.now(),
		},
		logger: o.logger.With().
			Str("cluster", req.Cluster).
			Str("repository", req.Repository).
			Str("snapshot", req.Snapshot).
			Str("index", req.Index).
			Logger(),
	}

	err := r.execute(ctx)
	if err != nil {
		r.transition(StateFailed)
		r.result.Err = err
		r.logger.Error().Err(err).Str("kind", string(KindOf(err))).Msg("Restore failed")
	} else {
		r.logger.Info().Int("polls", r.result.Polls).Msg("Restore completed")
	}
	r.result.FinishedAt = o.now()
	return r.result, err
}

// run is the state of a single restore. It is confined to one goroutine.
type run struct {
	o      *Orchestrator
	req    Request
	result *Result
	logger zerolog.Logger

	// last is the most recent progress reported, kept to detect regressions.
	last     Progress
	reported bool
}

func (r *run) execute(ctx context.Context) error {
	if err := r.req.Validate(); err != nil {
		return &Failure{Kind: KindInvalidRequest, Subject: r.req.Index, Err: err}
	}
	if err := r.verifyRepository(ctx); err != nil {
		return err
	}
	if err := r.triggerRestore(ctx); err != nil {
		return err
	}
	return r.pollRecoveryStatus(ctx)
}

func (r *run) transition(to State) {
	from := r.result.State
	if !from.CanTransition(to) {
		panic(fmt.Sprintf("restore: invalid state transition %s -> %s", from, to))
	}
	r.result.State = to
	if from == to {
		return
	}
	r.result.Transitions = append(r.result.Transitions, Transition{From: from, To: to, At: r.o.now()})
	r.logger.Debug().Str("from", from.String()).Str("to", to.String()).Msg("State changed")
}

func (r *run) verifyRepository(ctx context.Context) error {
	r.transition(StateVerifyingRepository)

	if r.o.repoCheck != nil {
		if err := r.o.repoCheck.Check(ctx); err != nil {
			return repositoryFailure(r.req.Repository, err)
		}
	}
	if err := r.o.cluster.VerifyRepository(ctx, r.req.Repository); err != nil {
		return repositoryFailure(r.req.Repository, err)
	}

	r.logger.Info().Msg("Repository verified")
	return nil
}

func (r *run) triggerRestore(ctx context.Context) error {
	r.transition(StateTriggeringRestore)

	// Aliases stay out of the restore: the live cluster may already point
	// them at other indices.
	resp, err := r.o.cluster.Restore(ctx, r.req.Repository, r.req.Snapshot, r.req.Index, cluster.RestoreOptions{
		WaitForCompletion: false,
		IncludeAliases:    false,
	})
	if err != nil {
		return restoreRequestFailure(r.req.Index, err)
	}
	if !resp.Accepted {
		return classifyRejection(r.req.Index, resp)
	}

	r.transition(StateAwaitingStart)
	r.logger.Info().Msg("Restore accepted")
	return nil
}

func (r *run) pollRecoveryStatus(ctx context.Context) error {
	failures := 0

	for {
		if err := ctx.Err(); err != nil {
			return observationStopped(r.req.Index, err)
		}

		r.result.Polls++
		resp, err := r.o.cluster.Recovery(ctx, r.req.Index)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return observationStopped(r.req.Index, ctxErr)
			}

			switch classifyQueryError(err) {
			case queryAbsent:
				resp = nil
			case queryTransient:
				failures++
				if failures > r.o.maxQueryRetries {
					return recoveryQueryFailure(r.req.Index, err)
				}
				r.logger.Warn().Err(err).
					Int("attempt", failures).
					Int("max_retries", r.o.maxQueryRetries).
					Msg("Recovery status query failed, retrying")
				if err := r.wait(ctx, RecoveryPollInterval); err != nil {
					return err
				}
				continue
			default:
				return recoveryQueryFailure(r.req.Index, err)
			}
		}
		failures = 0

		// Once recovering, a missing entry does not move the run back.
		entry, ok := resp[r.req.Index]
		if !ok {
			if r.result.State == StateAwaitingStart {
				fmt.Fprintf(r.o.out, "Waiting for restore of %q to start\n", r.req.Snapshot)
			} else {
				r.logger.Debug().Msg("Index missing from recovery report while recovering")
			}
			if err := r.wait(ctx, StartPollInterval); err != nil {
				return err
			}
			continue
		}
		r.transition(StateRecovering)

		matching := MatchingShards(ParseShards(entry.Shards), r.req.Snapshot)
		r.report(Aggregate(matching))

		if AllDone(matching) {
			if len(matching) == 0 {
				r.logger.Warn().Int("shards", len(entry.Shards)).Msg("No shards are recovering from the snapshot")
			}
			r.transition(StateCompleted)
			return nil
		}

		if err := r.wait(ctx, RecoveryPollInterval); err != nil {
			return err
		}
	}
}

// report emits progress for one poll. Nothing is emitted while the total is
// unknown, and the recovered count never goes backwards for the same total.
func (r *run) report(p Progress) {
	if p.FilesTotal <= 0 || p.FilesRecovered > p.FilesTotal {
		return
	}
	if r.reported && p.FilesTotal == r.last.FilesTotal && p.FilesRecovered < r.last.FilesRecovered {
		r.logger.Debug().
			Int64("recovered", p.FilesRecovered).
			Int64("previous", r.last.FilesRecovered).
			Msg("Recovered file count went backwards, keeping previous value")
		p.FilesRecovered = r.last.FilesRecovered
	}

	r.last = p
	r.reported = true
	r.result.Progress = p
	r.o.progress.Update(p.FilesTotal, p.FilesRecovered)
}

func (r *run) wait(ctx context.Context, d time.Duration) error {
	if err := r.o.sleep(ctx, d); err != nil {
		return observationStopped(r.req.Index, err)
	}
	return nil
}
