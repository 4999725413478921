package restore

import (
	"context"
	"errors"
	"fmt"
	"net"

	"snaprestore.io/snaprestore-cli/internal/cluster"
)

// Kind classifies why a restore run failed.
type Kind string

const (
	KindRepository         Kind = "repository_error"
	KindIndexNotFound      Kind = "index_not_found_in_snapshot"
	KindNothingToRestore   Kind = "nothing_to_restore"
	KindRestoreRequest     Kind = "restore_request_failure"
	KindRecoveryQuery      Kind = "recovery_query_failure"
	KindObservationStopped Kind = "observation_stopped"
	KindInvalidRequest     Kind = "invalid_request"
)

// Sentinels for errors.Is. Every *Failure matches the sentinel of its kind.
var (
	ErrRepository              = errors.New("repository error")
	ErrIndexNotFoundInSnapshot = errors.New("index not found in snapshot")
	ErrNothingToRestore        = errors.New("nothing to restore")
	ErrRestoreRequest          = errors.New("restore request failed")
	ErrRecoveryQuery           = errors.New("recovery query failed")
	ErrObservationStopped      = errors.New("observation stopped")
	ErrInvalidRequest          = errors.New("invalid restore request")
)

var sentinels = map[Kind]error{
	KindRepository:         ErrRepository,
	KindIndexNotFound:      ErrIndexNotFoundInSnapshot,
	KindNothingToRestore:   ErrNothingToRestore,
	KindRestoreRequest:     ErrRestoreRequest,
	KindRecoveryQuery:      ErrRecoveryQuery,
	KindObservationStopped: ErrObservationStopped,
	KindInvalidRequest:     ErrInvalidRequest,
}

// Failure is the terminal error of a restore run.
type Failure struct {
	Kind Kind
	// Subject is the repository or index the failure is about.
	Subject string
	Err     error
}

func (f *Failure) Error() string {
	switch f.Kind {
	case KindRepository:
		return fmt.Sprintf("repository %q could not be verified: %v", f.Subject, f.Err)
	case KindIndexNotFound:
		return fmt.Sprintf("No index named %q found", f.Subject)
	case KindNothingToRestore:
		if f.Err != nil {
			return fmt.Sprintf("Nothing to restore: %v", f.Err)
		}
		return "Nothing to restore"
	case KindRestoreRequest:
		return fmt.Sprintf("restore request for %q failed: %v", f.Subject, f.Err)
	case KindRecoveryQuery:
		return fmt.Sprintf("recovery status query for %q failed: %v", f.Subject, f.Err)
	case KindObservationStopped:
		return fmt.Sprintf("stopped observing restore of %q, the restore continues on the cluster: %v", f.Subject, f.Err)
	case KindInvalidRequest:
		return fmt.Sprintf("invalid restore request: %v", f.Err)
	}
	if f.Err != nil {
		return f.Err.Error()
	}
	return string(f.Kind)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func (f *Failure) Is(target error) bool {
	return sentinels[f.Kind] == target
}

// KindOf returns the kind of a run error, or "" if err is not a *Failure.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

func repositoryFailure(repository string, err error) *Failure {
	return &Failure{Kind: KindRepository, Subject: repository, Err: err}
}

func restoreRequestFailure(index string, err error) *Failure {
	return &Failure{Kind: KindRestoreRequest, Subject: index, Err: err}
}

func recoveryQueryFailure(index string, err error) *Failure {
	return &Failure{Kind: KindRecoveryQuery, Subject: index, Err: err}
}

func observationStopped(index string, err error) *Failure {
	return &Failure{Kind: KindObservationStopped, Subject: index, Err: err}
}

// classifyRejection explains why the cluster did not accept a restore. The
// request names exactly one index, so the snapshot's index list in the
// answer is empty when that index is not in the snapshot.
func classifyRejection(index string, resp *cluster.RestoreResponse) *Failure {
	if len(resp.SnapshotIndices()) == 0 {
		return &Failure{Kind: KindIndexNotFound, Subject: index}
	}
	return &Failure{Kind: KindNothingToRestore, Subject: index}
}

// queryOutcome is how a failed recovery status query is handled.
type queryOutcome int

const (
	// queryAbsent means the index is not in the report yet. Not an error.
	queryAbsent queryOutcome = iota
	// queryTransient failures may be retried.
	queryTransient
	// queryTerminal failures end the run.
	queryTerminal
)

// classifyQueryError sorts a recovery query error into absent, transient or terminal.
func classifyQueryError(err error) queryOutcome {
	if cluster.IsIndexNotFound(err) {
		return queryAbsent
	}
	if errors.Is(err, cluster.ErrMalformedResponse) {
		return queryTerminal
	}

	var re *cluster.ResponseError
	if errors.As(err, &re) {
		if re.Temporary() {
			return queryTransient
		}
		return queryTerminal
	}

	// Transport errors, including per-request timeouts. Cancellation of the
	// run itself is checked by the caller before classifying.
	var ne net.Error
	if errors.As(err, &ne) {
		return queryTransient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return queryTransient
	}
	return queryTerminal
}
