package cluster

// RestoreOptions controls how a snapshot restore is requested.
type RestoreOptions struct {
	WaitForCompletion bool
	IncludeAliases    bool
}

// RestoreResponse is the cluster's answer to a restore request.
// Asynchronous restores report only Accepted; a rejected request may
// describe what the snapshot holds.
type RestoreResponse struct {
	Accepted bool          `json:"accepted"`
	Snapshot *SnapshotInfo `json:"snapshot,omitempty"`
}

// SnapshotInfo describes the snapshot a restore was requested from.
type SnapshotInfo struct {
	Snapshot string   `json:"snapshot"`
	Indices  []string `json:"indices"`
}

// SnapshotIndices returns the indices listed in the response, if any.
func (r *RestoreResponse) SnapshotIndices() []string {
	if r == nil || r.Snapshot == nil {
		return nil
	}
	return r.Snapshot.Indices
}

// RecoveryResponse maps index names to their shard recoveries.
// An index that has not started recovering has no key.
type RecoveryResponse map[string]IndexRecovery

type IndexRecovery struct {
	Shards []ShardRecovery `json:"shards"`
}

// ShardRecovery is one shard's entry in the _recovery report.
type ShardRecovery struct {
	ID      int            `json:"id"`
	Type    string         `json:"type"`
	Stage   string         `json:"stage"`
	Primary bool           `json:"primary"`
	Source  RecoverySource `json:"source"`
	Index   RecoveryIndex  `json:"index"`
}

// RecoverySource identifies where a shard is recovering from. Snapshot
// recoveries fill Repository and Snapshot; peer recoveries fill Name/Host.
type RecoverySource struct {
	Repository string `json:"repository,omitempty"`
	Snapshot   string `json:"snapshot,omitempty"`
	Index      string `json:"index,omitempty"`
	Version    string `json:"version,omitempty"`
	Name       string `json:"name,omitempty"`
	Host       string `json:"host,omitempty"`
}

type RecoveryIndex struct {
	Files RecoveryFiles `json:"files"`
}

type RecoveryFiles struct {
	Total     int64 `json:"total"`
	Reused    int64 `json:"reused"`
	Recovered int64 `json:"recovered"`
}
