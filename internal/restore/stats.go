package restore

import (
	"strings"

	"snaprestore.io/snaprestore-cli/internal/cluster"
)

// SourceType says where a shard is recovering its data from.
type SourceType string

const (
	SourceSnapshot SourceType = "SNAPSHOT"
	SourceOther    SourceType = "OTHER"
)

// Stage is the recovery stage of a shard.
type Stage string

const (
	StageInit     Stage = "INIT"
	StageIndex    Stage = "INDEX"
	StageTranslog Stage = "TRANSLOG"
	StageFinalize Stage = "FINALIZE"
	StageDone     Stage = "DONE"
	StageOther    Stage = "OTHER"
)

// ShardStat is one poll's view of a shard's recovery.
type ShardStat struct {
	SourceType SourceType
	// SourceSnapshot is empty when the shard is not recovering from a snapshot.
	SourceSnapshot string
	FilesTotal     int64
	FilesRecovered int64
	Stage          Stage
}

// Progress is the file count summed over the shards of one restore.
type Progress struct {
	FilesTotal     int64 `json:"files_total"`
	FilesRecovered int64 `json:"files_recovered"`
}

// Percent returns the recovered share of files, or 0 when nothing is known yet.
func (p Progress) Percent() float64 {
	if p.FilesTotal <= 0 {
		return 0
	}
	return float64(p.FilesRecovered) / float64(p.FilesTotal) * 100
}

// ParseShard converts a recovery report entry.
func ParseShard(s cluster.ShardRecovery) ShardStat {
	stat := ShardStat{
		SourceType:     parseSourceType(s.Type),
		FilesTotal:     s.Index.Files.Total,
		FilesRecovered: s.Index.Files.Recovered,
		Stage:          parseStage(s.Stage),
	}
	if stat.SourceType == SourceSnapshot {
		stat.SourceSnapshot = s.Source.Snapshot
	}
	return stat
}

// ParseShards converts every entry of an index recovery report.
func ParseShards(shards []cluster.ShardRecovery) []ShardStat {
	stats := make([]ShardStat, 0, len(shards))
	for _, s := range shards {
		stats = append(stats, ParseShard(s))
	}
	return stats
}

func parseSourceType(t string) SourceType {
	if strings.EqualFold(t, string(SourceSnapshot)) {
		return SourceSnapshot
	}
	return SourceOther
}

func parseStage(s string) Stage {
	switch Stage(strings.ToUpper(s)) {
	case StageInit:
		return StageInit
	case StageIndex:
		return StageIndex
	case StageTranslog:
		return StageTranslog
	case StageFinalize:
		return StageFinalize
	case StageDone:
		return StageDone
	default:
		return StageOther
	}
}

// Matches reports whether the shard is being restored from the given snapshot.
// Peer recoveries and restores from other snapshots running at the same time
// must not count towards this restore.
func (s ShardStat) Matches(snapshot string) bool {
	return s.SourceType == SourceSnapshot && s.SourceSnapshot == snapshot
}

// MatchingShards keeps the shards restoring from snapshot.
func MatchingShards(stats []ShardStat, snapshot string) []ShardStat {
	var matching []ShardStat
	for _, s := range stats {
		if s.Matches(snapshot) {
			matching = append(matching, s)
		}
	}
	return matching
}

// Aggregate sums file counts over shards.
func Aggregate(stats []ShardStat) Progress {
	var p Progress
	for _, s := range stats {
		p.FilesTotal += s.FilesTotal
		p.FilesRecovered += s.FilesRecovered
	}
	return p
}

// AllDone reports whether every shard has finished recovering.
func AllDone(stats []ShardStat) bool {
	for _, s := range stats {
		if s.Stage != StageDone {
			return false
		}
	}
	return true
}
