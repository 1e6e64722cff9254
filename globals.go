package collbench

import (
	"math"
	"time"
)

const (
	ClientVersion = "2026-10-18"

	// WorkspaceEnv is exported to post-run collaborators.
	WorkspaceEnv = "COLLBENCH_WORKSPACE"

	DefaultOutputDirectory = "./results"
	DefaultTimeoutSeconds  = 10
	DefaultTrials          = 1
	DefaultSeed            = 42
	DefaultLauncher        = "mpirun"
	DefaultSubmitCommand   = "sbatch --wait"
	DefaultNodes           = 1
	MinProcesses           = 2

	// ClusterWallTimeSlack is added to timeout*trials when no explicit
	// wall time is configured for a cluster job.
	ClusterWallTimeSlack = time.Minute

	// MaxRuntimeSeconds is the largest budget a time.Duration can hold.
	MaxRuntimeSeconds = math.MaxInt64 / int64(time.Second)

	// SummaryFileName is the per-trial summary written into every workspace
	// before the post-run collaborators run.
	SummaryFileName = "collbench-summary.csv"

	DataFileExtension   = ".csv"
	ResultFileExtension = ".csv"
	ScriptFileExtension = ".sh"
)

// FailurePolicy decides what happens after a dispatch exits non-zero.
type FailurePolicy string

const (
	// FailureNextTest stops further trials of the failed test and moves on.
	FailureNextTest FailurePolicy = "next-test"
	// FailureAbort ends the whole run.
	FailureAbort FailurePolicy = "abort"
)

func (p FailurePolicy) Validate() bool {
	return p == FailureNextTest || p == FailureAbort
}

// CollisionPolicy decides what happens when the preferred workspace already
// exists.
type CollisionPolicy string

const (
	CollisionSuffix    CollisionPolicy = "suffix"
	CollisionFail      CollisionPolicy = "fail"
	CollisionOverwrite CollisionPolicy = "overwrite"
)

func (p CollisionPolicy) Validate() bool {
	return p == CollisionSuffix || p == CollisionFail || p == CollisionOverwrite
}

// DeadlineGranularity selects where the global budget is checked.
type DeadlineGranularity string

const (
	DeadlinePerTest  DeadlineGranularity = "test"
	DeadlinePerTrial DeadlineGranularity = "trial"
)

func (g DeadlineGranularity) Validate() bool {
	return g == DeadlinePerTest || g == DeadlinePerTrial
}

// ExecutorKind is the mechanism that starts the multi-process worker.
type ExecutorKind string

const (
	ExecutorDirect  ExecutorKind = "direct"
	ExecutorCluster ExecutorKind = "cluster"
)

func (k ExecutorKind) Validate() bool {
	return k == ExecutorDirect || k == ExecutorCluster
}

var (
	CommunicationModes = []string{"blocking", "non_blocking"}

	CollectiveOperations = []string{
		"bcast",
		"scatter",
		"scatterv",
		"gather",
		"gatherv",
		"allgather",
		"allgatherv",
		"alltoall",
		"alltoallv",
	}
)
