package checkpoint

// Phase names one step of the checkpoint coordinator's fixed sequence. The
// names mirror phase constants long present, but unwired, in the epoch core
// this design descends from; the coordinator is what finally drives them.
type Phase int32

const (
	PhaseRest Phase = iota
	PhasePrepIndexCheckpoint
	PhaseIndexCheckpoint
	PhasePrepare
	PhaseInProgress
	PhaseWaitPending
	PhaseWaitFlush
	PhasePersistenceCallback
)

func (p Phase) String() string {
	switch p {
	case PhaseRest:
		return "REST"
	case PhasePrepIndexCheckpoint:
		return "PREP_INDEX_CHECKPOINT"
	case PhaseIndexCheckpoint:
		return "INDEX_CHECKPOINT"
	case PhasePrepare:
		return "PREPARE"
	case PhaseInProgress:
		return "IN_PROGRESS"
	case PhaseWaitPending:
		return "WAIT_PENDING"
	case PhaseWaitFlush:
		return "WAIT_FLUSH"
	case PhasePersistenceCallback:
		return "PERSISTENCE_CALLBACK"
	default:
		return "UNKNOWN"
	}
}

// phaseSequence is the order Checkpoint drives the coordinator through,
// starting from PhaseRest.
var phaseSequence = []Phase{
	PhasePrepIndexCheckpoint,
	PhaseIndexCheckpoint,
	PhasePrepare,
	PhaseInProgress,
	PhaseWaitPending,
	PhaseWaitFlush,
	PhasePersistenceCallback,
	PhaseRest,
}

// Marker is the marker-facility index the coordinator and its sessions
// cooperate on. Only one checkpoint can be in flight per Manager at a time
// under this design, so a single fixed index suffices.
const Marker = 0
