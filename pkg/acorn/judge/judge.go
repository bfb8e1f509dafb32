// Package judge implements the pluggable conflict resolution strategies
// a Tree consults when two envelopes for the same id collide (spec
// §4.5 Conflict Judge).
package judge

import "github.com/acorndb/acorndb/pkg/acorn/envelope"

// Winner identifies which side of a conflict should be kept.
type Winner int

const (
	WinnerLocal Winner = iota
	WinnerIncoming
)

// Verdict is the outcome of resolving a conflict between a tree's local
// envelope and an incoming one for the same id.
type Verdict struct {
	Winner Winner
	Reason string
}

// ConflictJudge decides which of two colliding envelopes wins. local may
// be nil when no prior envelope exists for the id, in which case the
// incoming envelope always wins.
type ConflictJudge[T any] interface {
	Resolve(local, incoming *envelope.Envelope[T]) Verdict
}

// TimestampJudge resolves in favor of the most recently written
// envelope (last-writer-wins by wall clock), ties broken by larger
// version, then lexicographically larger changeId.
type TimestampJudge[T any] struct{}

func (TimestampJudge[T]) Resolve(local, incoming *envelope.Envelope[T]) Verdict {
	if local == nil {
		return Verdict{Winner: WinnerIncoming, Reason: "no local envelope"}
	}
	if incoming.Timestamp.After(local.Timestamp) {
		return Verdict{Winner: WinnerIncoming, Reason: "incoming timestamp is newer"}
	}
	if local.Timestamp.After(incoming.Timestamp) {
		return Verdict{Winner: WinnerLocal, Reason: "local timestamp is newer"}
	}
	if incoming.Version != local.Version {
		return versionTiebreak(local, incoming)
	}
	return changeIDTiebreak(local, incoming)
}

// VersionJudge resolves in favor of the higher version counter, falling
// back to timestamp then changeId on a tie.
type VersionJudge[T any] struct{}

func (VersionJudge[T]) Resolve(local, incoming *envelope.Envelope[T]) Verdict {
	if local == nil {
		return Verdict{Winner: WinnerIncoming, Reason: "no local envelope"}
	}
	if incoming.Version != local.Version {
		return versionTiebreak(local, incoming)
	}
	if !incoming.Timestamp.Equal(local.Timestamp) {
		return TimestampJudge[T]{}.Resolve(local, incoming)
	}
	return changeIDTiebreak(local, incoming)
}

func versionTiebreak[T any](local, incoming *envelope.Envelope[T]) Verdict {
	if incoming.Version > local.Version {
		return Verdict{Winner: WinnerIncoming, Reason: "incoming version is higher"}
	}
	return Verdict{Winner: WinnerLocal, Reason: "local version is higher"}
}

func changeIDTiebreak[T any](local, incoming *envelope.Envelope[T]) Verdict {
	if incoming.ChangeID > local.ChangeID {
		return Verdict{Winner: WinnerIncoming, Reason: "incoming changeId is lexicographically larger"}
	}
	return Verdict{Winner: WinnerLocal, Reason: "local changeId is lexicographically larger or equal"}
}

// LocalWinsJudge always keeps the local envelope once one exists.
type LocalWinsJudge[T any] struct{}

func (LocalWinsJudge[T]) Resolve(local, incoming *envelope.Envelope[T]) Verdict {
	if local == nil {
		return Verdict{Winner: WinnerIncoming, Reason: "no local envelope"}
	}
	return Verdict{Winner: WinnerLocal, Reason: "local-wins policy"}
}

// RemoteWinsJudge always accepts the incoming envelope.
type RemoteWinsJudge[T any] struct{}

func (RemoteWinsJudge[T]) Resolve(local, incoming *envelope.Envelope[T]) Verdict {
	return Verdict{Winner: WinnerIncoming, Reason: "remote-wins policy"}
}

// CustomFunc adapts a plain function to the ConflictJudge interface.
type CustomFunc[T any] func(local, incoming *envelope.Envelope[T]) Verdict

func (f CustomFunc[T]) Resolve(local, incoming *envelope.Envelope[T]) Verdict {
	return f(local, incoming)
}
