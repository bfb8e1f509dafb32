package judge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/acorndb/acorndb/pkg/acorn/envelope"
)

func env(ts time.Time, version int, changeID string) *envelope.Envelope[string] {
	return &envelope.Envelope[string]{Timestamp: ts, Version: version, ChangeID: changeID}
}

func TestTimestampJudgeNilLocalAlwaysIncomingWins(t *testing.T) {
	j := TimestampJudge[string]{}
	v := j.Resolve(nil, env(time.Now(), 1, "a"))
	assert.Equal(t, WinnerIncoming, v.Winner)
}

func TestTimestampJudgeNewerWins(t *testing.T) {
	j := TimestampJudge[string]{}
	base := time.Now()

	local := env(base, 1, "a")
	incoming := env(base.Add(time.Second), 1, "b")

	assert.Equal(t, WinnerIncoming, j.Resolve(local, incoming).Winner)
	assert.Equal(t, WinnerLocal, j.Resolve(incoming, local).Winner)
}

func TestTimestampJudgeTieBreaksOnVersion(t *testing.T) {
	j := TimestampJudge[string]{}
	ts := time.Now()

	local := env(ts, 1, "a")
	incoming := env(ts, 2, "b")

	assert.Equal(t, WinnerIncoming, j.Resolve(local, incoming).Winner)
}

func TestTimestampJudgeTieBreaksOnChangeID(t *testing.T) {
	j := TimestampJudge[string]{}
	ts := time.Now()

	local := env(ts, 1, "aaa")
	incoming := env(ts, 1, "zzz")

	assert.Equal(t, WinnerIncoming, j.Resolve(local, incoming).Winner)

	local2 := env(ts, 1, "zzz")
	incoming2 := env(ts, 1, "aaa")
	assert.Equal(t, WinnerLocal, j.Resolve(local2, incoming2).Winner)
}

func TestVersionJudgeNilLocalAlwaysIncomingWins(t *testing.T) {
	j := VersionJudge[string]{}
	v := j.Resolve(nil, env(time.Now(), 1, "a"))
	assert.Equal(t, WinnerIncoming, v.Winner)
}

func TestVersionJudgeHigherVersionWins(t *testing.T) {
	j := VersionJudge[string]{}
	ts := time.Now()

	local := env(ts, 1, "a")
	incoming := env(ts, 2, "b")

	assert.Equal(t, WinnerIncoming, j.Resolve(local, incoming).Winner)
}

func TestVersionJudgeTieBreaksOnTimestamp(t *testing.T) {
	j := VersionJudge[string]{}
	base := time.Now()

	local := env(base, 1, "a")
	incoming := env(base.Add(time.Second), 1, "b")

	assert.Equal(t, WinnerIncoming, j.Resolve(local, incoming).Winner)
}

func TestVersionJudgeTieBreaksOnChangeID(t *testing.T) {
	j := VersionJudge[string]{}
	ts := time.Now()

	local := env(ts, 1, "aaa")
	incoming := env(ts, 1, "zzz")

	assert.Equal(t, WinnerIncoming, j.Resolve(local, incoming).Winner)
}

func TestLocalWinsJudge(t *testing.T) {
	j := LocalWinsJudge[string]{}
	assert.Equal(t, WinnerIncoming, j.Resolve(nil, env(time.Now(), 1, "a")).Winner)
	assert.Equal(t, WinnerLocal, j.Resolve(env(time.Now(), 1, "a"), env(time.Now(), 2, "b")).Winner)
}

func TestRemoteWinsJudge(t *testing.T) {
	j := RemoteWinsJudge[string]{}
	assert.Equal(t, WinnerIncoming, j.Resolve(env(time.Now(), 5, "a"), env(time.Now(), 1, "b")).Winner)
}

func TestCustomFunc(t *testing.T) {
	called := false
	j := CustomFunc[string](func(local, incoming *envelope.Envelope[string]) Verdict {
		called = true
		return Verdict{Winner: WinnerLocal, Reason: "custom"}
	})

	v := j.Resolve(env(time.Now(), 1, "a"), env(time.Now(), 2, "b"))
	assert.True(t, called)
	assert.Equal(t, WinnerLocal, v.Winner)
	assert.Equal(t, "custom", v.Reason)
}
