package archconv

import (
	"context"
	"fmt"
	"testing"

	"github.com/archconv/archconv/internal/engine"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numberedMembers(n int) []member {
	members := make([]member, n)
	for i := range members {
		members[i] = member{name: fmt.Sprintf("%02d.txt", i), content: fmt.Sprintf("content of %d", i)}
	}
	return members
}

func TestEngine_Start(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, afero.WriteFile(e.fs, "/in.zip", zipBytes(t, numberedMembers(3)...), 0o644))

	var seen []int
	op := e.Start(t.Context(), Request{
		Source:      "/in.zip",
		Destination: "/out.tar.gz",
		Progress: func(p engine.Progress) {
			seen = append(seen, p.Processed)
		},
	})

	result := op.Wait()
	require.NoError(t, result.Err)
	assert.Equal(t, 3, result.Copied)
	assert.Equal(t, []int{1, 2, 3}, seen, "caller progress is still invoked")

	status := op.Status()
	assert.Equal(t, StateSucceeded, status.State)
	assert.InDelta(t, 1.0, status.Ratio, 1e-9)
	assert.Equal(t, 3, status.Processed)

	got, ok := e.Operation(op.ID)
	require.True(t, ok)
	assert.Same(t, op, got)

	e.Forget(op.ID)
	_, ok = e.Operation(op.ID)
	assert.False(t, ok)
}

func TestEngine_Start_TarProgressRatio(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, afero.WriteFile(e.fs, "/in.tar.gz", tarGzBytes(t,
		member{name: "a.bin", content: randomContent(300)},
		member{name: "b.bin", content: randomContent(100)},
	), 0o644))

	var ratios []float64
	op := e.Start(t.Context(), Request{
		Source:      "/in.tar.gz",
		Destination: "/out.zip",
		Progress: func(p engine.Progress) {
			ratios = append(ratios, p.Ratio)
		},
	})

	result := op.Wait()
	require.NoError(t, result.Err)
	require.Len(t, ratios, 2)
	assert.InDelta(t, 0.75, ratios[0], 1e-9)
	assert.InDelta(t, 1.0, ratios[1], 1e-9)
}

func TestEngine_Cancel(t *testing.T) {
	e := newTestEngine(t)
	members := numberedMembers(6)
	require.NoError(t, afero.WriteFile(e.fs, "/in.zip", zipBytes(t, members...), 0o644))

	const k = 2
	reached := make(chan struct{})
	release := make(chan struct{})
	op := e.Start(t.Context(), Request{
		Source:      "/in.zip",
		Destination: "/out.zip",
		Progress: func(p engine.Progress) {
			if p.Processed == k {
				close(reached)
				<-release
			}
		},
	})

	<-reached
	assert.Equal(t, StateProcessing, op.Status().State)
	require.NoError(t, e.Cancel(op.ID))
	close(release)

	result := op.Wait()
	require.ErrorIs(t, result.Err, engine.ErrCancelled)
	assert.Equal(t, engine.StatusCancelled, result.Status)
	assert.Equal(t, k, result.Copied)
	assert.True(t, result.Finalized)
	assert.Equal(t, StateCancelled, op.Status().State)

	// The destination is a valid archive holding exactly the first k entries.
	assert.Equal(t, members[:k], readMembers(t, e.fs, "/out.zip", engine.FormatZip))
}

func TestEngine_CancelParentContext(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, afero.WriteFile(e.fs, "/in.zip", zipBytes(t, numberedMembers(4)...), 0o644))

	ctx, cancel := context.WithCancel(t.Context())
	op := e.Start(ctx, Request{
		Source:      "/in.zip",
		Destination: "/out.tar",
		Progress: func(p engine.Progress) {
			if p.Processed == 1 {
				cancel()
			}
		},
	})

	result := op.Wait()
	assert.Equal(t, engine.StatusCancelled, result.Status)
	assert.Equal(t, 1, result.Copied)
	assert.Len(t, readMembers(t, e.fs, "/out.tar", engine.FormatTar), 1)
}

func TestEngine_StartFailure(t *testing.T) {
	e := newTestEngine(t)

	op := e.Start(t.Context(), Request{Source: "/missing.zip", Destination: "/out.zip"})

	<-op.Done()
	status := op.Status()
	assert.Equal(t, StateFailed, status.State)
	require.Error(t, status.Err)
	assert.True(t, status.State.Done())
}

func TestEngine_CancelUnknown(t *testing.T) {
	e := newTestEngine(t)
	require.Error(t, e.Cancel("op-42"))
}
