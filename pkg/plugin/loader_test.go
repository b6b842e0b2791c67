package plugin

import (
	"errors"
	"testing"

	"github.com/harunnryd/pluma/pkg/errorsx"
	"github.com/harunnryd/pluma/pkg/llm"
	"github.com/harunnryd/pluma/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toolPlugin(location string, names ...string) Plugin {
	return Plugin{
		Location: location,
		Register: func(r Registrar) error {
			for _, n := range names {
				if err := r.Register(n, llm.ToolDeclaration{Name: n}, SystemCtl, okHandler(n)); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func TestLoaderLoadsAll(t *testing.T) {
	reg := NewRegistry(nil)
	l := NewLoader(reg, LoaderOptions{})
	require.NoError(t, l.LoadAll(toolPlugin("builtin/a", "a1", "a2"), toolPlugin("builtin/b", "b1")))

	assert.Equal(t, []string{"a1", "a2", "b1"}, reg.Names())
	assert.Equal(t, []string{"builtin/a", "builtin/b"}, l.Loaded())
	assert.Empty(t, l.Failures())
}

func TestLoaderIsIdempotent(t *testing.T) {
	reg := NewRegistry(nil)
	l := NewLoader(reg, LoaderOptions{})
	p := toolPlugin("builtin/a", "a1")
	require.NoError(t, l.LoadAll(p))
	require.NoError(t, l.LoadAll(p))
	require.NoError(t, l.LoadAll(p, p))

	assert.Equal(t, 1, reg.Len())
	assert.Empty(t, l.Failures())
}

func TestLoaderSkipsFailingPlugin(t *testing.T) {
	reg := NewRegistry(nil)
	l := NewLoader(reg, LoaderOptions{Policy: SkipAndWarn})
	broken := Plugin{Location: "builtin/broken", Register: func(Registrar) error {
		return errors.New("boom")
	}}
	require.NoError(t, l.LoadAll(toolPlugin("builtin/a", "a1"), broken, toolPlugin("builtin/b", "b1")))

	assert.Equal(t, []string{"a1", "b1"}, reg.Names())
	failures := l.Failures()
	require.Len(t, failures, 1)
	var loadErr *errorsx.LoadError
	require.True(t, errors.As(failures[0], &loadErr))
	assert.Equal(t, "builtin/broken", loadErr.Location)
	assert.Equal(t, errorsx.ReasonPluginLoad, errorsx.Reason(failures[0]))
}

func TestLoaderCommitsPluginAtomically(t *testing.T) {
	reg := NewRegistry(nil)
	l := NewLoader(reg, LoaderOptions{})
	require.NoError(t, l.LoadAll(toolPlugin("builtin/a", "shared")))

	// The second plugin declares one new tool and one clash; neither lands.
	require.NoError(t, l.LoadAll(toolPlugin("builtin/b", "fresh", "shared")))
	assert.Equal(t, []string{"shared"}, reg.Names())
	assert.False(t, reg.Has("fresh"))

	failures := l.Failures()
	require.Len(t, failures, 1)
	var dup *errorsx.DuplicateToolError
	assert.True(t, errors.As(failures[0], &dup))
}

func TestLoaderStagedRegistrationErrorIsSticky(t *testing.T) {
	reg := NewRegistry(nil)
	l := NewLoader(reg, LoaderOptions{})
	ignoring := Plugin{Location: "builtin/ignoring", Register: func(r Registrar) error {
		_ = r.Register("ok", llm.ToolDeclaration{Name: "ok"}, SystemCtl, okHandler("x"))
		_ = r.Register("bad", llm.ToolDeclaration{Name: "bad"}, SystemCtl, nil)
		return nil
	}}
	require.NoError(t, l.LoadAll(ignoring))
	assert.Zero(t, reg.Len())
	require.Len(t, l.Failures(), 1)
}

func TestLoaderRecoversPanics(t *testing.T) {
	reg := NewRegistry(nil)
	l := NewLoader(reg, LoaderOptions{})
	panicky := Plugin{Location: "builtin/panicky", Register: func(Registrar) error {
		panic("bad init")
	}}
	require.NoError(t, l.LoadAll(panicky, toolPlugin("builtin/a", "a1")))
	assert.Equal(t, []string{"a1"}, reg.Names())
	require.Len(t, l.Failures(), 1)
	assert.Contains(t, l.Failures()[0].Error(), "bad init")
}

func TestLoaderFailFast(t *testing.T) {
	reg := NewRegistry(nil)
	l := NewLoader(reg, LoaderOptions{Policy: FailFast})
	broken := Plugin{Location: "builtin/broken"}
	err := l.LoadAll(broken, toolPlugin("builtin/a", "a1"))
	require.Error(t, err)
	assert.Equal(t, errorsx.ReasonPluginLoad, errorsx.Reason(err))
	assert.Zero(t, reg.Len())
}

func TestParseLoadPolicy(t *testing.T) {
	p, err := ParseLoadPolicy("fail_fast")
	require.NoError(t, err)
	assert.Equal(t, FailFast, p)
	p, err = ParseLoadPolicy("")
	require.NoError(t, err)
	assert.Equal(t, SkipAndWarn, p)
	_, err = ParseLoadPolicy("sometimes")
	assert.Error(t, err)
}

func TestLoaderRecordsLoadEvents(t *testing.T) {
	mem := metrics.NewMemoryObserver()
	l := NewLoader(NewRegistry(nil), LoaderOptions{Observer: mem})
	broken := Plugin{Location: "builtin/broken", Register: func(Registrar) error {
		return errors.New("boom")
	}}
	require.NoError(t, l.LoadAll(toolPlugin("builtin/a", "a1"), broken))

	events := mem.Named(metrics.EventPluginLoad)
	require.Len(t, events, 2)
	assert.Equal(t, "builtin/a", events[0].Tags["location"])
	assert.Equal(t, "ok", events[0].Tags["status"])
	assert.Equal(t, "failed", events[1].Tags["status"])
}
