package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/harunnryd/pluma/pkg/errorsx"
	"github.com/harunnryd/pluma/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func greetingDecl() llm.ToolDeclaration {
	return llm.ToolDeclaration{
		Name:        "get_greeting",
		Description: "Greet the user.",
		Parameters:  llm.Object(map[string]llm.Property{"name": llm.String("Who to greet.")}),
	}
}

func okHandler(result string) Handler {
	return func(context.Context, Call) (ActionResponse, error) {
		return ReqLLM(result), nil
	}
}

func TestRegistryRegisterAndResolve(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register("get_greeting", greetingDecl(), SystemCtl, okHandler("hi")))

	entry, err := reg.Resolve("get_greeting")
	require.NoError(t, err)
	assert.Equal(t, SystemCtl, entry.Type)
	assert.Equal(t, "get_greeting", entry.Declaration.Name)

	resp, err := entry.Handler(context.Background(), Call{})
	require.NoError(t, err)
	assert.Equal(t, ReqLLM("hi"), resp)
}

func TestRegistryUnknownTool(t *testing.T) {
	reg := NewRegistry(nil)
	_, err := reg.Resolve("nope")
	var unknown *errorsx.UnknownToolError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "nope", unknown.Name)
	assert.Equal(t, errorsx.ReasonUnknownTool, errorsx.Reason(err))
}

func TestRegistryDuplicateKeepsFirst(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register("get_greeting", greetingDecl(), SystemCtl, okHandler("first")))

	err := reg.Register("get_greeting", greetingDecl(), Wait, okHandler("second"))
	var dup *errorsx.DuplicateToolError
	require.True(t, errors.As(err, &dup))

	entry, err := reg.Resolve("get_greeting")
	require.NoError(t, err)
	assert.Equal(t, SystemCtl, entry.Type)
	resp, _ := entry.Handler(context.Background(), Call{})
	assert.Equal(t, "first", resp.Result)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryEmptyDeclarationNameTakesKey(t *testing.T) {
	reg := NewRegistry(nil)
	decl := greetingDecl()
	decl.Name = ""
	require.NoError(t, reg.Register("get_greeting", decl, SystemCtl, okHandler("x")))
	assert.Equal(t, []string{"get_greeting"}, reg.Names())
}

func TestRegistryRejectsBadRegistrations(t *testing.T) {
	cases := []struct {
		name string
		key  string
		decl llm.ToolDeclaration
		typ  ToolType
		h    Handler
	}{
		{name: "name mismatch", key: "other", decl: greetingDecl(), typ: SystemCtl, h: okHandler("x")},
		{name: "bad tool type", key: "get_greeting", decl: greetingDecl(), typ: ToolType(9), h: okHandler("x")},
		{name: "nil handler", key: "get_greeting", decl: greetingDecl(), typ: SystemCtl},
		{name: "required not declared", key: "get_greeting", decl: llm.ToolDeclaration{
			Name:       "get_greeting",
			Parameters: llm.Object(nil, "missing"),
		}, typ: SystemCtl, h: okHandler("x")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg := NewRegistry(nil)
			err := reg.Register(tc.key, tc.decl, tc.typ, tc.h)
			require.Error(t, err)
			assert.Equal(t, errorsx.ReasonValidation, errorsx.Reason(err))
			assert.Zero(t, reg.Len())
		})
	}
}

func TestRegistryDeclarationsAreStable(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register("get_greeting", greetingDecl(), SystemCtl, okHandler("x")))
	require.NoError(t, reg.Register("get_time", llm.ToolDeclaration{Name: "get_time", Description: "Time."}, SystemCtl, okHandler("x")))

	first, err := json.Marshal(reg.Declarations())
	require.NoError(t, err)
	second, err := json.Marshal(reg.Declarations())
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(second))

	decls := reg.Declarations()
	require.Len(t, decls, 2)
	assert.Equal(t, "get_greeting", decls[0].Name)
	assert.Equal(t, "object", decls[1].Parameters.Type)
	assert.NotNil(t, decls[1].Parameters.Properties)
	assert.NotNil(t, decls[1].Parameters.Required)

	// Mutating the returned copy must not leak back.
	decls[0].Parameters.Properties["injected"] = llm.String("x")
	again := reg.Declarations()
	_, leaked := again[0].Parameters.Properties["injected"]
	assert.False(t, leaked)
}

func TestRegistryEnabledFilters(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register("get_greeting", greetingDecl(), SystemCtl, okHandler("x")))
	require.NoError(t, reg.Register("get_time", llm.ToolDeclaration{Name: "get_time"}, SystemCtl, okHandler("x")))

	decls := reg.Enabled([]string{"get_time", "not_registered"})
	require.Len(t, decls, 1)
	assert.Equal(t, "get_time", decls[0].Name)
	assert.Len(t, reg.Enabled(nil), 2)
	assert.True(t, reg.Has("get_time"))
}
