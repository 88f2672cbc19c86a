package driver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/greenhat/miden-ir/codegen"
	"github.com/greenhat/miden-ir/hir"
	"github.com/greenhat/miden-ir/structure"
)

// testModule returns a module with several good functions and one whose
// control flow cannot be structured.
func testModule(t *testing.T) *hir.Module {
	t.Helper()
	mod := hir.NewModule("m")
	i32, _ := mod.Types().Int(32)

	for _, name := range []string{"alpha", "beta", "gamma", "delta"} {
		fn, err := mod.NewFunction(name, hir.Signature{Params: []hir.Type{i32, i32}, Results: []hir.Type{i32}})
		require.NoError(t, err)
		b := hir.NewBuilder(fn)
		entry, params, _ := b.CreateEntryBlock()
		sum, _ := b.Binary(entry, hir.OpAdd, params[0], params[1])
		diff, _ := b.Binary(entry, hir.OpSub, params[0], params[1])
		prod, _ := b.Binary(entry, hir.OpMul, sum, diff)
		require.NoError(t, b.Ret(entry, prod))
	}

	// Two-entry cycle: structurally irreducible.
	bad, err := mod.NewFunction("tangled", hir.Signature{Params: []hir.Type{i32}, Results: []hir.Type{i32}})
	require.NoError(t, err)
	b := hir.NewBuilder(bad)
	entry, params, _ := b.CreateEntryBlock()
	x := b.CreateBlock()
	y := b.CreateBlock()
	zero, _ := b.Const(entry, i32, 0)
	cond, _ := b.Compare(entry, hir.OpGt, params[0], zero)
	require.NoError(t, b.CondBr(entry, cond, x, nil, y, nil))
	require.NoError(t, b.Br(x, y))
	require.NoError(t, b.Br(y, x))

	return mod
}

func TestCompileModuleIsolatesFailures(t *testing.T) {
	mod := testModule(t)
	res, err := CompileModule(context.Background(), mod, DefaultConfig())
	require.NoError(t, err)
	require.False(t, res.Ok())

	require.Len(t, res.Errors, 1)
	require.Equal(t, "tangled", res.Errors[0].Func)
	var ice *structure.IrreducibleCfgError
	require.ErrorAs(t, res.Errors[0], &ice)

	require.Len(t, res.Module.Funcs, 4)
	// Deterministic name order regardless of scheduling.
	names := make([]string, 0, 4)
	for _, fn := range res.Module.Funcs {
		names = append(names, fn.Name)
		require.NoError(t, fn.CheckBalanced())
	}
	require.Equal(t, []string{"alpha", "beta", "delta", "gamma"}, names)
}

func TestCompileModuleSerialMatchesParallel(t *testing.T) {
	cfgSerial := DefaultConfig()
	cfgSerial.Parallelism = 1
	serial, err := CompileModule(context.Background(), testModule(t), cfgSerial)
	require.NoError(t, err)

	parallel, err := CompileModule(context.Background(), testModule(t), DefaultConfig())
	require.NoError(t, err)

	require.Equal(t, serial.Module.String(), parallel.Module.String())
}

func TestCompileModuleSlotLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Passes = nil // keep the spilling intermediate alive
	cfg.MaxLocals = 2
	res, err := CompileModule(context.Background(), testModule(t), cfg)
	require.NoError(t, err)

	// Every arithmetic function needs three slots; all of them fail.
	require.Len(t, res.Errors, 5)
	var se *codegen.SlotExhaustionError
	require.ErrorAs(t, res.Errors[0], &se)
}

func TestCompileModuleUnknownPass(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Passes = []string{"dce", "vectorize"}
	_, err := CompileModule(context.Background(), testModule(t), cfg)
	require.Error(t, err)
}

func TestCompileModuleCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := CompileModule(ctx, testModule(t), DefaultConfig())
	require.ErrorIs(t, err, context.Canceled)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "midenc.toml")
	require.NoError(t, os.WriteFile(path, []byte(
		"passes = [\"dce\"]\nmax_locals = 64\nparallelism = 2\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, []string{"dce"}, cfg.Passes)
	require.Equal(t, 64, cfg.MaxLocals)
	require.Equal(t, 2, cfg.Parallelism)
	require.Equal(t, 8, cfg.FixpointIters, "defaults survive a partial file")

	require.NoError(t, os.WriteFile(path, []byte("maxlocals = 1\n"), 0o644))
	_, err = LoadConfig(path)
	require.Error(t, err, "unknown keys are rejected")
}
