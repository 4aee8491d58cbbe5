package gpubuild

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/gogpu/naga/spirv"
	"github.com/stretchr/testify/require"

	"cargogpu/internal/backend"
	"cargogpu/internal/config"
	"cargogpu/internal/linkage"
	"cargogpu/internal/spirvbuild"
	"cargogpu/internal/toolchain"
)

type fakeInstaller struct {
	backend backend.Backend
	err     error
	crate   string
}

func (f *fakeInstaller) Install(_ context.Context, shaderCrate string, _ toolchain.Halt) (backend.Backend, error) {
	f.crate = shaderCrate
	return f.backend, f.err
}

type fakeVersions map[string]string

func (f fakeVersions) RustcVersion(_ context.Context, channel string) (string, error) {
	return f[channel], nil
}

type fakeBuilder struct {
	mu    sync.Mutex
	calls []spirvbuild.Options
	build func(opts spirvbuild.Options) (spirvbuild.CompileResult, error)
	built chan struct{}
}

func (f *fakeBuilder) Build(_ context.Context, opts spirvbuild.Options) (spirvbuild.CompileResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, opts)
	f.mu.Unlock()
	res, err := f.build(opts)
	if f.built != nil {
		f.built <- struct{}{}
	}
	return res, err
}

// writeModule writes a SPIR-V module declaring the given fragment entry points.
func writeModule(t *testing.T, path string, entries ...string) {
	t.Helper()
	words := []uint32{spirv.MagicNumber, 0x00010300, 0, 10, 0, 2<<16 | uint32(spirv.OpCapability), 1}
	for i, name := range entries {
		b := append([]byte(name), 0)
		for len(b)%4 != 0 {
			b = append(b, 0)
		}
		words = append(words, uint32(3+len(b)/4)<<16|uint32(spirv.OpEntryPoint), 4, uint32(i+1))
		for k := 0; k < len(b); k += 4 {
			words = append(words, binary.LittleEndian.Uint32(b[k:]))
		}
	}
	data := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(data[i*4:], w)
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func newCrate(t *testing.T) string {
	t.Helper()
	crate := filepath.Join(t.TempDir(), "shaders")
	require.NoError(t, os.MkdirAll(filepath.Join(crate, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(crate, "Cargo.toml"), []byte("[package]\nname = \"shaders\"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(crate, "src", "lib.rs"), nil, 0o644))
	crate, err := filepath.EvalSymlinks(crate)
	require.NoError(t, err)
	return crate
}

func testConfig(crate, output string) config.Config {
	cfg := config.Default()
	cfg.Install.ShaderCrate = crate
	cfg.Build.OutputDir = output
	return cfg
}

func testDeps(builder *fakeBuilder, out io.Writer) Deps {
	return Deps{
		Installer: &fakeInstaller{backend: backend.Backend{
			DylibPath:     "/cache/librustc_codegen_spirv.so",
			Channel:       "nightly-2024-04-24",
			TargetSpecDir: "/cache/target-specs",
		}},
		Versions: fakeVersions{"": "v1.85.0", "nightly-2024-04-24": "v1.85.0"},
		Builder:  builder,
		Logger:   logr.Discard(),
		Out:      out,
	}
}

func readManifest(t *testing.T, path string) []linkage.Linkage {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var ls []linkage.Linkage
	require.NoError(t, json.Unmarshal(data, &ls))
	return ls
}

func TestRunSingleModule(t *testing.T) {
	crate := newCrate(t)
	spv := filepath.Join(t.TempDir(), "shaders.spv")
	writeModule(t, spv, "main_vs", "main_fs")

	builder := &fakeBuilder{build: func(spirvbuild.Options) (spirvbuild.CompileResult, error) {
		return spirvbuild.CompileResult{
			EntryPoints: []string{"main_vs", "main_fs"},
			Module:      spirvbuild.ModuleResult{Single: spv},
		}, nil
	}}
	var out bytes.Buffer
	cfg := testConfig(crate, filepath.Join(crate, "out"))

	require.NoError(t, Run(context.Background(), cfg, testDeps(builder, &out)))

	require.Len(t, builder.calls, 1)
	opts := builder.calls[0]
	require.Equal(t, crate, opts.CrateDir)
	require.Equal(t, "/cache/librustc_codegen_spirv.so", opts.BackendPath)
	require.Equal(t, "nightly-2024-04-24", opts.Toolchain)
	require.Equal(t, config.DefaultTarget, opts.Target)
	require.Equal(t, filepath.Join("/cache/target-specs", config.DefaultTarget+".json"), opts.TargetSpec)
	require.True(t, opts.Release)
	require.Equal(t, spirvbuild.MetadataNone, opts.SpirvMetadata)

	require.Contains(t, out.String(), "Compiling shaders at "+crate+"...")
	require.FileExists(t, filepath.Join(crate, "out", "shaders.spv"))

	got := readManifest(t, filepath.Join(crate, "out", "manifest.json"))
	require.Equal(t, []linkage.Linkage{
		linkage.New("main_fs", "out/shaders.spv"),
		linkage.New("main_vs", "out/shaders.spv"),
	}, got)
}

func TestRunMultiModuleOutsideCrate(t *testing.T) {
	crate := newCrate(t)
	build := t.TempDir()
	writeModule(t, filepath.Join(build, "sky-main_fs.spv"), "sky::main_fs")
	writeModule(t, filepath.Join(build, "sky-main_vs.spv"), "sky::main_vs")

	builder := &fakeBuilder{build: func(spirvbuild.Options) (spirvbuild.CompileResult, error) {
		return spirvbuild.CompileResult{
			EntryPoints: []string{"sky::main_vs", "sky::main_fs"},
			Module: spirvbuild.ModuleResult{Multi: map[string]string{
				"sky::main_vs": filepath.Join(build, "sky-main_vs.spv"),
				"sky::main_fs": filepath.Join(build, "sky-main_fs.spv"),
			}},
		}, nil
	}}
	output := filepath.Join(filepath.Dir(crate), "assets")
	cfg := testConfig(crate, output)
	cfg.Build.Multimodule = true
	cfg.Build.ManifestFile = "shaders.json"

	require.NoError(t, Run(context.Background(), cfg, testDeps(builder, nil)))
	require.True(t, builder.calls[0].Multimodule)

	got := readManifest(t, filepath.Join(output, "shaders.json"))
	require.Equal(t, []linkage.Linkage{
		{SourcePath: "../assets/sky-main_fs.spv", EntryPoint: "sky::main_fs", WGSLEntryPoint: "skymain_fs"},
		{SourcePath: "../assets/sky-main_vs.spv", EntryPoint: "sky::main_vs", WGSLEntryPoint: "skymain_vs"},
	}, got)
}

func TestRunEmptyMultiModule(t *testing.T) {
	crate := newCrate(t)
	builder := &fakeBuilder{build: func(spirvbuild.Options) (spirvbuild.CompileResult, error) {
		return spirvbuild.CompileResult{Module: spirvbuild.ModuleResult{Multi: map[string]string{}}}, nil
	}}
	err := Run(context.Background(), testConfig(crate, filepath.Join(crate, "out")), testDeps(builder, nil))
	require.ErrorIs(t, err, ErrNoModules)
}

func TestRunMissingEntryPoint(t *testing.T) {
	crate := newCrate(t)
	spv := filepath.Join(t.TempDir(), "shaders.spv")
	writeModule(t, spv, "main_vs")

	builder := &fakeBuilder{build: func(spirvbuild.Options) (spirvbuild.CompileResult, error) {
		return spirvbuild.CompileResult{
			EntryPoints: []string{"main_vs", "main_cs"},
			Module:      spirvbuild.ModuleResult{Single: spv},
		}, nil
	}}
	err := Run(context.Background(), testConfig(crate, filepath.Join(crate, "out")), testDeps(builder, nil))
	require.ErrorContains(t, err, "entry point `main_cs` is missing")
	require.NoFileExists(t, filepath.Join(crate, "out", "manifest.json"))
}

func TestRunInstallFailure(t *testing.T) {
	crate := newCrate(t)
	builder := &fakeBuilder{}
	deps := testDeps(builder, nil)
	boom := errors.New("rustup exploded")
	deps.Installer = &fakeInstaller{err: boom}

	err := Run(context.Background(), testConfig(crate, filepath.Join(crate, "out")), deps)
	require.ErrorIs(t, err, boom)
	require.Empty(t, builder.calls)
}

func TestRunMissingShaderCrate(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")
	err := Run(context.Background(), testConfig(missing, t.TempDir()), testDeps(&fakeBuilder{}, nil))
	require.ErrorContains(t, err, "does not exist")
}

func TestRunInvalidSpirvMetadata(t *testing.T) {
	crate := newCrate(t)
	cfg := testConfig(crate, filepath.Join(crate, "out"))
	cfg.Build.SpirvMetadata = "everything"
	err := Run(context.Background(), cfg, testDeps(&fakeBuilder{}, nil))
	require.Error(t, err)
}

const lockV4 = "# This file is automatically @generated by Cargo.\n# It is not intended for manual editing.\nversion = 4\n"

func TestRunRevertsLockfile(t *testing.T) {
	for name, fail := range map[string]bool{"success": false, "failure": true} {
		t.Run(name, func(t *testing.T) {
			crate := newCrate(t)
			lock := filepath.Join(crate, "Cargo.lock")
			require.NoError(t, os.WriteFile(lock, []byte(lockV4), 0o644))
			spv := filepath.Join(t.TempDir(), "shaders.spv")
			writeModule(t, spv, "main_fs")

			var during string
			builder := &fakeBuilder{build: func(spirvbuild.Options) (spirvbuild.CompileResult, error) {
				data, _ := os.ReadFile(lock)
				during = string(data)
				if fail {
					return spirvbuild.CompileResult{}, errors.New("cargo failed")
				}
				return spirvbuild.CompileResult{
					EntryPoints: []string{"main_fs"},
					Module:      spirvbuild.ModuleResult{Single: spv},
				}, nil
			}}
			deps := testDeps(builder, nil)
			deps.Versions = fakeVersions{"": "v1.80.0", "nightly-2024-04-24": "v1.85.0"}
			cfg := testConfig(crate, filepath.Join(crate, "out"))
			cfg.Install.ForceOverwriteLockfilesV4ToV3 = true

			err := Run(context.Background(), cfg, deps)
			if fail {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			require.Contains(t, during, "\nversion = 3\n")

			after, err := os.ReadFile(lock)
			require.NoError(t, err)
			require.Equal(t, lockV4, string(after))
		})
	}
}

func TestRunConflictingLockfile(t *testing.T) {
	crate := newCrate(t)
	require.NoError(t, os.WriteFile(filepath.Join(crate, "Cargo.lock"), []byte(lockV4), 0o644))
	builder := &fakeBuilder{}
	deps := testDeps(builder, nil)
	deps.Versions = fakeVersions{"": "v1.80.0", "nightly-2024-04-24": "v1.85.0"}

	err := Run(context.Background(), testConfig(crate, filepath.Join(crate, "out")), deps)
	require.Error(t, err)
	require.Empty(t, builder.calls)
}

func TestRunWatch(t *testing.T) {
	crate := newCrate(t)
	spv := filepath.Join(t.TempDir(), "shaders.spv")
	writeModule(t, spv, "main_fs")

	builder := &fakeBuilder{
		built: make(chan struct{}, 8),
		build: func(spirvbuild.Options) (spirvbuild.CompileResult, error) {
			return spirvbuild.CompileResult{
				EntryPoints: []string{"main_fs"},
				Module:      spirvbuild.ModuleResult{Single: spv},
			}, nil
		},
	}
	var out bytes.Buffer
	cfg := testConfig(crate, filepath.Join(crate, "out"))
	cfg.Build.Watch = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg, testDeps(builder, &out)) }()

	// The initial build plus the one that starts the watch.
	waitBuilt(t, builder.built)
	waitBuilt(t, builder.built)
	require.NoError(t, os.WriteFile(filepath.Join(crate, "src", "lib.rs"), []byte("// changed\n"), 0o644))
	waitBuilt(t, builder.built)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
	require.Equal(t, 1, strings.Count(out.String(), "Compiling shaders at"))
	require.FileExists(t, filepath.Join(crate, "out", "manifest.json"))
}

func waitBuilt(t *testing.T, built <-chan struct{}) {
	t.Helper()
	select {
	case <-built:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a build")
	}
}
