package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"

	"cargogpu/internal/command"
	"cargogpu/internal/command/commandtest"
	"cargogpu/internal/metadata"
	"cargogpu/internal/paths"
	"cargogpu/internal/source"
	"cargogpu/internal/spirvbuild"
	"cargogpu/internal/toolchain"
)

const (
	testChannel  = "nightly-2024-04-24"
	testRepo     = "https://github.com/Rust-GPU/rust-gpu"
	testRevision = "86fc48032c4cd4afb74f1d81ae859711d20386a1"
)

// dirQuerier answers cargo metadata queries per directory.
type dirQuerier map[string]*metadata.Metadata

func (q dirQuerier) Query(_ context.Context, dir string) (*metadata.Metadata, error) {
	if meta, ok := q[dir]; ok {
		return meta, nil
	}
	return nil, fmt.Errorf("no metadata for %s", dir)
}

func strptr(s string) *string { return &s }

// codegenPackage creates a rustc_codegen_spirv package whose build.rs pins
// testChannel.
func codegenPackage(t *testing.T, dir string) metadata.Package {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	build := "fn main() {}\n\nconst TOOLCHAIN: &str = r#\"[toolchain]\nchannel = \"" + testChannel + "\"\ncomponents = [\"rust-src\"]\"#;\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "build.rs"), []byte(build), 0o644))
	return metadata.Package{Name: toolchain.BackendPackage, Version: "0.9.0", ManifestPath: filepath.Join(dir, "Cargo.toml")}
}

type haltCounter struct {
	toolchain  int
	components int
	deny       error
}

func (h *haltCounter) halt() toolchain.Halt {
	return toolchain.Halt{
		OnToolchainInstall: func(string) error {
			h.toolchain++
			return h.deny
		},
		OnComponentsInstall: func(string) error {
			h.components++
			return h.deny
		},
	}
}

func missingToolchain(fake *commandtest.Fake) {
	fake.On("rustup toolchain list", commandtest.Reply("stable-x86_64-unknown-linux-gnu (default)\n"))
	fake.On("rustup toolchain add", commandtest.Reply(""))
	fake.On("rustup component list", commandtest.Reply("rust-src\nrustc-dev\nllvm-tools\n"))
	fake.On("rustup component add", commandtest.Reply(""))
}

func installedToolchain(fake *commandtest.Fake) {
	fake.On("rustup toolchain list", commandtest.Reply(testChannel+"-x86_64-unknown-linux-gnu\n"))
	fake.On("rustup component list", commandtest.Reply("rust-src (installed)\nrustc-dev (installed)\nllvm-tools-x86_64-unknown-linux-gnu (installed)\n"))
}

// buildsDylib simulates cargo leaving the backend in target/release.
func buildsDylib(call commandtest.Call, _ command.RunOptions) (command.RunResult, error) {
	out := filepath.Join(call.Dir, "target", "release")
	if err := os.MkdirAll(out, 0o755); err != nil {
		return command.RunResult{}, err
	}
	return command.RunResult{}, os.WriteFile(filepath.Join(out, hostDylibName()), []byte("dylib"), 0o644)
}

func gitFixture(t *testing.T) (Installer, *commandtest.Fake, string) {
	t.Helper()
	cache := paths.Cache{Root: t.TempDir()}
	shader := t.TempDir()
	src := source.Repository(testRepo, testRevision)

	querier := dirQuerier{
		shader: {Packages: []metadata.Package{{
			Name:         source.StdPackage,
			Version:      "0.9.0",
			Source:       strptr("git+" + testRepo + "?rev=" + testRevision + "#" + testRevision),
			ManifestPath: "/registry/git/checkouts/spirv-std/Cargo.toml",
		}}},
		src.InstallDir(cache): {Packages: []metadata.Package{codegenPackage(t, filepath.Join(t.TempDir(), "rustc_codegen_spirv"))}},
	}

	fake := &commandtest.Fake{}
	inst := Installer{
		ClearTarget: true,
		Cache:       cache,
		Runner:      fake,
		Metadata:    querier,
		Logger:      logr.Discard(),
	}
	return inst, fake, shader
}

func TestInstallGitSourceEndToEnd(t *testing.T) {
	inst, fake, shader := gitFixture(t)
	missingToolchain(fake)
	fake.On("cargo +"+testChannel+" build --release", buildsDylib)

	halt := &haltCounter{}
	got, err := inst.Install(context.Background(), shader, halt.halt())
	require.NoError(t, err)

	require.Equal(t, 1, halt.toolchain)
	require.Equal(t, 1, halt.components)
	require.Len(t, fake.Calls("rustup toolchain add "+testChannel), 1)
	adds := fake.Calls("rustup component add --toolchain " + testChannel)
	require.Len(t, adds, 1)
	require.Equal(t, []string{"component", "add", "--toolchain", testChannel, "rust-src", "rustc-dev", "llvm-tools"}, adds[0].Args)

	installDir := source.Repository(testRepo, testRevision).InstallDir(inst.Cache)
	builds := fake.Calls("cargo ")
	require.Len(t, builds, 1)
	require.Equal(t, []string{"+" + testChannel, "build", "--release"}, builds[0].Args)
	require.Equal(t, installDir, builds[0].Dir)
	require.Equal(t, command.CargoUnset, builds[0].Unset)

	require.Equal(t, filepath.Join(installDir, hostDylibName()), got.DylibPath)
	require.FileExists(t, got.DylibPath)
	require.NoDirExists(t, filepath.Join(installDir, "target"))
	require.Equal(t, testChannel, got.Channel)
	require.Equal(t, filepath.Join(installDir, "target-specs"), got.TargetSpecDir)
	require.FileExists(t, got.TargetSpecPath("spirv-unknown-vulkan1.2"))

	manifest, err := os.ReadFile(filepath.Join(installDir, "Cargo.toml"))
	require.NoError(t, err)
	require.Contains(t, string(manifest), "git = \""+testRepo+"\"\nrev = \""+testRevision+"\"\n")
	require.FileExists(t, filepath.Join(installDir, "src", "lib.rs"))
	require.FileExists(t, filepath.Join(inst.Cache.LocksDir(), "https___github_com_Rust-GPU_rust-gpu+86fc4803.lock"))
}

func TestInstallCacheHitSkipsBuild(t *testing.T) {
	inst, fake, shader := gitFixture(t)
	installedToolchain(fake)
	fake.On("cargo +"+testChannel+" build --release", buildsDylib)

	_, err := inst.Install(context.Background(), shader, toolchain.NoopHalt())
	require.NoError(t, err)
	require.Len(t, fake.Calls("cargo "), 1)

	halt := &haltCounter{}
	got, err := inst.Install(context.Background(), shader, halt.halt())
	require.NoError(t, err)
	require.Len(t, fake.Calls("cargo "), 1, "cached backend must not be rebuilt")
	require.Zero(t, halt.toolchain)
	require.FileExists(t, got.DylibPath)

	inst.RebuildCodegen = true
	_, err = inst.Install(context.Background(), shader, toolchain.NoopHalt())
	require.NoError(t, err)
	require.Len(t, fake.Calls("cargo "), 2)
}

func TestInstallRemovesStaleHelperLockfile(t *testing.T) {
	inst, fake, shader := gitFixture(t)
	installedToolchain(fake)
	installDir := source.Repository(testRepo, testRevision).InstallDir(inst.Cache)
	require.NoError(t, os.MkdirAll(installDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(installDir, "Cargo.lock"), []byte("version = 4\n"), 0o644))

	fake.On("cargo +"+testChannel+" build --release", func(call commandtest.Call, opts command.RunOptions) (command.RunResult, error) {
		if paths.IsFile(filepath.Join(call.Dir, "Cargo.lock")) {
			return command.RunResult{}, errors.New("Cargo.lock should have been removed")
		}
		return buildsDylib(call, opts)
	})
	_, err := inst.Install(context.Background(), shader, toolchain.NoopHalt())
	require.NoError(t, err)
}

func TestInstallKeepsTargetWhenNotClearing(t *testing.T) {
	inst, fake, shader := gitFixture(t)
	inst.ClearTarget = false
	installedToolchain(fake)
	fake.On("cargo +"+testChannel+" build --release", buildsDylib)

	got, err := inst.Install(context.Background(), shader, toolchain.NoopHalt())
	require.NoError(t, err)
	require.DirExists(t, filepath.Join(filepath.Dir(got.DylibPath), "target"))
}

func TestInstallDylibNotFound(t *testing.T) {
	inst, fake, shader := gitFixture(t)
	installedToolchain(fake)
	fake.On("cargo +"+testChannel+" build --release", commandtest.Reply(""))

	_, err := inst.Install(context.Background(), shader, toolchain.NoopHalt())
	require.ErrorIs(t, err, ErrDylibNotFound)
}

func TestInstallBuildFailure(t *testing.T) {
	inst, fake, shader := gitFixture(t)
	installedToolchain(fake)
	fake.On("cargo +"+testChannel+" build --release", commandtest.Fail(101, "error[E0463]: can't find crate"))

	_, err := inst.Install(context.Background(), shader, toolchain.NoopHalt())
	var execErr *command.ExecError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, command.ExecFailed, execErr.Kind)
}

func TestInstallDeniedInstallsNothing(t *testing.T) {
	inst, fake, shader := gitFixture(t)
	missingToolchain(fake)
	fake.On("cargo", buildsDylib)

	denied := errors.New("user denied")
	halt := &haltCounter{deny: denied}
	_, err := inst.Install(context.Background(), shader, halt.halt())
	require.ErrorIs(t, err, denied)
	require.Empty(t, fake.Calls("rustup toolchain add"))
	require.Empty(t, fake.Calls("cargo"))
}

func TestInstallLocalPathSource(t *testing.T) {
	cache := paths.Cache{Root: t.TempDir()}
	root := t.TempDir()
	shader := t.TempDir()
	stdManifest := filepath.Join(root, "crates", "spirv-std", "Cargo.toml")
	require.NoError(t, os.MkdirAll(filepath.Dir(stdManifest), 0o755))

	querier := dirQuerier{
		shader: {Packages: []metadata.Package{{Name: source.StdPackage, Version: "0.9.0", ManifestPath: stdManifest}}},
		root:   {Packages: []metadata.Package{codegenPackage(t, filepath.Join(root, "crates", "rustc_codegen_spirv"))}},
	}
	fake := &commandtest.Fake{}
	installedToolchain(fake)
	fake.On("cargo +"+testChannel+" build --release", buildsDylib)

	inst := Installer{ClearTarget: true, Cache: cache, Runner: fake, Metadata: querier, Logger: logr.Discard()}
	got, err := inst.Install(context.Background(), shader, toolchain.NoopHalt())
	require.NoError(t, err)

	builds := fake.Calls("cargo ")
	require.Len(t, builds, 1)
	require.Equal(t, []string{"+" + testChannel, "build", "--release", "-p", "rustc_codegen_spirv", "--lib"}, builds[0].Args)
	require.Equal(t, filepath.Join(root, "target", "release", hostDylibName()), got.DylibPath)
	require.FileExists(t, got.DylibPath, "local builds stay in place")
	require.NoFileExists(t, filepath.Join(root, "Cargo.toml"), "no helper crate for local checkouts")
	require.Equal(t, cache.LegacyTargetSpecsDir(), got.TargetSpecDir)

	// Local checkouts are always rebuilt.
	_, err = inst.Install(context.Background(), shader, toolchain.NoopHalt())
	require.NoError(t, err)
	require.Len(t, fake.Calls("cargo "), 2)
}

func TestInstallMissingBackendPackage(t *testing.T) {
	inst, fake, shader := gitFixture(t)
	installDir := source.Repository(testRepo, testRevision).InstallDir(inst.Cache)
	inst.Metadata.(dirQuerier)[installDir] = &metadata.Metadata{WorkspaceRoot: installDir}
	installedToolchain(fake)

	_, err := inst.Install(context.Background(), shader, toolchain.NoopHalt())
	var notFound *metadata.PackageNotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, toolchain.BackendPackage, notFound.Name)
}

func TestHelperManifest(t *testing.T) {
	header := "[package]\nname = \"rustc_codegen_spirv_dummy\"\nversion = \"0.1.0\"\nedition = \"2021\"\n\n" +
		"[dependencies.spirv-builder]\npackage = \"rustc_codegen_spirv\"\n"

	require.Equal(t, header+"version = \"0.9.0\"\n", HelperManifest(source.Registry("0.9.0")))
	require.Equal(t, header+"git = \""+testRepo+"\"\nrev = \""+testRevision+"\"\n", HelperManifest(source.Repository(testRepo, testRevision)))
	require.Equal(t, header+"path = \"/src/rust-gpu/crates/spirv-builder\"\nversion = \"0.10.0\"\n", HelperManifest(source.LocalPath("/src/rust-gpu", "0.10.0")))
}

func TestDylibName(t *testing.T) {
	require.Equal(t, "librustc_codegen_spirv.so", DylibName("linux"))
	require.Equal(t, "librustc_codegen_spirv.dylib", DylibName("darwin"))
	require.Equal(t, "rustc_codegen_spirv.dll", DylibName("windows"))
}

func TestConfigure(t *testing.T) {
	b := Backend{DylibPath: "/cache/lib.so", Channel: testChannel, TargetSpecDir: "/cache/target-specs"}
	var opts spirvbuild.Options
	b.Configure(&opts, "spirv-unknown-vulkan1.1")
	require.Equal(t, "/cache/lib.so", opts.BackendPath)
	require.Equal(t, testChannel, opts.Toolchain)
	require.Equal(t, "spirv-unknown-vulkan1.1", opts.Target)
	require.Equal(t, filepath.Join("/cache/target-specs", "spirv-unknown-vulkan1.1.json"), opts.TargetSpec)
}

func TestListAndRemoveCached(t *testing.T) {
	cache := paths.Cache{Root: t.TempDir()}

	list, err := ListCached(cache)
	require.NoError(t, err)
	require.Empty(t, list)

	built := filepath.Join(cache.CodegenDir(), "0_9_0")
	partial := filepath.Join(cache.CodegenDir(), "https___github_com_Rust-GPU_rust-gpu+86fc4803")
	require.NoError(t, os.MkdirAll(built, 0o755))
	require.NoError(t, os.MkdirAll(partial, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(built, hostDylibName()), []byte("dylib"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(partial, "Cargo.toml"), []byte("[package]\n"), 0o644))

	list, err = ListCached(cache)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "0_9_0", list[0].Name)
	require.True(t, list[0].Installed())
	require.Equal(t, int64(5), list[0].Size)
	require.False(t, list[1].Installed())

	require.NoError(t, RemoveCached(context.Background(), cache, "0_9_0"))
	require.NoDirExists(t, built)
	require.FileExists(t, filepath.Join(cache.LocksDir(), "0_9_0.lock"))

	require.ErrorIs(t, RemoveCached(context.Background(), cache, "0_9_0"), ErrNotCached)
	require.ErrorIs(t, RemoveCached(context.Background(), cache, "../codegen"), ErrNotCached)
}
