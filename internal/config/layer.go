package config

import "slices"

// Layer is one partial source of configuration. Nil fields are unset.
type Layer struct {
	Install InstallLayer `yaml:"install" json:"install"`
	Build   BuildLayer   `yaml:"build" json:"build"`
}

type InstallLayer struct {
	ShaderCrate                   *string `yaml:"shader_crate" json:"shader_crate"`
	SpirvBuilderSource            *string `yaml:"spirv_builder_source" json:"spirv_builder_source"`
	SpirvBuilderVersion           *string `yaml:"spirv_builder_version" json:"spirv_builder_version"`
	RebuildCodegen                *bool   `yaml:"rebuild_codegen" json:"rebuild_codegen"`
	AutoInstallRustToolchain      *bool   `yaml:"auto_install_rust_toolchain" json:"auto_install_rust_toolchain"`
	ClearTarget                   *bool   `yaml:"clear_target" json:"clear_target"`
	ForceOverwriteLockfilesV4ToV3 *bool   `yaml:"force_overwrite_lockfiles_v4_to_v3" json:"force_overwrite_lockfiles_v4_to_v3"`
}

type BuildLayer struct {
	Target        *string  `yaml:"target" json:"target"`
	Release       *bool    `yaml:"release" json:"release"`
	OutputDir     *string  `yaml:"output_dir" json:"output_dir"`
	ManifestFile  *string  `yaml:"manifest_file" json:"manifest_file"`
	Multimodule   *bool    `yaml:"multimodule" json:"multimodule"`
	Capabilities  []string `yaml:"capabilities" json:"capabilities"`
	Extensions    []string `yaml:"extensions" json:"extensions"`
	SpirvMetadata *string  `yaml:"spirv_metadata" json:"spirv_metadata"`
	Watch         *bool    `yaml:"watch" json:"watch"`
}

// Apply overlays l onto c. A value only wins when it is set and differs from
// the default, so a lower layer's explicit choice survives a higher layer
// that merely restates the default.
func (c *Config) Apply(l Layer) {
	def := Default()

	setString(&c.Install.ShaderCrate, l.Install.ShaderCrate, def.Install.ShaderCrate)
	setString(&c.Install.SpirvBuilderSource, l.Install.SpirvBuilderSource, def.Install.SpirvBuilderSource)
	setString(&c.Install.SpirvBuilderVersion, l.Install.SpirvBuilderVersion, def.Install.SpirvBuilderVersion)
	setBool(&c.Install.RebuildCodegen, l.Install.RebuildCodegen, def.Install.RebuildCodegen)
	setBool(&c.Install.AutoInstallRustToolchain, l.Install.AutoInstallRustToolchain, def.Install.AutoInstallRustToolchain)
	setBool(&c.Install.ClearTarget, l.Install.ClearTarget, def.Install.ClearTarget)
	setBool(&c.Install.ForceOverwriteLockfilesV4ToV3, l.Install.ForceOverwriteLockfilesV4ToV3, def.Install.ForceOverwriteLockfilesV4ToV3)

	setString(&c.Build.Target, l.Build.Target, def.Build.Target)
	setBool(&c.Build.Release, l.Build.Release, def.Build.Release)
	setString(&c.Build.OutputDir, l.Build.OutputDir, def.Build.OutputDir)
	setString(&c.Build.ManifestFile, l.Build.ManifestFile, def.Build.ManifestFile)
	setBool(&c.Build.Multimodule, l.Build.Multimodule, def.Build.Multimodule)
	setStrings(&c.Build.Capabilities, l.Build.Capabilities, def.Build.Capabilities)
	setStrings(&c.Build.Extensions, l.Build.Extensions, def.Build.Extensions)
	setString(&c.Build.SpirvMetadata, l.Build.SpirvMetadata, def.Build.SpirvMetadata)
	setBool(&c.Build.Watch, l.Build.Watch, def.Build.Watch)
}

func setString(dst *string, v *string, def string) {
	if v != nil && *v != def {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool, def bool) {
	if v != nil && *v != def {
		*dst = *v
	}
}

func setStrings(dst *[]string, v []string, def []string) {
	if v != nil && !slices.Equal(v, def) {
		*dst = slices.Clone(v)
	}
}
