package backend

import "runtime"

// DylibName is the file name the backend library gets on goos.
func DylibName(goos string) string {
	const name = "rustc_codegen_spirv"
	switch goos {
	case "windows":
		return name + ".dll"
	case "darwin", "ios":
		return "lib" + name + ".dylib"
	default:
		return "lib" + name + ".so"
	}
}

func hostDylibName() string {
	return DylibName(runtime.GOOS)
}
