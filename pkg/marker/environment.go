package marker

import (
	"fmt"
	"maps"
	"runtime"
	"strings"

	"github.com/matzehuels/wheelhouse/pkg/pep440"
)

// Marker variable names.
const (
	VarPythonVersion                = "python_version"
	VarPythonFullVersion            = "python_full_version"
	VarOSName                       = "os_name"
	VarSysPlatform                  = "sys_platform"
	VarPlatformRelease              = "platform_release"
	VarPlatformSystem               = "platform_system"
	VarPlatformVersion              = "platform_version"
	VarPlatformMachine              = "platform_machine"
	VarPlatformPythonImplementation = "platform_python_implementation"
	VarImplementationName           = "implementation_name"
	VarImplementationVersion        = "implementation_version"
	VarExtra                        = "extra"
)

// Variables lists every known marker variable.
var Variables = []string{
	VarPythonVersion,
	VarPythonFullVersion,
	VarOSName,
	VarSysPlatform,
	VarPlatformRelease,
	VarPlatformSystem,
	VarPlatformVersion,
	VarPlatformMachine,
	VarPlatformPythonImplementation,
	VarImplementationName,
	VarImplementationVersion,
	VarExtra,
}

// Legacy dotted spellings still found in old metadata.
var aliases = map[string]string{
	"os.name":                        VarOSName,
	"sys.platform":                   VarSysPlatform,
	"platform.version":               VarPlatformVersion,
	"platform.machine":               VarPlatformMachine,
	"platform.python_implementation": VarPlatformPythonImplementation,
	"python_implementation":          VarPlatformPythonImplementation,
}

func canonicalVariable(name string) string {
	if c, ok := aliases[name]; ok {
		return c
	}
	return name
}

// Environment maps marker variables to their values for one target.
type Environment map[string]string

// With returns a copy of env with key set to value.
func (env Environment) With(key, value string) Environment {
	out := make(Environment, len(env)+1)
	maps.Copy(out, env)
	out[key] = value
	return out
}

// DefaultEnvironment describes the running platform with the given Python
// version ("3.12" or "3.12.1") and a CPython interpreter. Use it when no
// interpreter can be queried. An empty version leaves the version variables
// unset, so comparisons against them are false.
func DefaultEnvironment(pythonVersion string) Environment {
	env := Environment{
		VarImplementationName:           "cpython",
		VarPlatformPythonImplementation: "CPython",
		VarPlatformMachine:              machine(runtime.GOARCH, runtime.GOOS),
	}
	if v, err := pep440.Parse(pythonVersion); err == nil {
		full := pythonVersion
		if len(v.Release) < 3 {
			full = fmt.Sprintf("%d.%d.%d", v.Major(), v.Minor(), v.Micro())
		}
		env[VarPythonVersion] = fmt.Sprintf("%d.%d", v.Major(), v.Minor())
		env[VarPythonFullVersion] = full
		env[VarImplementationVersion] = full
	}
	switch runtime.GOOS {
	case "windows":
		env[VarOSName] = "nt"
		env[VarSysPlatform] = "win32"
		env[VarPlatformSystem] = "Windows"
	case "darwin":
		env[VarOSName] = "posix"
		env[VarSysPlatform] = "darwin"
		env[VarPlatformSystem] = "Darwin"
	default:
		env[VarOSName] = "posix"
		env[VarSysPlatform] = runtime.GOOS
		env[VarPlatformSystem] = strings.ToUpper(runtime.GOOS[:1]) + runtime.GOOS[1:]
	}
	return env
}

func machine(arch, goos string) string {
	switch arch {
	case "amd64":
		if goos == "windows" {
			return "AMD64"
		}
		return "x86_64"
	case "arm64":
		if goos == "linux" {
			return "aarch64"
		}
		return "arm64"
	case "386":
		return "i686"
	}
	return arch
}
