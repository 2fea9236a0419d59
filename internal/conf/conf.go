// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package conf implements configuration parsing and platform
// canonicalization (spec.md §3, §4.1's neighbor C1, and §6's environment
// variables), mirroring the Python original's _conf.py.
package conf

import (
	"io"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/cachedjdk/cjdk/internal/cjdkerr"
	"github.com/cachedjdk/cjdk/internal/metrics"
	"github.com/cachedjdk/cjdk/internal/progressui"
)

// Configuration is the immutable (per invocation) set of parameters that
// every cache/fetch/index/install operation is driven by. See spec.md §3.
type Configuration struct {
	OS          string
	Arch        string
	Vendor      string
	Version     string
	CacheDir    string
	IndexURL    string
	IndexTTL    float64
	Progress    bool
	AllowInsecureForTesting bool

	// ProgressSink and Metrics are not part of the Python Configuration
	// dataclass (which only carries the progress boolean); they are the
	// Go-native resolution of that boolean into concrete collaborators,
	// threaded explicitly instead of relying on module-level globals.
	ProgressSink progressui.Sink
	Metrics      *metrics.Recorder
	Stderr       io.Writer
}

// Kwargs mirrors the Python original's **kwargs surface (ConfigKwargs) as
// an explicit, typed struct — the idiomatic Go replacement for dynamic
// keyword arguments (spec.md §9).
type Kwargs struct {
	Jdk      string
	OS       string
	Arch     string
	Vendor   string
	Version  string
	CacheDir string
	IndexURL string
	IndexTTL *float64
	Progress *bool

	AllowInsecureForTesting bool
	Metrics                 *metrics.Recorder
	Stderr                  io.Writer
}

// Configure builds a Configuration from kwargs, applying every default
// and validation rule described in spec.md §3's invariants and the
// original's configure().
func Configure(k Kwargs) (*Configuration, error) {
	if k.Jdk != "" {
		if k.Vendor != "" {
			return nil, cjdkerr.ConfigError("cannot specify jdk= together with vendor=")
		}
		if k.Version != "" {
			return nil, cjdkerr.ConfigError("cannot specify jdk= together with version=")
		}
		vendor, version, err := ParseVendorVersion(k.Jdk)
		if err != nil {
			return nil, err
		}
		k.Vendor, k.Version = vendor, version
	}

	ttl := defaultIndexTTL()
	if k.IndexTTL != nil {
		ttl = *k.IndexTTL
	} else if env := os.Getenv("CJDK_INDEX_TTL"); env != "" {
		v, err := strconv.ParseFloat(env, 64)
		if err != nil {
			return nil, cjdkerr.ConfigError("invalid value for CJDK_INDEX_TTL: %q (must be a number)", env)
		}
		ttl = v
	}

	cacheDir := k.CacheDir
	var err error
	if cacheDir == "" {
		cacheDir, err = DefaultCacheDir()
		if err != nil {
			return nil, err
		}
	}
	if !filepath.IsAbs(cacheDir) {
		return nil, cjdkerr.ConfigError("cache_dir must be an absolute path (found %q)", cacheDir)
	}

	vendor := k.Vendor
	if vendor == "" {
		vendor = defaultVendor()
	}

	indexURL := k.IndexURL
	if indexURL == "" {
		indexURL = defaultIndexURL()
	}

	progress := true
	if k.Progress != nil {
		progress = *k.Progress
	}
	if v := os.Getenv("CJDK_HIDE_PROGRESS_BARS"); v != "" {
		if _, err := strconv.ParseBool(v); err != nil {
			return nil, cjdkerr.ConfigError("invalid value for CJDK_HIDE_PROGRESS_BARS: %q (must be a boolean)", v)
		}
	}
	if hide, set := hideProgressBarsEnv(); set {
		if hide {
			progress = false
		}
	}

	stderr := k.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	return &Configuration{
		OS:                      CanonicalizeOS(k.OS),
		Arch:                    CanonicalizeArch(k.Arch),
		Vendor:                  vendor,
		Version:                 k.Version,
		CacheDir:                cacheDir,
		IndexURL:                indexURL,
		IndexTTL:                ttl,
		Progress:                progress,
		AllowInsecureForTesting: k.AllowInsecureForTesting,
		ProgressSink:            progressui.Select(progress, stderr),
		Metrics:                 k.Metrics,
		Stderr:                  stderr,
	}, nil
}

// hideProgressBarsEnv reads CJDK_HIDE_PROGRESS_BARS, returning
// (hide, wasSet). A non-boolean value is a ConfigError raised by the
// caller; here we just report whatever strconv.ParseBool can parse,
// mirroring the truthy parsing spec.md §3 asks for. This is a deliberate
// supplement documented in SPEC_FULL.md §3.
func hideProgressBarsEnv() (bool, bool) {
	v, ok := os.LookupEnv("CJDK_HIDE_PROGRESS_BARS")
	if !ok || v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// CheckString mirrors the original's check_str: it rejects a nil/empty
// pointer (meaning the value was not given) only when allowNone is
// false, and validates non-emptiness only when allowEmpty is false. This
// preserves the deliberate asymmetry called out in spec.md §9: callers
// must not "helpfully" accept empty strings where the source rejects
// them.
func CheckString(name string, value *string, allowNone, allowEmpty bool) error {
	if value == nil {
		if allowNone {
			return nil
		}
		return cjdkerr.ConfigError("%s must be a string, got None", name)
	}
	if !allowEmpty && *value == "" {
		return cjdkerr.ConfigError("%s must not be empty", name)
	}
	return nil
}

// ParseVendorVersion disambiguates a "jdk" specifier into (vendor,
// version). As documented in spec.md §9, this does not fully parse the
// specifier; it only disambiguates when one side is given alone.
func ParseVendorVersion(spec string) (vendor, version string, err error) {
	if strings.Contains(spec, ":") {
		parts := strings.Split(spec, ":")
		if len(parts) != 2 {
			return "", "", cjdkerr.ConfigError("cannot parse JDK spec %q", spec)
		}
		return parts[0], parts[1], nil
	}
	if spec == "" {
		return "", "", nil
	}
	if vendorSpecRe.MatchString(spec) {
		return spec, "", nil
	}
	if versionSpecRe.MatchString(spec) {
		return "", spec, nil
	}
	return "", "", cjdkerr.ConfigError("cannot parse JDK spec %q", spec)
}

// FormatVendorVersion is the inverse used by tests exercising the
// round-trip law in spec.md §8: ParseVendorVersion(FormatVendorVersion(v,
// r)) == (v, r) for syntactically valid inputs.
func FormatVendorVersion(vendor, version string) string {
	return vendor + ":" + version
}

var (
	vendorSpecRe  = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)
	versionSpecRe = regexp.MustCompile(`^[0-9+.-]*$`)
)

// CanonicalizeOS normalizes an OS name the way spec.md §3 requires:
// windows|darwin|linux|aix|solaris, falling back to CJDK_OS then the
// running platform's GOOS.
func CanonicalizeOS(osname string) string {
	if osname == "" {
		osname = os.Getenv("CJDK_OS")
	}
	if osname == "" {
		osname = hostOS()
	}
	osname = strings.ToLower(osname)
	switch {
	case osname == "win32":
		return "windows"
	case osname == "macos":
		return "darwin"
	case strings.HasPrefix(osname, "aix"):
		return "aix"
	case strings.HasPrefix(osname, "solaris"):
		return "solaris"
	default:
		return osname
	}
}

func hostOS() string {
	switch runtime.GOOS {
	case "darwin":
		return "darwin"
	case "windows":
		return "windows"
	default:
		return runtime.GOOS
	}
}

var archX86Re = regexp.MustCompile(`^i?[356]86$`)

// CanonicalizeArch normalizes a CPU architecture name per spec.md §3,
// falling back to CJDK_ARCH then the running platform's GOARCH.
func CanonicalizeArch(arch string) string {
	if arch == "" {
		arch = os.Getenv("CJDK_ARCH")
	}
	if arch == "" {
		arch = hostArch()
	}
	arch = strings.ToLower(arch)
	switch {
	case arch == "x86_64" || arch == "x86-64" || arch == "x64":
		return "amd64"
	case arch == "aarch64":
		return "arm64"
	case archX86Re.MatchString(arch):
		return "x86"
	default:
		return arch
	}
}

func hostArch() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	case "386":
		return "x86"
	default:
		return runtime.GOARCH
	}
}

func defaultVendor() string {
	if v := os.Getenv("CJDK_VENDOR"); v != "" {
		return v
	}
	return "adoptium"
}

func defaultIndexURL() string {
	if v := os.Getenv("CJDK_INDEX_URL"); v != "" {
		return v
	}
	return "https://raw.githubusercontent.com/coursier/jvm-index/master/index.json"
}

func defaultIndexTTL() float64 {
	if v := os.Getenv("CJDK_INDEX_TTL"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return 86400
}

// DefaultCacheDir returns the cache directory to use when no override is
// given: CJDK_CACHE_DIR if set (must be absolute), else the platform
// default described in spec.md §6.
func DefaultCacheDir() (string, error) {
	if v := os.Getenv("CJDK_CACHE_DIR"); v != "" {
		if !filepath.IsAbs(v) {
			return "", cjdkerr.ConfigError("CJDK_CACHE_DIR must be an absolute path (found %q)", v)
		}
		return v, nil
	}
	switch runtime.GOOS {
	case "windows":
		return windowsCacheDir()
	case "darwin":
		return macosCacheDir()
	default:
		return xdgCacheDir()
	}
}

func windowsCacheDir() (string, error) {
	local, err := localAppData()
	if err != nil {
		return "", err
	}
	cjdkCache := filepath.Join(local, "cjdk")
	if err := os.MkdirAll(cjdkCache, 0o700); err != nil {
		return "", cjdkerr.ConfigError("failed to create cache directory %s: %v", cjdkCache, err)
	}
	return filepath.Join(cjdkCache, "cache"), nil
}

func localAppData() (string, error) {
	if v := os.Getenv("LOCALAPPDATA"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", cjdkerr.ConfigError("cannot determine home directory: %v", err)
	}
	return filepath.Join(home, "AppData", "Local"), nil
}

func macosCacheDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", cjdkerr.ConfigError("cannot determine home directory: %v", err)
	}
	caches := filepath.Join(home, "Library", "Caches")
	if err := os.MkdirAll(caches, 0o700); err != nil {
		return "", cjdkerr.ConfigError("failed to create cache directory %s: %v", caches, err)
	}
	return filepath.Join(caches, "cjdk"), nil
}

func xdgCacheDir() (string, error) {
	var caches string
	if v := os.Getenv("XDG_CACHE_HOME"); v != "" {
		caches = v
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", cjdkerr.ConfigError("cannot determine home directory: %v", err)
		}
		caches = filepath.Join(home, ".cache")
	}
	if err := os.MkdirAll(caches, 0o700); err != nil {
		return "", cjdkerr.ConfigError("failed to create cache directory %s: %v", caches, err)
	}
	return filepath.Join(caches, "cjdk"), nil
}
