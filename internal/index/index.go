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

// Package index implements the JDK index lookup and version-resolution
// logic described in spec.md §4.5, ported from the original's _index.py:
// downloading and caching the vendor/version/arch/os index, normalizing
// and comparing version tuples, and resolving a (vendor, version-spec)
// pair to an exact downloadable archive URL.
package index

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cachedjdk/cjdk/internal/cache"
	"github.com/cachedjdk/cjdk/internal/cjdkerr"
	"github.com/cachedjdk/cjdk/internal/conf"
	"github.com/cachedjdk/cjdk/internal/fetch"
	"github.com/cachedjdk/cjdk/internal/progressui"
)

const indexKeyPrefix = "index"

// Versions maps an exact version string to an archive URL, e.g.
// "tgz+https://.../jdk.tar.gz".
type Versions map[string]string

// Vendors maps a "jdk@<vendor>" key to its available Versions.
type Vendors map[string]Versions

// Arches maps an architecture name to Vendors.
type Arches map[string]Vendors

// Index maps an OS name to Arches: os -> arch -> "jdk@vendor" -> version -> url.
type Index map[string]Arches

// graalvmPrefix matches vendor keys belonging to the GraalVM family.
// GraalVM version numbers describe the GraalVM release, not the JDK it
// implements, so its "-javaN" vendor suffixes are kept rather than merged,
// and its versions are normalized without stripping a leading "1".
var graalvmPrefix = regexp.MustCompile(`^jdk@graalvm`)

// semeruJavaSuffix strips a trailing "-java\d+" qualifier from IBM Semeru
// vendor keys, merging e.g. "jdk@ibm-semeru-openj9-java17" into the bucket
// "jdk@ibm-semeru-openj9", matching the original's vendor bucket merge.
var semeruJavaSuffix = regexp.MustCompile(`^(jdk@ibm-semeru.*)-java\d+$`)

// JdkIndex loads the JDK index, downloading and caching it (subject to
// conf.IndexTTL) if necessary.
func JdkIndex(ctx context.Context, c *conf.Configuration) (Index, error) {
	path, err := cachedIndexPath(ctx, c)
	if err != nil {
		return nil, err
	}
	return readIndex(path)
}

func cachedIndexPath(ctx context.Context, c *conf.Configuration) (string, error) {
	checkfunc := func(path string) error {
		_, err := readIndex(path)
		return err
	}

	fetchFn := func(dest string) error {
		return fetch.DownloadFile(ctx, fetch.DownloadFileOptions{
			Dest:          dest,
			URL:           c.IndexURL,
			Checkfunc:     checkfunc,
			Progress:      progressui.Null{},
			AllowInsecure: c.AllowInsecureForTesting,
			Metrics:       c.Metrics,
			MetricsPrefix: indexKeyPrefix,
		})
	}

	return cache.AtomicFile(cache.AtomicFileOptions{
		Prefix:   indexKeyPrefix,
		KeyURL:   c.IndexURL,
		Filename: "jdk-index.json",
		Fetch:    fetchFn,
		CacheDir: c.CacheDir,
		TTL:      c.IndexTTL,
		Progress: progressui.Null{},
		Metrics:  c.Metrics,
	})
}

func readIndex(path string) (Index, error) {
	data, err := readFileASCII(path)
	if err != nil {
		return nil, cjdkerr.InstallError("failed to read JDK index %s: %v", path, err)
	}
	var raw Index
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, cjdkerr.InstallError("failed to parse JDK index %s: %v", path, err)
	}
	return postprocess(raw), nil
}

// AvailableJdks returns the sorted list of (vendor, version) pairs
// available for conf's OS/Arch/Vendor, filtered by conf.Version when set,
// with the "jdk@" vendor prefix stripped.
func AvailableJdks(idx Index, c *conf.Configuration) []VendorVersion {
	versions := getVersions(idx, c.OS, c.Arch, c.Vendor)
	var out []VendorVersion
	for vendorKey, vmap := range versions {
		vendor := strings.TrimPrefix(vendorKey, "jdk@")
		graalvm := isGraalvmVendor(vendor)
		spec := normalizeVersion(c.Version, !graalvm)
		for v := range vmap {
			if c.Version != "" && !isCompatible(normalizeVersion(v, !graalvm), spec) {
				continue
			}
			out = append(out, VendorVersion{Vendor: vendor, Version: v})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Vendor != out[j].Vendor {
			return out[i].Vendor < out[j].Vendor
		}
		return compareNormalized(normalizeVersion(out[i].Version, false), normalizeVersion(out[j].Version, false)) < 0
	})
	return out
}

// VendorVersion is a single (vendor, exact-or-spec version) pair.
type VendorVersion struct {
	Vendor  string
	Version string
}

// ResolveJdkVersion resolves conf.Vendor/conf.Version (the latter possibly
// a partial spec like "17" or "17.0.1+") to the single matching exact
// version string, choosing the greatest match per spec.md §4.5.
func ResolveJdkVersion(idx Index, c *conf.Configuration) (string, error) {
	versionsByVendor := getVersions(idx, c.OS, c.Arch, c.Vendor)
	vkey := "jdk@" + c.Vendor
	versions, ok := versionsByVendor[vkey]
	if !ok || len(versions) == 0 {
		return "", cjdkerr.JdkNotFoundError(
			"no JDK found for vendor=%s os=%s arch=%s", c.Vendor, c.OS, c.Arch)
	}
	matched, err := matchVersion(versions, c.Version, isGraalvmVendor(c.Vendor))
	if err != nil {
		return "", err
	}
	return matched, nil
}

// JdkURL returns the archive URL for the exact version resolved by
// ResolveJdkVersion.
func JdkURL(idx Index, c *conf.Configuration, exactVersion string) (string, error) {
	versionsByVendor := getVersions(idx, c.OS, c.Arch, c.Vendor)
	vkey := "jdk@" + c.Vendor
	versions, ok := versionsByVendor[vkey]
	if !ok {
		return "", cjdkerr.JdkNotFoundError("no JDK found for vendor=%s os=%s arch=%s", c.Vendor, c.OS, c.Arch)
	}
	url, ok := versions[exactVersion]
	if !ok {
		return "", cjdkerr.JdkNotFoundError("version %s not found for vendor=%s", exactVersion, c.Vendor)
	}
	return url, nil
}

func getVersions(idx Index, osName, arch, vendor string) Vendors {
	arches, ok := idx[osName]
	if !ok {
		return Vendors{}
	}
	vendors, ok := arches[arch]
	if !ok {
		return Vendors{}
	}
	if vendor == "" {
		return vendors
	}
	vkey := "jdk@" + vendor
	if v, ok := vendors[vkey]; ok {
		return Vendors{vkey: v}
	}
	return Vendors{}
}

func isGraalvmVendor(vendor string) bool {
	return graalvmPrefix.MatchString("jdk@" + vendor)
}

// postprocess merges IBM Semeru vendor variants into a single bucket.
// GraalVM buckets keep their own keys (see graalvmPrefix).
func postprocess(idx Index) Index {
	out := make(Index, len(idx))
	for osName, arches := range idx {
		outArches := make(Arches, len(arches))
		for arch, vendors := range arches {
			outVendors := make(Vendors)
			for vendorKey, versions := range vendors {
				mergedKey := vendorKey
				if m := semeruJavaSuffix.FindStringSubmatch(vendorKey); m != nil && !graalvmPrefix.MatchString(vendorKey) {
					mergedKey = m[1]
				}
				bucket, ok := outVendors[mergedKey]
				if !ok {
					bucket = make(Versions)
					outVendors[mergedKey] = bucket
				}
				for v, url := range versions {
					bucket[v] = url
				}
			}
			outArches[arch] = outVendors
		}
		out[osName] = outArches
	}
	return out
}

var verSepRe = regexp.MustCompile(`[.+_-]`)

// versionElement is one component of a normalized version tuple: either
// an integer or, when it can't be parsed as one, the original string.
// Comparisons are typed: two ints compare numerically, anything else
// compares as a string, and an int always sorts below a string with the
// same tuple position (matching Python's convention that a missing
// numeric component is "older").
type versionElement struct {
	isInt bool
	n     int
	s     string
}

func intify(s string) versionElement {
	if n, err := strconv.Atoi(s); err == nil {
		return versionElement{isInt: true, n: n}
	}
	return versionElement{s: s}
}

func (a versionElement) less(b versionElement) bool {
	switch {
	case a.isInt && b.isInt:
		return a.n < b.n
	case a.isInt && !b.isInt:
		return true
	case !a.isInt && b.isInt:
		return false
	default:
		return a.s < b.s
	}
}

func (a versionElement) equal(b versionElement) bool {
	if a.isInt != b.isInt {
		return false
	}
	if a.isInt {
		return a.n == b.n
	}
	return a.s == b.s
}

// normalizeVersion splits ver on '.', '+', '_', '-', intifies each piece,
// and (unless the vendor is GraalVM) strips a leading "1" element — the
// historical "1.8" style JDK 8 version numbering, per spec.md §4.5.
// A trailing "+" element (an "or newer" marker used in version specs, not
// exact versions) is preserved as its own element.
func normalizeVersion(ver string, removePrefix1 bool) []versionElement {
	ver = strings.TrimSpace(ver)
	trailingPlus := strings.HasSuffix(ver, "+") && ver != "+"
	if trailingPlus {
		ver = strings.TrimSuffix(ver, "+")
	}
	var parts []string
	if ver != "" {
		parts = verSepRe.Split(ver, -1)
	}
	elems := make([]versionElement, 0, len(parts)+1)
	for _, p := range parts {
		if p == "" {
			continue
		}
		elems = append(elems, intify(p))
	}
	if removePrefix1 && len(elems) > 1 && elems[0].isInt && elems[0].n == 1 {
		elems = elems[1:]
	}
	if trailingPlus {
		elems = append(elems, versionElement{s: "+"})
	}
	return elems
}

func compareNormalized(a, b []versionElement) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i].equal(b[i]) {
			continue
		}
		if a[i].less(b[i]) {
			return -1
		}
		return 1
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// isCompatible reports whether version satisfies spec, per the original's
// _is_version_compatible_with_spec: an empty spec (or the bare "+"
// wildcard) matches everything; otherwise spec's elements must be a
// prefix of version's (after stripping its own trailing "+" marker), and
// if spec ends in "+", version's corresponding tail element must be >=
// spec's.
func isCompatible(version, spec []versionElement) bool {
	wildcard := len(spec) == 0 || (len(spec) == 1 && spec[0].s == "+")
	if wildcard {
		return true
	}
	specHasPlus := len(spec) > 0 && spec[len(spec)-1].s == "+"
	specCore := spec
	if specHasPlus {
		specCore = spec[:len(spec)-1]
	}
	if len(version) < len(specCore) {
		return false
	}
	for i, se := range specCore {
		if i == len(specCore)-1 && specHasPlus {
			if version[i].less(se) {
				return false
			}
			continue
		}
		if !version[i].equal(se) {
			return false
		}
	}
	return true
}

// matchVersion finds the greatest exact version in versions compatible
// with spec, per spec.md §4.5's "pick the newest matching version" rule.
func matchVersion(versions Versions, spec string, graalvm bool) (string, error) {
	specElems := normalizeVersion(spec, !graalvm)
	type candidate struct {
		exact string
		norm  []versionElement
	}
	var candidates []candidate
	for exact := range versions {
		norm := normalizeVersion(exact, !graalvm)
		if isCompatible(norm, specElems) {
			candidates = append(candidates, candidate{exact: exact, norm: norm})
		}
	}
	if len(candidates) == 0 {
		return "", cjdkerr.JdkNotFoundError("no JDK version matching %q found", spec)
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if compareNormalized(c.norm, best.norm) > 0 {
			best = c
		}
	}
	return best.exact, nil
}

func readFileASCII(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	for _, b := range data {
		if b > 0x7f {
			return nil, fmt.Errorf("index file is not ASCII")
		}
	}
	return data, nil
}
