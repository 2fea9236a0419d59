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

// Command cjdk materializes JDK/JRE distributions on demand, caching
// them on disk for reuse by this and other cooperating processes.
// Command-line surface and flag names are described in spec.md §6.
//
// Flag parsing follows the code-intelligence CLI's pattern: a global
// flag set parsed with interspersed arguments disabled, then explicit
// dispatch on the subcommand name, so that `cjdk exec -- java ...`
// passes everything after the subcommand straight through.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/cachedjdk/cjdk"
	"github.com/cachedjdk/cjdk/internal/cjdkerr"
	"github.com/cachedjdk/cjdk/internal/cliterm"
	"github.com/cachedjdk/cjdk/internal/conf"
	"github.com/cachedjdk/cjdk/internal/metrics"
	"github.com/cachedjdk/cjdk/internal/statusserver"
)

type globalFlags struct {
	jdk        string
	cacheDir   string
	indexURL   string
	indexTTL   float64
	osName     string
	arch       string
	progress   bool
	noColor    bool
	metricsOn  bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr *os.File) int {
	globals := globalFlags{progress: true}

	flags := pflag.NewFlagSet("cjdk", pflag.ContinueOnError)
	flags.SetInterspersed(false)
	flags.StringVarP(&globals.jdk, "jdk", "j", "", "JDK spec, e.g. \"adoptium:17\" or \"17\"")
	flags.StringVar(&globals.cacheDir, "cache-dir", "", "cache directory (default: platform-specific)")
	flags.StringVar(&globals.indexURL, "index-url", "", "JDK index URL")
	flags.Float64Var(&globals.indexTTL, "index-ttl", 0, "index cache TTL in seconds")
	flags.StringVar(&globals.osName, "os", "", "target OS (default: this platform's)")
	flags.StringVar(&globals.arch, "arch", "", "target architecture (default: this platform's)")
	flags.BoolVar(&globals.progress, "progress", true, "show progress bars")
	flags.BoolVar(&globals.noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colorized output")
	flags.BoolVar(&globals.metricsOn, "metrics", false, "collect and expose Prometheus metrics")
	flags.Usage = func() { printUsage(stderr) }

	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		fmt.Fprintf(stderr, "cjdk: Error: %v\n", err)
		return 1
	}

	rest := flags.Args()
	if len(rest) == 0 {
		printUsage(stderr)
		return 2
	}
	command, rest := rest[0], rest[1:]

	colors := cliterm.New(stderr, globals.noColor)

	var reg *prometheus.Registry
	var rec *metrics.Recorder
	if globals.metricsOn {
		reg = prometheus.NewRegistry()
		rec = metrics.NewRecorder(reg)
	}

	k := cjdk.Kwargs{
		Jdk:      globals.jdk,
		OS:       globals.osName,
		Arch:     globals.arch,
		CacheDir: globals.cacheDir,
		IndexURL: globals.indexURL,
		Progress: &globals.progress,
		Metrics:  rec,
		Stderr:   stderr,
	}
	if globals.indexTTL != 0 {
		k.IndexTTL = &globals.indexTTL
	}

	ctx := context.Background()

	var err error
	switch command {
	case "java-home":
		err = cmdJavaHome(ctx, k, stdout)
	case "exec":
		err = cmdExec(ctx, k, rest)
	case "cache", "cache_jdk":
		err = cmdCache(ctx, k, stdout)
	case "cache-file":
		err = cmdCacheFile(ctx, k, rest, stdout)
	case "cache-package":
		err = cmdCachePackage(ctx, k, rest, stdout)
	case "ls-vendors":
		err = cmdListVendors(ctx, k, stdout)
	case "ls":
		err = cmdList(ctx, k, rest, stdout)
	case "clear-cache":
		err = cjdk.ClearCache(ctx, k)
	case "serve-status":
		err = cmdServeStatus(k, reg, rest)
	default:
		fmt.Fprintf(stderr, "cjdk: Error: unknown command %q\n", command)
		return 2
	}

	if err != nil {
		var ce *cjdkerr.Error
		if asErr, ok := err.(*cjdkerr.Error); ok {
			ce = asErr
		}
		colors.Errorf(stderr, "%s", err.Error())
		if ce != nil {
			return ce.ExitCode()
		}
		return 1
	}
	return 0
}

func printUsage(w *os.File) {
	fmt.Fprintln(w, `usage: cjdk [global flags] <command> [args]

commands:
  java-home              print the resolved JAVA_HOME
  exec -- <program> ...  run program with JAVA_HOME/PATH set
  cache                  ensure the configured JDK is cached
  cache-file NAME URL FILENAME [--ttl S] [--sha1 H] [--sha256 H] [--sha512 H]
  cache-package NAME URL [--sha1 H] [--sha256 H] [--sha512 H]
  ls-vendors             list available JDK vendors
  ls [--cached|--available]
  clear-cache            remove the entire cache directory
  serve-status [--addr HOST:PORT]

global flags:
  -j, --jdk SPEC       JDK vendor:version spec
      --cache-dir DIR
      --index-url URL
      --index-ttl SECONDS
      --os NAME
      --arch NAME
      --progress / --progress=false
      --no-color
      --metrics`)
}

func cmdJavaHome(ctx context.Context, k cjdk.Kwargs, stdout *os.File) error {
	home, err := cjdk.JavaHome(ctx, k)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, home)
	return nil
}

func cmdExec(ctx context.Context, k cjdk.Kwargs, rest []string) error {
	rest = trimDoubleDash(rest)
	if len(rest) == 0 {
		return cjdkerr.ConfigError("exec requires a program to run")
	}
	return cjdk.JavaEnv(ctx, k, true, func(home string) error {
		cmd := exec.Command(rest[0], rest[1:]...)
		cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
		if err := cmd.Run(); err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				os.Exit(exitErr.ExitCode())
			}
			return cjdkerr.InstallError("failed to run %s: %v", rest[0], err)
		}
		return nil
	})
}

func trimDoubleDash(args []string) []string {
	if len(args) > 0 && args[0] == "--" {
		return args[1:]
	}
	return args
}

func cmdCache(ctx context.Context, k cjdk.Kwargs, stdout *os.File) error {
	dir, version, err := cjdk.CacheJDK(ctx, k)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s\t%s\n", version, dir)
	return nil
}

func cmdCacheFile(ctx context.Context, k cjdk.Kwargs, rest []string, stdout *os.File) error {
	fs := pflag.NewFlagSet("cache-file", pflag.ContinueOnError)
	ttl := fs.Float64("ttl", 0, "")
	sha1Hex := fs.String("sha1", "", "")
	sha256Hex := fs.String("sha256", "", "")
	sha512Hex := fs.String("sha512", "", "")
	if err := fs.Parse(rest); err != nil {
		return cjdkerr.ConfigError("%v", err)
	}
	positional := fs.Args()
	if len(positional) != 3 {
		return cjdkerr.ConfigError("cache-file requires NAME URL FILENAME")
	}
	path, err := cjdk.CacheFile(ctx, positional[0], positional[1], positional[2], *ttl, *sha1Hex, *sha256Hex, *sha512Hex, k)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, path)
	return nil
}

func cmdCachePackage(ctx context.Context, k cjdk.Kwargs, rest []string, stdout *os.File) error {
	fs := pflag.NewFlagSet("cache-package", pflag.ContinueOnError)
	sha1Hex := fs.String("sha1", "", "")
	sha256Hex := fs.String("sha256", "", "")
	sha512Hex := fs.String("sha512", "", "")
	if err := fs.Parse(rest); err != nil {
		return cjdkerr.ConfigError("%v", err)
	}
	positional := fs.Args()
	if len(positional) != 2 {
		return cjdkerr.ConfigError("cache-package requires NAME URL")
	}
	dir, err := cjdk.CachePackage(ctx, positional[0], positional[1], *sha1Hex, *sha256Hex, *sha512Hex, k)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, dir)
	return nil
}

func cmdListVendors(ctx context.Context, k cjdk.Kwargs, stdout *os.File) error {
	vendors, err := cjdk.ListVendors(ctx, k)
	if err != nil {
		return err
	}
	for _, v := range vendors {
		fmt.Fprintln(stdout, v)
	}
	return nil
}

func cmdList(ctx context.Context, k cjdk.Kwargs, rest []string, stdout *os.File) error {
	fs := pflag.NewFlagSet("ls", pflag.ContinueOnError)
	cachedOnly := fs.Bool("cached", true, "")
	available := fs.Bool("available", false, "")
	if err := fs.Parse(rest); err != nil {
		return cjdkerr.ConfigError("%v", err)
	}
	if *available {
		*cachedOnly = false
	}
	jdks, err := cjdk.ListJDKs(ctx, k, *cachedOnly)
	if err != nil {
		return err
	}
	for _, vv := range jdks {
		fmt.Fprintf(stdout, "%s\t%s\n", vv.Vendor, vv.Version)
	}
	return nil
}

func cmdServeStatus(k cjdk.Kwargs, reg *prometheus.Registry, rest []string) error {
	fs := pflag.NewFlagSet("serve-status", pflag.ContinueOnError)
	addr := fs.String("addr", "127.0.0.1:8008", "")
	if err := fs.Parse(rest); err != nil {
		return cjdkerr.ConfigError("%v", err)
	}
	c, err := conf.Configure(k)
	if err != nil {
		return err
	}
	srv := statusserver.New(c, reg)
	if err := srv.ListenAndServe(*addr); err != nil {
		return cjdkerr.InstallError("status server failed: %v", err)
	}
	return nil
}
