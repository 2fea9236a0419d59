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

// Package cliterm provides TTY-aware colorized output helpers for the
// command-line front end, in the style of the code-intelligence CLI's
// color handling: respect NO_COLOR and a non-TTY output, otherwise color
// status lines.
package cliterm

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Colors bundles the color.Color instances used by the CLI front end,
// pre-configured to disable themselves when color is not appropriate.
type Colors struct {
	Error *color.Color
	Warn  *color.Color
	Info  *color.Color
	OK    *color.Color
}

// New builds a Colors set for writing to out, disabling color output when
// out is not a terminal or when NO_COLOR or noColor is set, matching the
// precedence rules used by the code-intelligence CLI this is grounded on.
func New(out io.Writer, noColor bool) *Colors {
	enabled := supportsColor(out) && !noColor && os.Getenv("NO_COLOR") == ""

	c := &Colors{
		Error: color.New(color.FgRed, color.Bold),
		Warn:  color.New(color.FgYellow),
		Info:  color.New(color.FgCyan),
		OK:    color.New(color.FgGreen),
	}
	for _, col := range []*color.Color{c.Error, c.Warn, c.Info, c.OK} {
		col.EnableColor()
		if !enabled {
			col.DisableColor()
		}
	}
	return c
}

func supportsColor(out io.Writer) bool {
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Errorf writes a colorized "cjdk: Error: ..." line to w, matching the
// original CLI's error reporting convention.
func (c *Colors) Errorf(w io.Writer, format string, args ...any) {
	fmt.Fprint(w, c.Error.Sprint("cjdk: Error: "))
	fmt.Fprintf(w, format, args...)
	fmt.Fprintln(w)
}

// Infof writes a colorized informational line to w.
func (c *Colors) Infof(w io.Writer, format string, args ...any) {
	fmt.Fprint(w, c.Info.Sprint("cjdk: "))
	fmt.Fprintf(w, format, args...)
	fmt.Fprintln(w)
}
