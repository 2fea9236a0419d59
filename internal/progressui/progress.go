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

// Package progressui implements the progress sinks that the cache and
// fetch pipelines report into. The core never renders anything itself
// (per spec.md §1, progress-bar rendering is an external collaborator's
// concern); this package supplies the two concrete sinks the CLI and
// tests actually need: a terminal bar and a no-op.
package progressui

import (
	"fmt"
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// Sink receives progress events from long-running cache operations.
// Implementations must tolerate being called from a single goroutine at a
// time (the core has no internal concurrency; see spec.md §5) but must not
// assume any particular sequence length.
type Sink interface {
	// Start begins a new named unit of work. total < 0 means unknown size
	// (for example, when a content-length header was missing or
	// non-numeric).
	Start(text string, total int64)
	// Add reports n additional units (bytes, or archive entries) of
	// progress since the last call.
	Add(n int64)
	// Finish completes the current unit of work.
	Finish()
	// Indefinite runs fn while displaying a spinner-style indefinite
	// waiter, used for the "another process is fetching" backoff loop.
	// The update callback passed to fn should be invoked once per
	// iteration of the caller's wait loop.
	Indefinite(text string, fn func(update func()))
}

// Null is a Sink that does nothing. It is used whenever progress is
// disabled (conf.Progress == false, CJDK_HIDE_PROGRESS_BARS, or index
// fetches, which are always forced quiet per spec.md §4.5).
type Null struct{}

func (Null) Start(string, int64)          {}
func (Null) Add(int64)                    {}
func (Null) Finish()                      {}
func (Null) Indefinite(_ string, fn func(update func())) {
	fn(func() {})
}

// Terminal renders progress using github.com/schollz/progressbar/v3,
// writing to the given writer (normally os.Stderr, matching the Python
// original's use of stderr for all progress and diagnostic output).
type Terminal struct {
	out io.Writer

	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

// NewTerminal returns a Terminal sink writing to out.
func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out}
}

func (t *Terminal) Start(text string, total int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	opts := []progressbar.Option{
		progressbar.OptionSetWriter(t.out),
		progressbar.OptionSetDescription(text),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetWidth(30),
	}
	if total < 0 {
		t.bar = progressbar.NewOptions64(-1, opts...)
		return
	}
	t.bar = progressbar.NewOptions64(total, opts...)
}

func (t *Terminal) Add(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bar == nil {
		return
	}
	_ = t.bar.Add64(n)
}

func (t *Terminal) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bar == nil {
		return
	}
	_ = t.bar.Finish()
	t.bar = nil
}

func (t *Terminal) Indefinite(text string, fn func(update func())) {
	fmt.Fprintln(t.out, text)
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(t.out),
		progressbar.OptionSetDescription(text),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	fn(func() { _ = bar.Add(1) })
	_ = bar.Finish()
}

// Select returns Null when enabled is false, otherwise a Terminal writing
// to out. This is the single decision point that the boolean "progress"
// toggle in spec.md's Configuration is resolved into a concrete sink.
func Select(enabled bool, out io.Writer) Sink {
	if !enabled {
		return Null{}
	}
	return NewTerminal(out)
}
