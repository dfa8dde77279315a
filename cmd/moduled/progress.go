// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/moduled/moduled/internal/installer"
	"github.com/moduled/moduled/internal/job"
)

const progressBarWidth = 30

var (
	successIcon = SuccessStyle.Render("✓")
	errorIcon   = ErrorStyle.Render("✗")
	warningIcon = WarningStyle.Render("!")
	infoIcon    = SubtitleStyle.Render("•")
)

// progressPrinter renders installer reports as they arrive. Snapshots are
// cumulative, so it remembers how many lines of each stream it has printed
// and only writes the new ones.
type progressPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	errOut  io.Writer
	verbose bool
	seen    map[string]int
	bar     *progressbar.ProgressBar
}

func newProgressPrinter(out, errOut io.Writer, verbose bool) *progressPrinter {
	return &progressPrinter{
		out:     out,
		errOut:  errOut,
		verbose: verbose,
		seen:    make(map[string]int),
	}
}

// report is an installer.Callback.
func (p *progressPrinter) report(r installer.Report) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshot("", r.Snapshot)
}

func (p *progressPrinter) snapshot(scope string, s job.Snapshot) {
	if s.Uninstall != nil {
		p.snapshot(joinScope(scope, "uninstall"), *s.Uninstall)
	}
	if s.Install != nil {
		p.snapshot(joinScope(scope, "install"), *s.Install)
	}
	p.script(joinScope(scope, "pre"), s.PreScript)
	p.script(joinScope(scope, "post"), s.PostScript)
	for _, line := range p.fresh(joinScope(scope, "progress"), s.Progress) {
		p.progressLine(scope, line)
	}
}

func (p *progressPrinter) script(scope string, out job.ScriptOutput) {
	for _, line := range p.fresh(scope+"/stdout", out.Stdout) {
		if p.verbose {
			p.println(scope, VerboseStyle.Render(line))
		}
	}
	for _, line := range p.fresh(scope+"/stderr", out.Stderr) {
		p.println(scope, stderrLineStyle.Render(line))
	}
}

func (p *progressPrinter) progressLine(scope, line string) {
	var pct, done, total int64
	if _, err := fmt.Sscanf(line, "downloaded %d%% (%d of %d bytes)", &pct, &done, &total); err == nil {
		p.download(done, total)
		return
	}
	switch {
	case strings.HasPrefix(line, "warning:"):
		p.println(scope, WarningStyle.Render(line))
	case strings.Contains(line, "failed") || strings.HasPrefix(line, "internal error"):
		p.println(scope, ErrorStyle.Render(line))
	default:
		p.println(scope, line)
	}
}

// download drives the progress bar from the decile progress lines.
func (p *progressPrinter) download(done, total int64) {
	if p.bar == nil {
		p.bar = progressbar.NewOptions64(total,
			progressbar.OptionSetWriter(p.errOut),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(progressBarWidth),
			progressbar.OptionSetDescription("downloading"),
			progressbar.OptionSetPredictTime(false),
		)
	}
	_ = p.bar.Set64(done) // Rendering errors only affect the terminal bar.
	if done >= total {
		p.stopBarLocked()
	}
}

func (p *progressPrinter) println(scope, text string) {
	p.stopBarLocked()
	if scope == "" {
		fmt.Fprintf(p.out, "%s %s\n", infoIcon, text)
		return
	}
	fmt.Fprintf(p.out, "%s %s %s\n", infoIcon, phaseStyle.Render("["+scope+"]"), text)
}

// fresh returns the lines of key not printed yet and marks them printed.
func (p *progressPrinter) fresh(key string, lines []string) []string {
	n := p.seen[key]
	if n >= len(lines) {
		return nil
	}
	p.seen[key] = len(lines)
	return lines[n:]
}

func (p *progressPrinter) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopBarLocked()
}

func (p *progressPrinter) stopBarLocked() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
	_ = p.bar.Close()
	fmt.Fprintln(p.errOut)
	p.bar = nil
}

// summary prints the one-line outcome of a finished operation.
func (p *progressPrinter) summary(r installer.Report) {
	p.mu.Lock()
	defer p.mu.Unlock()

	icon, style := successIcon, SuccessStyle
	switch r.Status {
	case installer.StatusError:
		icon, style = errorIcon, ErrorStyle
	case installer.StatusCanceled:
		icon, style = warningIcon, WarningStyle
	}
	fmt.Fprintf(p.out, "%s %s %s: %s\n",
		icon,
		TitleStyle.Render(string(r.Kind)),
		CmdStyle.Render(r.Snapshot.Module),
		style.Render(string(r.Status)))
}

func joinScope(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + "/" + child
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
