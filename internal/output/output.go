// Package output renders command results for people and machines:
// styled text on a terminal, bare text when piped or NO_COLOR is set,
// JSON when requested.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/kdex-dev/kdex/internal/store"
)

// Writer renders one command invocation's output.
type Writer struct {
	out    io.Writer
	errOut io.Writer
	styles Styles
	json   bool
	quiet  bool
	tty    bool
}

// Options mirror the global CLI flags.
type Options struct {
	JSON    bool
	Quiet   bool
	NoColor bool
}

// New builds a Writer. Color needs a terminal on out, no --no-color,
// and no NO_COLOR in the environment.
func New(out, errOut io.Writer, opts Options) *Writer {
	tty := IsTTY(out)
	useColor := tty && !opts.NoColor && !DetectNoColor()
	return &Writer{
		out:    out,
		errOut: errOut,
		styles: GetStyles(!useColor),
		json:   opts.JSON,
		quiet:  opts.Quiet,
		tty:    tty,
	}
}

// JSON reports whether the command should emit machine output only.
func (w *Writer) JSON() bool { return w.json }

// Quiet reports whether informational text is suppressed.
func (w *Writer) Quiet() bool { return w.quiet }

// Styles exposes the active style set for custom rendering.
func (w *Writer) Styles() Styles { return w.styles }

// EmitJSON marshals v onto stdout. It ignores quiet: JSON output is the
// contract, not chatter.
func (w *Writer) EmitJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w.out, string(data))
	return nil
}

// Println prints informational text unless quiet or JSON mode is on.
func (w *Writer) Println(args ...any) {
	if w.quiet || w.json {
		return
	}
	_, _ = fmt.Fprintln(w.out, args...)
}

// Printf prints formatted informational text unless suppressed.
func (w *Writer) Printf(format string, args ...any) {
	if w.quiet || w.json {
		return
	}
	_, _ = fmt.Fprintf(w.out, format, args...)
}

// Header prints a section title with a rule under it.
func (w *Writer) Header(title string) {
	if w.quiet || w.json {
		return
	}
	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render(title))
	_, _ = fmt.Fprintln(w.out, w.styles.Dim.Render(strings.Repeat("─", 40)))
}

// Success prints a confirmation line.
func (w *Writer) Success(msg string) {
	if w.quiet || w.json {
		return
	}
	_, _ = fmt.Fprintf(w.out, "%s %s\n", w.styles.Success.Render("✓"), msg)
}

// Successf prints a formatted confirmation line.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a cautionary line. Warnings survive quiet mode but not
// JSON mode, where they would corrupt the stream.
func (w *Writer) Warning(msg string) {
	if w.json {
		return
	}
	_, _ = fmt.Fprintf(w.errOut, "%s %s\n", w.styles.Warning.Render("!"), msg)
}

// Warningf prints a formatted cautionary line.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error line on stderr. Never suppressed.
func (w *Writer) Error(msg string) {
	_, _ = fmt.Fprintf(w.errOut, "%s %s\n", w.styles.Error.Render("✗"), msg)
}

// Errorf prints a formatted error line on stderr.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Highlight converts snippet match markers into styling: ANSI emphasis
// when colored, brackets when plain.
func (w *Writer) Highlight(snippet string) string {
	if w.styles.plain {
		snippet = strings.ReplaceAll(snippet, store.SnippetStart, "[")
		return strings.ReplaceAll(snippet, store.SnippetEnd, "]")
	}
	var sb strings.Builder
	rest := snippet
	for {
		before, after, ok := strings.Cut(rest, store.SnippetStart)
		if !ok {
			sb.WriteString(rest)
			return sb.String()
		}
		sb.WriteString(before)
		match, tail, ok := strings.Cut(after, store.SnippetEnd)
		if !ok {
			sb.WriteString(after)
			return sb.String()
		}
		sb.WriteString(w.styles.Match.Render(match))
		rest = tail
	}
}

// Progress redraws an in-place progress bar. It only renders on a
// terminal; redraws through a pipe would flood the consumer.
func (w *Writer) Progress(current, total int, msg string) {
	if w.quiet || w.json || !w.tty || total <= 0 {
		return
	}
	pct := float64(current) / float64(total) * 100
	bar := renderBar(current, total, 30)
	_, _ = fmt.Fprintf(w.out, "\r%s %3.0f%% %s\x1b[K",
		w.styles.Accent.Render(bar), pct, w.styles.Dim.Render(truncatePath(msg, 40)))
}

// ProgressDone clears the progress line.
func (w *Writer) ProgressDone() {
	if w.quiet || w.json || !w.tty {
		return
	}
	_, _ = fmt.Fprint(w.out, "\r\x1b[K")
}

func renderBar(current, total, width int) string {
	pct := float64(current) / float64(total)
	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// truncatePath keeps the tail of long paths, which carries the name.
func truncatePath(p string, max int) string {
	if len(p) <= max {
		return p
	}
	return "..." + p[len(p)-max+3:]
}

// IsTTY reports whether w is an interactive terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor honors the NO_COLOR convention: presence disables color
// regardless of value.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}
