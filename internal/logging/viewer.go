package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Entry is one parsed JSON log line.
type Entry struct {
	Time  time.Time      `json:"time"`
	Level string         `json:"level"`
	Msg   string         `json:"msg"`
	Attrs map[string]any `json:"-"`
	Raw   string         `json:"-"`
	Valid bool           `json:"-"`
}

// ViewerOptions configures filtering and rendering for a Viewer.
type ViewerOptions struct {
	// MinLevel drops entries below this level. Empty means no filter.
	MinLevel string
	// Pattern, when set, keeps only lines matching the regex.
	Pattern *regexp.Regexp
	// NoColor disables level coloring.
	NoColor bool
}

// Viewer reads, filters, and renders kdex log files.
type Viewer struct {
	opts ViewerOptions
	out  io.Writer

	debugStyle lipgloss.Style
	infoStyle  lipgloss.Style
	warnStyle  lipgloss.Style
	errorStyle lipgloss.Style
}

// NewViewer creates a log viewer writing rendered entries to out.
func NewViewer(opts ViewerOptions, out io.Writer) *Viewer {
	v := &Viewer{opts: opts, out: out}
	if opts.NoColor {
		plain := lipgloss.NewStyle()
		v.debugStyle, v.infoStyle, v.warnStyle, v.errorStyle = plain, plain, plain, plain
		return v
	}
	v.debugStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	v.infoStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("106"))
	v.warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	v.errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	return v
}

// Scanner buffer large enough for log lines carrying full file paths and
// error chains.
const maxLineBytes = 1024 * 1024

// Tail returns the last n entries of the log file that pass the filters.
func (v *Viewer) Tail(path string, n int) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, maxLineBytes), maxLineBytes)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}

	var entries []Entry
	for _, line := range lines {
		if line == "" {
			continue
		}
		entry := parseEntry(line)
		if v.matches(entry) {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// Follow streams entries appended to the log file into the channel until
// the context is cancelled. The file is polled; rotation swaps the inode,
// so a rotated-away file stops producing entries until restart.
func (v *Viewer) Follow(ctx context.Context, path string, entries chan<- Entry) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}

	reader := bufio.NewReader(file)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for {
				line, err := reader.ReadString('\n')
				if err != nil {
					break
				}
				line = strings.TrimSuffix(line, "\n")
				if line == "" {
					continue
				}
				entry := parseEntry(line)
				if !v.matches(entry) {
					continue
				}
				select {
				case entries <- entry:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

// Print renders entries to the viewer's output.
func (v *Viewer) Print(entries []Entry) {
	for _, entry := range entries {
		_, _ = fmt.Fprintln(v.out, v.FormatEntry(entry))
	}
}

// FormatEntry renders one entry as "HH:MM:SS.mmm LEVEL msg k=v ...".
// Lines that were not valid JSON pass through unchanged.
func (v *Viewer) FormatEntry(entry Entry) string {
	if !entry.Valid {
		return entry.Raw
	}

	keys := make([]string, 0, len(entry.Attrs))
	for k := range entry.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(entry.Time.Format("15:04:05.000"))
	sb.WriteByte(' ')
	sb.WriteString(v.renderLevel(entry.Level))
	sb.WriteByte(' ')
	sb.WriteString(entry.Msg)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, entry.Attrs[k])
	}
	return sb.String()
}

func (v *Viewer) renderLevel(level string) string {
	label := strings.ToUpper(level)
	if len(label) > 5 {
		label = label[:5]
	}
	label = fmt.Sprintf("%-5s", label)

	switch parseLevel(level) {
	case slog.LevelDebug:
		return v.debugStyle.Render(label)
	case slog.LevelWarn:
		return v.warnStyle.Render(label)
	case slog.LevelError:
		return v.errorStyle.Render(label)
	default:
		return v.infoStyle.Render(label)
	}
}

// matches applies the level and pattern filters.
func (v *Viewer) matches(entry Entry) bool {
	if v.opts.MinLevel != "" && parseLevel(entry.Level) < parseLevel(v.opts.MinLevel) {
		return false
	}
	if v.opts.Pattern != nil && !v.opts.Pattern.MatchString(entry.Raw) {
		return false
	}
	return true
}

// parseEntry decodes a slog JSON line. Anything that is not JSON is kept
// raw so startup noise and panics still show up in the viewer.
func parseEntry(line string) Entry {
	entry := Entry{Raw: line}

	var data map[string]any
	if err := json.Unmarshal([]byte(line), &data); err != nil {
		return entry
	}
	entry.Valid = true

	if t, ok := data["time"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			entry.Time = parsed
		}
	}
	if l, ok := data["level"].(string); ok {
		entry.Level = l
	}
	if m, ok := data["msg"].(string); ok {
		entry.Msg = m
	}

	entry.Attrs = make(map[string]any)
	for k, val := range data {
		switch k {
		case "time", "level", "msg":
		default:
			entry.Attrs[k] = val
		}
	}
	return entry
}
