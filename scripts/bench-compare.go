//go:build ignore

// Package main compares two `go test -bench` output files and reports
// per-benchmark deltas. It is used to catch indexing and search
// performance regressions between branches:
//
//	go test -bench=. -benchmem -count=5 ./internal/... > baseline.txt
//	# ... make changes ...
//	go test -bench=. -benchmem -count=5 ./internal/... > current.txt
//	go run scripts/bench-compare.go -fail baseline.txt current.txt
//
// Repeated runs of the same benchmark are averaged before comparison.
// A benchmark is flagged SLOWER when ns/op grows by more than the
// threshold (default 20%), and FASTER when it shrinks by more than 10%.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"text/tabwriter"
)

var (
	threshold = flag.Float64("threshold", 0.20, "Relative ns/op growth treated as a regression")
	failExit  = flag.Bool("fail", false, "Exit non-zero if any benchmark regressed")
)

// benchLine matches standard testing.B output, with optional -benchmem columns.
var benchLine = regexp.MustCompile(`^(Benchmark\S+?)(?:-\d+)?\s+(\d+)\s+([\d.]+)\s+ns/op(?:\s+([\d.]+)\s+B/op)?(?:\s+(\d+)\s+allocs/op)?`)

type sample struct {
	nsPerOp     float64
	bytesPerOp  float64
	allocsPerOp float64
	runs        int
}

func main() {
	flag.Parse()
	if flag.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "usage: bench-compare [flags] <baseline> <current>")
		os.Exit(2)
	}

	baseline, err := parseBenchFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "baseline: %v\n", err)
		os.Exit(2)
	}
	current, err := parseBenchFile(flag.Arg(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "current: %v\n", err)
		os.Exit(2)
	}

	names := mergedNames(baseline, current)
	if len(names) == 0 {
		fmt.Fprintln(os.Stderr, "no benchmark results found in either file")
		os.Exit(2)
	}

	regressions := 0
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "benchmark\tbaseline\tcurrent\tdelta\tallocs\tstatus")
	for _, name := range names {
		base, inBase := baseline[name]
		cur, inCur := current[name]

		switch {
		case !inBase:
			fmt.Fprintf(w, "%s\t-\t%s\t-\t%s\t(new)\n",
				name, formatNs(cur.nsPerOp), formatAllocs(cur))
		case !inCur:
			fmt.Fprintf(w, "%s\t%s\t-\t-\t-\t(gone)\n", name, formatNs(base.nsPerOp))
		default:
			delta := (cur.nsPerOp - base.nsPerOp) / base.nsPerOp
			status := "ok"
			if delta > *threshold {
				status = "SLOWER"
				regressions++
			} else if delta < -0.10 {
				status = "FASTER"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%+.1f%%\t%s\t%s\n",
				name, formatNs(base.nsPerOp), formatNs(cur.nsPerOp),
				delta*100, formatAllocs(cur), status)
		}
	}
	w.Flush()

	if regressions > 0 {
		fmt.Printf("\n%d benchmark(s) regressed beyond %.0f%%\n", regressions, *threshold*100)
		if *failExit {
			os.Exit(1)
		}
	}
}

// parseBenchFile reads bench output and averages repeated runs per name.
func parseBenchFile(path string) (map[string]sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	results := make(map[string]sample)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m := benchLine.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		ns, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			continue
		}
		s := results[m[1]]
		s.nsPerOp += ns
		if m[4] != "" {
			if b, err := strconv.ParseFloat(m[4], 64); err == nil {
				s.bytesPerOp += b
			}
		}
		if m[5] != "" {
			if a, err := strconv.ParseFloat(m[5], 64); err == nil {
				s.allocsPerOp += a
			}
		}
		s.runs++
		results[m[1]] = s
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	for name, s := range results {
		n := float64(s.runs)
		s.nsPerOp /= n
		s.bytesPerOp /= n
		s.allocsPerOp /= n
		results[name] = s
	}
	return results, nil
}

func mergedNames(a, b map[string]sample) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var names []string
	for name := range a {
		seen[name] = true
		names = append(names, name)
	}
	for name := range b {
		if !seen[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func formatNs(ns float64) string {
	switch {
	case ns >= 1e9:
		return fmt.Sprintf("%.2fs", ns/1e9)
	case ns >= 1e6:
		return fmt.Sprintf("%.2fms", ns/1e6)
	case ns >= 1e3:
		return fmt.Sprintf("%.1fµs", ns/1e3)
	default:
		return fmt.Sprintf("%.0fns", ns)
	}
}

func formatAllocs(s sample) string {
	if s.allocsPerOp == 0 && s.bytesPerOp == 0 {
		return "-"
	}
	return fmt.Sprintf("%.0f", s.allocsPerOp)
}
