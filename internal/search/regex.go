package search

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"regexp/syntax"
	"strings"

	kerrors "github.com/kdex-dev/kdex/internal/errors"
	"github.com/kdex-dev/kdex/internal/store"
)

const (
	// maxRegexProgram caps the compiled RE2 program size. RE2 runs in
	// linear time, so the cap guards memory and pathological setup cost,
	// not backtracking.
	maxRegexProgram = 10000

	defaultContextLines = 2
)

var errStopScan = errors.New("stop scan")

// regex compiles the pattern under the program-size cap and streams file
// text from the store, reporting the first match per file with line
// context. Cancellation is observed between files.
func (s *Searcher) regex(ctx context.Context, pattern string, opts Options) ([]Result, error) {
	re, err := compileBounded(pattern)
	if err != nil {
		return nil, err
	}

	contextLines := opts.ContextLines
	if contextLines <= 0 {
		contextLines = defaultContextLines
	}

	var taggedIDs map[int64]struct{}
	if opts.Filters.Tag != "" {
		taggedIDs, err = s.store.FileIDsWithTag(ctx, opts.Filters.Tag)
		if err != nil {
			return nil, err
		}
	}

	want := opts.Offset + opts.Limit
	var results []Result
	err = s.store.EachFileContent(ctx, 0, func(f *store.File, text string) error {
		if ctx.Err() != nil {
			return kerrors.Cancelled("regex search")
		}
		if !matchesFilters(f, opts.Filters, taggedIDs) {
			return nil
		}
		loc := re.FindStringIndex(text)
		if loc == nil || loc[0] == loc[1] {
			return nil
		}
		results = append(results, regexResult(f, text, loc, contextLines))
		if len(results) >= want {
			return errStopScan
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopScan) {
		return nil, err
	}
	return window(results, opts.Offset, opts.Limit), nil
}

// compileBounded parses the pattern, rejects programs over the size cap
// with a typed error, and only then builds the matcher.
func compileBounded(pattern string) (*regexp.Regexp, error) {
	parsed, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return nil, kerrors.InvalidInput(fmt.Sprintf("invalid regex %q: %v", pattern, err))
	}
	prog, err := syntax.Compile(parsed.Simplify())
	if err != nil {
		return nil, kerrors.InvalidInput(fmt.Sprintf("invalid regex %q: %v", pattern, err))
	}
	if size := len(prog.Inst); size > maxRegexProgram {
		return nil, kerrors.RegexTooLarge(pattern, size, maxRegexProgram)
	}
	return regexp.Compile(pattern)
}

func regexResult(f *store.File, text string, loc []int, contextLines int) Result {
	line := 1 + strings.Count(text[:loc[0]], "\n")
	lo, hi := lineBounds(text, loc[0], loc[1], contextLines)
	snippet := text[lo:loc[0]] + store.SnippetStart + text[loc[0]:loc[1]] + store.SnippetEnd + text[loc[1]:hi]
	return Result{
		FileID:   f.ID,
		RepoName: f.RepoName,
		RelPath:  f.RelPath,
		FileType: f.FileType,
		Score:    1,
		Snippet:  snippet,
		Line:     line,
		Mode:     ModeRegex,
	}
}

// lineBounds widens [start,end) to whole lines plus context lines on each
// side, without the trailing newline.
func lineBounds(text string, start, end, context int) (int, int) {
	lo := 0
	if i := strings.LastIndexByte(text[:start], '\n'); i >= 0 {
		lo = i + 1
	}
	for n := 0; n < context && lo > 0; n++ {
		if i := strings.LastIndexByte(text[:lo-1], '\n'); i >= 0 {
			lo = i + 1
		} else {
			lo = 0
		}
	}

	hi := len(text)
	if i := strings.IndexByte(text[end:], '\n'); i >= 0 {
		hi = end + i
	}
	for n := 0; n < context && hi < len(text); n++ {
		if i := strings.IndexByte(text[hi+1:], '\n'); i >= 0 {
			hi += 1 + i
		} else {
			hi = len(text)
		}
	}
	return lo, hi
}

// matchesFilters applies the store filters to a streamed file. The glob
// follows path.Match, where * stops at path separators.
func matchesFilters(f *store.File, flt store.Filters, taggedIDs map[int64]struct{}) bool {
	if flt.Repo != "" &&
		!strings.Contains(strings.ToLower(f.RepoName), strings.ToLower(flt.Repo)) {
		return false
	}
	if flt.FileType != "" && f.FileType != flt.FileType {
		return false
	}
	if flt.Extension != "" {
		ext := strings.ToLower(flt.Extension)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if !strings.HasSuffix(strings.ToLower(f.RelPath), ext) {
			return false
		}
	}
	if flt.PathGlob != "" {
		if ok, err := path.Match(flt.PathGlob, f.RelPath); err != nil || !ok {
			return false
		}
	}
	if taggedIDs != nil {
		if _, ok := taggedIDs[f.ID]; !ok {
			return false
		}
	}
	return true
}
