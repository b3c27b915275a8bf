package extract

import "regexp"

// signal is one language/tool-specific failure detector. Kind classifies
// the match; fileRe, when non-nil, extracts a file path and line number
// from the matched line.
type signal struct {
	kind   kindFn
	re     *regexp.Regexp
	fileRe *regexp.Regexp // optional: extracts path + line from the signal line
}

type kindFn = string

const (
	kindAssertion  kindFn = "assertion"
	kindError      kindFn = "error"
	kindTimeout    kindFn = "timeout"
	kindSyntax     kindFn = "syntax"
	kindDependency kindFn = "dependency"
	kindPermission kindFn = "permission"
	kindNetwork    kindFn = "network"
)

// builtinSignals is the language-agnostic set of failure-signal
// detectors. Order matters: first match wins.
var builtinSignals = []signal{
	{kind: kindPermission, re: regexp.MustCompile(`(?i)permission denied`)},
	{kind: kindPermission, re: regexp.MustCompile(`(?i)EACCES`)},
	{kind: kindTimeout, re: regexp.MustCompile(`(?i)\btimed?[\s-]?out\b`)},
	{kind: kindTimeout, re: regexp.MustCompile(`(?i)context deadline exceeded`)},
	{kind: kindNetwork, re: regexp.MustCompile(`(?i)connection refused`)},
	{kind: kindNetwork, re: regexp.MustCompile(`(?i)could not resolve host`)},
	{kind: kindNetwork, re: regexp.MustCompile(`(?i)network is unreachable`)},
	{kind: kindDependency, re: regexp.MustCompile(`ModuleNotFoundError: No module named '([^']+)'`)},
	{kind: kindDependency, re: regexp.MustCompile(`(?i)cannot find module '([^']+)'`)},
	{kind: kindDependency, re: regexp.MustCompile(`(?i)package ([\w./\-]+) is not in GOROOT`)},
	{kind: kindSyntax, re: regexp.MustCompile(`(?i)SyntaxError:`)},
	{kind: kindSyntax, re: regexp.MustCompile(`(?i)syntax error`)},
	{
		kind:   kindAssertion,
		re:     regexp.MustCompile(`(?i)AssertionError`),
		fileRe: regexp.MustCompile(`File "([^"]+)", line (\d+)`),
	},
	{
		kind:   kindAssertion,
		re:     regexp.MustCompile(`(?i)\bassert(ion)? failed\b`),
		fileRe: regexp.MustCompile(`([^\s:]+\.\w+):(\d+)`),
	},
	{
		kind: kindError,
		re:   regexp.MustCompile(`(?i)\bpanic:`),
	},
	{
		kind: kindError,
		re:   regexp.MustCompile(`(?i)\bTraceback\b`),
	},
	{
		kind:   kindError,
		re:     regexp.MustCompile(`(?i)\bexception\b`),
		fileRe: regexp.MustCompile(`([^\s:]+\.\w+):(\d+)`),
	},
	{
		kind:   kindError,
		re:     regexp.MustCompile(`(?i)\berror\b`),
		fileRe: regexp.MustCompile(`([^\s:]+\.\w+):(\d+)`),
	},
	{
		kind: kindError,
		re:   regexp.MustCompile(`(?i)\bfail(ed|ure)?\b`),
	},
}

// stepHeaderRe matches the runner's step boundary header lines, e.g.
// "##[group]Run step name" or "[STEP] build / job / 2".
var stepHeaderRe = regexp.MustCompile(`(?:##\[group\]|\[STEP\]\s*)(.+)`)

// returnCodeRe matches the runner's step exit-code footer line.
var returnCodeRe = regexp.MustCompile(`(?i)##\[(?:error|endgroup)\].*exit code\s+(\d+)|return code:?\s+(\d+)`)

// workerPrefixRe demultiplexes interleaved parallel-worker output, e.g.
// "[worker-2] ..." prefixes. If no lines carry a prefix, the log is
// treated as a single stream.
var workerPrefixRe = regexp.MustCompile(`^\[(worker|runner)[- ]?(\d+)\]\s?(.*)$`)
