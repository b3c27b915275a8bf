// Package autofix implements the auto fixer and the shared command
// allow-list / path policy consulted by template validation, fix
// generation, and the fixer itself.
package autofix

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/scottlz0310/ci-helper/internal/domain/ciherr"
)

// DefaultAllowList is the closed set of command names an auto-fix may
// execute: package installers, test runners, linters, formatters.
var DefaultAllowList = map[string]bool{
	"pip": true, "pip3": true, "npm": true, "yarn": true, "pnpm": true,
	"go": true, "cargo": true, "bundle": true, "composer": true,
	"pytest": true, "go test": true, "jest": true, "mocha": true, "rspec": true,
	"eslint": true, "golangci-lint": true, "gofmt": true, "black": true,
	"flake8": true, "prettier": true, "rustfmt": true,
}

// deniedPrefixes are path prefixes (relative to project root, after
// cleaning) that are always denied regardless of allow-list state.
var deniedPrefixes = []string{".git", ".ssh"}

// absoluteDenyDirs are absolute directories that may never be targeted.
var absoluteDenyDirs = []string{"/etc", "/root/.ssh"}

// Policy evaluates the command allow-list and path deny-list against
// a concrete project root.
type Policy struct {
	ProjectRoot string
	AllowList   map[string]bool
}

// NewPolicy returns a Policy using DefaultAllowList.
func NewPolicy(projectRoot string) *Policy {
	return &Policy{ProjectRoot: projectRoot, AllowList: DefaultAllowList}
}

// CommandAllowed reports whether argv[0] is on the allow-list.
func (p *Policy) CommandAllowed(argv []string) bool {
	if len(argv) == 0 {
		return false
	}
	return p.AllowList[argv[0]]
}

// NormalizePath cleans and resolves target relative to the project root,
// returning an error if it would escape the root.
func (p *Policy) NormalizePath(target string) (string, error) {
	if filepath.IsAbs(target) {
		return "", ciherr.New(ciherr.KindPolicy, fmt.Sprintf("absolute path %q is not allowed", target))
	}
	clean := filepath.Clean(filepath.Join(p.ProjectRoot, target))
	rootClean := filepath.Clean(p.ProjectRoot)
	if clean != rootClean && !strings.HasPrefix(clean, rootClean+string(filepath.Separator)) {
		return "", ciherr.New(ciherr.KindPolicy, fmt.Sprintf("path %q escapes project root", target))
	}
	rel, err := filepath.Rel(rootClean, clean)
	if err != nil {
		return "", ciherr.Wrap(ciherr.KindPolicy, fmt.Sprintf("path %q cannot be made relative to project root", target), err)
	}
	if isDenied(rel) {
		return "", ciherr.New(ciherr.KindPolicy, fmt.Sprintf("path %q targets a protected location", target))
	}
	return clean, nil
}

func isDenied(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, deny := range deniedPrefixes {
		if rel == deny || strings.HasPrefix(rel, deny+"/") {
			return true
		}
	}
	return false
}

// AbsolutePathDenied reports whether an already-resolved absolute path
// falls under a globally protected directory (/etc/ or /root/.ssh/).
// Paths outside the project root, and the root's own .git/ and .ssh/, are
// rejected earlier by NormalizePath.
func (p *Policy) AbsolutePathDenied(absPath string) bool {
	clean := filepath.Clean(absPath)
	for _, dir := range absoluteDenyDirs {
		if clean == dir || strings.HasPrefix(clean, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
