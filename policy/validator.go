// Package policy implements the static security check applied to tool source
// before it is compiled.
//
// Checks run in a fixed order and stop at the first failure:
//
//  1. Denied constructs: named regular expressions over the raw source text
//     (process control, filesystem and system access, network access, unsafe
//     memory, reflection, dynamic evaluation, linker directives).
//  2. Imports: every import path must be in the allowlist.
//  3. Entry point: exactly one top-level func Execute must be declared.
//
// The check is best-effort pattern matching, not a containment proof. The
// restricted interpreter namespace in package compile is the actual boundary.
package policy

import (
	"go/parser"
	"go/token"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/jonwraymond/toolcompiler/tool"
)

// EntryPoint is the name of the function every tool must declare.
const EntryPoint = "Execute"

// ContextPackage is the import path under which tool.Context is exposed.
const ContextPackage = "toolctx"

// DefaultAllowedImports lists the packages tools may import: structured-data
// encoding, date/time, regular expressions, hashing, bounded async
// primitives, and pure string/number helpers.
var DefaultAllowedImports = []string{
	"bytes",
	"context",
	"crypto/md5",
	"crypto/sha1",
	"crypto/sha256",
	"encoding/base64",
	"encoding/csv",
	"encoding/hex",
	"encoding/json",
	"errors",
	"fmt",
	"hash/crc32",
	"hash/fnv",
	"math",
	"regexp",
	"sort",
	"strconv",
	"strings",
	"sync",
	"time",
	"unicode",
	"unicode/utf8",
	ContextPackage,
}

// DeniedPattern is a named construct rejected wherever it appears in source.
type DeniedPattern struct {
	Name    string
	Pattern *regexp.Regexp
}

// DefaultDeniedPatterns returns the built-in denylist.
func DefaultDeniedPatterns() []DeniedPattern {
	return []DeniedPattern{
		{"os/exec", regexp.MustCompile(`"os/exec"|\bexec\.Command(Context)?\s*\(`)},
		{"syscall", regexp.MustCompile(`"syscall"|\bsyscall\.`)},
		{"unsafe", regexp.MustCompile(`"unsafe"|\bunsafe\.Pointer`)},
		{"reflect", regexp.MustCompile(`"reflect"|\breflect\.`)},
		{"os", regexp.MustCompile(`"os"|\bos\.[A-Z]`)},
		{"io/ioutil", regexp.MustCompile(`"io/ioutil"|\bioutil\.`)},
		{"net", regexp.MustCompile(`"net(/[a-z/]+)?"|\bnet\.Dial|\bhttp\.(Get|Post|Head|NewRequest)\b`)},
		{"plugin", regexp.MustCompile(`"plugin"|\bplugin\.Open\s*\(`)},
		{"cgo", regexp.MustCompile(`import\s+"C"`)},
		{"go:linkname", regexp.MustCompile(`//\s*go:linkname`)},
		{"eval", regexp.MustCompile(`\bEval(WithContext|Path)?\s*\(|traefik/yaegi`)},
		{"runtime", regexp.MustCompile(`"runtime(/[a-z/]+)?"|\bruntime\.(Goexit|GC|LockOSThread|SetFinalizer)\b`)},
	}
}

// Option configures a Validator.
type Option func(*Validator)

// WithAllowedImports adds import paths to the allowlist.
func WithAllowedImports(paths ...string) Option {
	return func(v *Validator) {
		for _, p := range paths {
			v.allowed[p] = true
		}
	}
}

// WithDeniedPattern adds a named construct to the denylist.
func WithDeniedPattern(name string, pattern *regexp.Regexp) Option {
	return func(v *Validator) {
		if name == "" || pattern == nil {
			return
		}
		v.denied = append(v.denied, DeniedPattern{Name: name, Pattern: pattern})
	}
}

// Validator performs the static policy check. It is immutable after New and
// safe for concurrent use.
type Validator struct {
	denied  []DeniedPattern
	allowed map[string]bool
}

// New creates a Validator with the default policy plus any options.
func New(opts ...Option) *Validator {
	v := &Validator{
		denied:  DefaultDeniedPatterns(),
		allowed: make(map[string]bool, len(DefaultAllowedImports)),
	}
	for _, p := range DefaultAllowedImports {
		v.allowed[p] = true
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// AllowedImports returns the allowlist in sorted order.
func (v *Validator) AllowedImports() []string {
	out := make([]string, 0, len(v.allowed))
	for p := range v.allowed {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Validate checks source against the policy. It returns nil,
// *tool.SecurityViolation, or *tool.StructuralViolation.
func (v *Validator) Validate(source, toolID string) error {
	for _, d := range v.denied {
		if d.Pattern.MatchString(source) {
			return &tool.SecurityViolation{ToolID: toolID, Construct: d.Name}
		}
	}

	imports, err := Imports(source)
	if err != nil {
		return &tool.StructuralViolation{ToolID: toolID, Reason: "unparseable import section: " + err.Error()}
	}
	for _, path := range imports {
		if !v.allowed[path] {
			return &tool.SecurityViolation{ToolID: toolID, Construct: path, Import: true}
		}
	}

	switch n := len(entryPointDecl.FindAllStringIndex(source, -1)); {
	case n == 0:
		return &tool.StructuralViolation{ToolID: toolID, Reason: "missing entry point func " + EntryPoint}
	case n > 1:
		return &tool.StructuralViolation{ToolID: toolID, Reason: "multiple entry point declarations"}
	}
	return nil
}

var (
	entryPointDecl = regexp.MustCompile(`(?m)^func\s+` + EntryPoint + `\s*\(`)
	packageClause  = regexp.MustCompile(`(?m)^\s*package\s+[A-Za-z_]\w*`)
)

// WrapSource returns source with a "package main" clause prepended when it
// has none.
func WrapSource(source string) string {
	if packageClause.MatchString(source) {
		return source
	}
	return "package main\n\n" + source
}

// Imports returns the import paths declared by source, in order.
func Imports(source string) ([]string, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "tool.go", WrapSource(source), parser.ImportsOnly)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(file.Imports))
	for _, spec := range file.Imports {
		path, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			path = strings.Trim(spec.Path.Value, "`\"")
		}
		out = append(out, path)
	}
	return out, nil
}
