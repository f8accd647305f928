// Package tool defines the data model shared by every layer of toolcompiler:
// tool definitions as stored by a source, compiled tools as held by the cache,
// the context injected into running tools, and the error taxonomy.
//
// # Tool Source Convention
//
// A tool is Go source interpreted at runtime. It must declare exactly one
// top-level entry point:
//
//	import "toolctx"
//
//	func Execute(ctx toolctx.Context, params map[string]any) (any, error)
//
// The package clause is optional; "package main" is assumed when absent.
// The toolctx package exposes [Context] to interpreted code.
//
// # Versioning
//
// A tool version is identified by the [Digest] of its source text. A compiled
// tool is immutable: a changed digest produces a new [Compiled], never a
// mutation of an existing one.
//
// # Errors
//
// Every failure kind has a sentinel (e.g. [ErrSecurityViolation]) and, where
// the failure carries data, a typed error matching that sentinel via errors.Is.
package tool
