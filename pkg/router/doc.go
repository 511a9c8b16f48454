// Package router maps canonical navigation paths to persistent slot names.
//
// The router is a thin resolution layer: a set of route patterns is bound
// to slot names at startup, and Resolve answers, for any path, which slot
// (if any) the path activates. Resolution is pure and total: it never
// mutates router state, and every input produces a Match, never an error.
// An unrecognized path is an ordinary outcome, reported as an unmatched
// Match, not a failure.
//
// Patterns use the usual segment syntax:
//
//	/lineage            static segments
//	/checks/:id         parameter segment, captured into Match.Params
//	/files/*path        catch-all, consumes the remainder
//
// Bindings are validated eagerly: binding the same pattern twice, or two
// patterns that cannot be told apart, fails at Bind time so configuration
// errors surface at startup rather than during navigation.
//
// CanonicalizePath normalizes raw request paths before resolution and
// rejects malformed or hostile input (backslashes, NUL bytes, bad percent
// escapes, ".." escaping the root).
package router
