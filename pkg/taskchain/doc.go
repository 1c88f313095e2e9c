// Package taskchain facilitates control flow for schedulers with a
// privileged "main" execution context, letting a pipeline of tasks hop
// between main and background contexts without deeply nested callbacks,
// while passing each task's result to the next.
//
// A Factory binds chains to an Executor, the provider that actually runs
// work on the main or a background context. Tasks are appended fluently with
// a declared affinity and execute strictly in append order; exactly one task
// per chain is in flight at any instant. A task terminates the whole chain
// deliberately by returning ErrAbort; any other failure reaches the chain's
// error handler and then aborts the chain the same way. The done callback
// fires exactly once with true (queue exhausted) or false (aborted).
//
// Shared chains, created through Factory.SharedChain, guarantee that two
// executions under the same logical name never overlap: executing while a
// round is already in flight is a silent no-op.
package taskchain
