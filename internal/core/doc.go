// Package core runs the inference engines on behalf of the transports.
//
// The engines in dataset, kmeans, bayes, tree and reduct are pure functions
// of a context, a table and parameters. This package is the layer around
// them that both the HTTP server and the CLI share:
//
//   - [ComputeLimiter] bounds how many runs execute at once; a request waits
//     a bounded time for a slot before failing with ErrTooManyComputations.
//   - [Service] loads the uploaded table with the configured size and row
//     limits, applies the compute timeout, dispatches to one engine, and
//     records a [Run] in a [RunStore].
//   - [RunStore] keeps run metadata only: algorithm, parameters, table shape,
//     outcome code and duration. [MemoryRunStore] is the default;
//     [PostgresRunStore] is used when a database URL is configured.
//   - [MapError] turns engine errors into a [UserMessage] with a support code
//     and HTTP status.
//
// Expired history is purged by [Service.StartRetentionScheduler].
package core
