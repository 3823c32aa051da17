// Package deps resolves a set of root requirements into one concrete,
// conflict-free assignment of package versions.
//
// # Overview
//
// Resolution needs two things from the outside world: the releases of a
// project and the requirements each release declares. Both come from a
// [Provider]. wheelhouse ships two: the PyPI JSON API client in
// pkg/integrations/pypi and the in-memory [MemoryProvider], which also reads
// offline TOML index files.
//
//	r := deps.NewResolver(provider, deps.Options{
//	    Environment: marker.DefaultEnvironment("3.12"),
//	})
//	res, err := r.Resolve(ctx, roots)
//	lock := manifest.NewLock(m.Fingerprint(), "3.12", res.Packages)
//
// # Algorithm
//
// The resolver is a loop over an explicit trail of decisions, never
// recursion:
//
//  1. SELECT the undecided package with the fewest compatible versions,
//     ties broken by name.
//  2. TRY its compatible versions newest first. A version is accepted when
//     its marker-applicable dependencies agree with every package already
//     decided; they then become constraints and a decision frame is pushed.
//  3. On CONFLICT (a package with no compatible version, or no workable
//     version of the selected package) BACKTRACK to the most recent frame
//     with untried versions left and restore the state it recorded.
//  4. SUCCESS when every constrained package is decided; FAILURE with a
//     [*ConflictError] when the trail runs out.
//
// Backtracking is chronological. It can revisit the same dead end under
// different earlier decisions, which [Options.MaxRounds] bounds.
//
// # Markers and extras
//
// Root requirements whose markers are false for [Options.Environment] are
// dropped up front. A release's dependencies are evaluated with the union of
// extras requested for that package so far; when a later requirement asks
// for a new extra of an already decided package, the dependencies it
// enables are added at that point.
//
// # Caching
//
// Each run owns a [Candidates] cache: version lists and dependency metadata
// are fetched at most once per run, concurrent lookups are de-duplicated,
// and a bounded [Candidates.Prefetch] pool warms version lists for newly
// discovered packages. Nothing is shared between runs.
package deps
