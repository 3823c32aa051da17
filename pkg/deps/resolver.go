package deps

import (
	"context"
	"errors"
	"slices"
	"time"

	wherrors "github.com/matzehuels/wheelhouse/pkg/errors"
	"github.com/matzehuels/wheelhouse/pkg/manifest"
	"github.com/matzehuels/wheelhouse/pkg/observability"
	"github.com/matzehuels/wheelhouse/pkg/pep440"
	"github.com/matzehuels/wheelhouse/pkg/requirement"
)

// Resolver turns root requirements into a pinned package set.
type Resolver struct {
	provider Provider
	opts     Options
}

// NewResolver creates a Resolver over p.
func NewResolver(p Provider, opts Options) *Resolver {
	return &Resolver{provider: p, opts: opts.WithDefaults()}
}

// Resolution is the outcome of a successful run.
type Resolution struct {
	// Packages are the lock entries, sorted by name.
	Packages []manifest.LockEntry

	// Rounds is the number of search steps taken.
	Rounds int
}

// Resolve runs one resolution. Each call gets its own Candidates cache.
//
// Errors: *ConflictError when no assignment exists,
// errors.ErrCodeResolutionTooComplex when Options.MaxRounds is exceeded,
// errors.ErrCodeNetwork when the provider fails with anything but
// ErrNotFound, and the context error on cancellation. No partial result is
// returned with an error.
func (r *Resolver) Resolve(ctx context.Context, roots []requirement.Requirement) (res *Resolution, err error) {
	run := &resolution{
		opts:  r.opts,
		cands: NewCandidates(r.provider),
	}

	start := time.Now()
	st := run.initial(roots)
	observability.Resolver().OnResolveStart(ctx, len(st.constraints))
	defer func() {
		n := 0
		if res != nil {
			n = len(res.Packages)
		}
		observability.Resolver().OnResolveComplete(ctx, n, run.rounds, time.Since(start), err)
	}()

	final, err := run.search(ctx, st)
	if err != nil {
		return nil, err
	}
	return &Resolution{Packages: emit(final), Rounds: run.rounds}, nil
}

type resolution struct {
	opts   Options
	cands  *Candidates
	rounds int
}

// initial builds the starting state from the roots that apply to the target
// environment.
func (r *resolution) initial(roots []requirement.Requirement) *state {
	st := newState()
	for _, req := range roots {
		if !req.Applies(r.opts.Environment, nil) {
			r.opts.Logger("skip %s: marker is false for the target", req)
			continue
		}
		st.addConstraint(constraint{req: req})
		st.mergeExtras(req.Name, req.Extras)
	}
	return st
}

// search is the state machine. Decisions are pushed on the trail; a
// conflict rewinds it to the newest frame with untried versions.
func (r *resolution) search(ctx context.Context, st *state) (*state, error) {
	var trail []frame
	r.prefetch(ctx, st.pending())

	for {
		if err := r.tick(ctx); err != nil {
			return nil, err
		}

		// SELECT
		name, compatible, conflict, err := r.selectNext(ctx, st)
		if err != nil {
			return nil, err
		}
		if name == "" {
			return st, nil
		}

		// TRY
		if conflict == nil {
			next, i, c, err := r.try(ctx, st, name, compatible)
			if err != nil {
				return nil, err
			}
			if next != nil {
				trail = append(trail, frame{name: name, version: compatible[i], alternatives: compatible[i+1:], before: st})
				st = next
				continue
			}
			conflict = c
		}

		// BACKTRACK
		r.opts.Logger("conflict on %s with %s", conflict.Package, st)
		for {
			if len(trail) == 0 {
				return nil, conflict
			}
			f := &trail[len(trail)-1]
			observability.Resolver().OnBacktrack(ctx, f.name, len(trail)-1)
			r.opts.Logger("backtrack %s==%s (%d alternatives)", f.name, f.version, len(f.alternatives))
			if len(f.alternatives) > 0 {
				next, i, c, err := r.try(ctx, f.before, f.name, f.alternatives)
				if err != nil {
					return nil, err
				}
				if next != nil {
					f.version = f.alternatives[i]
					f.alternatives = f.alternatives[i+1:]
					st = next
					break
				}
				conflict = c
			}
			trail = trail[:len(trail)-1]
		}
	}
}

// tick counts a round and enforces the round bound and cancellation.
func (r *resolution) tick(ctx context.Context) error {
	r.rounds++
	if r.rounds > r.opts.MaxRounds {
		return wherrors.New(wherrors.ErrCodeResolutionTooComplex, "resolution did not finish within %d rounds", r.opts.MaxRounds)
	}
	return ctx.Err()
}

// selectNext returns the undecided package with the fewest compatible
// versions, ties broken by name. An empty name means every constrained
// package is decided. A package without compatible versions is returned
// at once with its conflict.
func (r *resolution) selectNext(ctx context.Context, st *state) (string, []pep440.Version, *ConflictError, error) {
	var (
		best     string
		bestVers []pep440.Version
	)
	for _, name := range st.pending() {
		vs, missing, err := r.compatible(ctx, st, name)
		if err != nil {
			return "", nil, nil, err
		}
		if len(vs) == 0 {
			c := st.conflict(name)
			c.Missing = missing
			return name, nil, c, nil
		}
		if best == "" || len(vs) < len(bestVers) {
			best, bestVers = name, vs
		}
	}
	if best != "" {
		r.opts.Logger("select %s (%d candidates)", best, len(bestVers))
	}
	return best, bestVers, nil, nil
}

// compatible returns the versions of name allowed by every constraint,
// newest first. missing reports an unknown project.
func (r *resolution) compatible(ctx context.Context, st *state, name string) (vs []pep440.Version, missing bool, err error) {
	all, err := r.cands.Versions(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return nil, true, nil
	}
	if err != nil {
		return nil, false, r.fetchError(ctx, err, name)
	}
	set := st.specifiers(name)
	pre := r.opts.AllowPrereleases || set.NamesPrerelease()
	for _, v := range all {
		if set.Contains(v, pre) {
			vs = append(vs, v)
		}
	}
	return vs, false, nil
}

// try applies the first workable version of vs. It returns the new state
// and the index of the chosen version, or the conflict of the last version
// tried when none works.
func (r *resolution) try(ctx context.Context, st *state, name string, vs []pep440.Version) (*state, int, *ConflictError, error) {
	var last *ConflictError
	for i, v := range vs {
		if i > 0 {
			if err := r.tick(ctx); err != nil {
				return nil, 0, nil, err
			}
		}
		next, conflict, err := r.apply(ctx, st, name, v)
		if err != nil {
			return nil, 0, nil, err
		}
		if conflict == nil {
			r.opts.Logger("pin %s==%s", name, v)
			r.prefetch(ctx, next.pending())
			return next, i, nil, nil
		}
		r.opts.Logger("reject %s==%s: conflict on %s", name, v, conflict.Package)
		last = conflict
	}
	return nil, 0, last, nil
}

// activation is a decided package whose requested extras grew from old to
// now. A fresh decision activates with old == nil and fresh set.
type activation struct {
	name    string
	version pep440.Version
	old     []string
	now     []string
	fresh   bool
}

// apply decides name==v on a clone of st and adds the dependencies that
// decision activates. It reports a conflict when a new constraint excludes
// an already decided version.
func (r *resolution) apply(ctx context.Context, st *state, name string, v pep440.Version) (*state, *ConflictError, error) {
	next := st.clone()
	next.decided[name] = v
	queue := []activation{{name: name, version: v, now: next.extras[name], fresh: true}}

	for len(queue) > 0 {
		a := queue[0]
		queue = queue[1:]

		cand, err := r.cands.Get(ctx, a.name, a.version)
		if errors.Is(err, ErrNotFound) {
			c := next.conflict(a.name)
			c.Reason = "no metadata for " + a.name + "==" + a.version.String()
			return nil, c, nil
		}
		if err != nil {
			return nil, nil, r.fetchError(ctx, err, a.name)
		}
		for _, e := range a.now {
			if !cand.HasExtra(e) && !slices.Contains(a.old, e) {
				r.opts.Logger("%s==%s does not provide extra %q", a.name, a.version, e)
			}
		}

		for _, dep := range cand.Dependencies {
			if !dep.Applies(r.opts.Environment, a.now) {
				continue
			}
			if !a.fresh && dep.Applies(r.opts.Environment, a.old) {
				continue
			}
			next.addConstraint(constraint{req: dep, parent: a.name, parentVersion: a.version})

			if pinned, ok := next.decided[dep.Name]; ok && !dep.Specifiers.Contains(pinned, true) {
				c := next.conflict(dep.Name)
				c.Pinned = pinned.String()
				return nil, c, nil
			}
			if old, grew := next.mergeExtras(dep.Name, dep.Extras); grew {
				if pinned, ok := next.decided[dep.Name]; ok {
					queue = append(queue, activation{name: dep.Name, version: pinned, old: old, now: next.extras[dep.Name]})
				}
			}
		}
	}
	return next, nil, nil
}

// prefetch warms version lists in the background pool. Failures are only
// logged; the synchronous lookup that follows reports them.
func (r *resolution) prefetch(ctx context.Context, names []string) {
	if err := r.cands.Prefetch(ctx, names, r.opts.Workers); err != nil && ctx.Err() == nil {
		r.opts.Logger("prefetch: %v", err)
	}
}

func (r *resolution) fetchError(ctx context.Context, err error, name string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return wherrors.Wrap(wherrors.ErrCodeNetwork, err, "fetch metadata for %s", name)
}
