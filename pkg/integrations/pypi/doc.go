// Package pypi reads project metadata from the PyPI JSON API.
//
// [Client] implements the resolver's metadata provider:
//
//	client := pypi.NewClient(backend, pypi.Options{Python: "3.12"})
//	versions, err := client.ListVersions(ctx, "requests")
//	reqs, err := client.GetDependencies(ctx, "requests", versions[0])
//
// ListVersions reads /{name}/json and returns every release that has at
// least one non-yanked file whose requires-python admits the target
// interpreter. GetDependencies reads /{name}/{version}/json and parses
// info.requires_dist; entries that are not valid requirements, such as
// direct URL references, are skipped.
//
// Both responses are cached in reduced form through [integrations.Client],
// keyed per index URL, so a warm cache answers a full resolution offline.
package pypi
