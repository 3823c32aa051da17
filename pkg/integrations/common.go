package integrations

import (
	"net/http"
	"time"

	"github.com/matzehuels/wheelhouse/pkg/buildinfo"
	"github.com/matzehuels/wheelhouse/pkg/cache"
)

const httpTimeout = 30 * time.Second

// UserAgent is sent with every index request.
var UserAgent = "wheelhouse/" + buildinfo.Version

var (
	// ErrNotFound is returned when a project or release doesn't exist on
	// the index. It is cache.ErrNotFound, so callers can match either.
	ErrNotFound = cache.ErrNotFound

	// ErrNetwork is returned for transport failures and unexpected
	// statuses. Transient ones are also wrapped with cache.Retryable.
	ErrNetwork = cache.ErrNetwork
)

// NewHTTPClient creates an HTTP client with a standard timeout for index
// requests.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: httpTimeout}
}
