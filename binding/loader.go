package binding

import (
	"net/http"
	"time"

	"github.com/piprate/json-gold/ld"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// LoaderOpt configures the document loader.
type LoaderOpt func(*loaderOptions)

type loaderOptions struct {
	httpClient *http.Client
	documents  map[string]interface{}
}

// WithHTTPClient sets the HTTP client used to fetch remote contexts.
func WithHTTPClient(client *http.Client) LoaderOpt {
	return func(o *loaderOptions) {
		o.httpClient = client
	}
}

// WithPreloadedDocument registers a context document under the given URL so
// it is served from the cache and never fetched.
func WithPreloadedDocument(url string, document interface{}) LoaderOpt {
	return func(o *loaderOptions) {
		o.documents[url] = document
	}
}

// NewDocumentLoader returns a caching JSON-LD document loader. Remote fetches
// go through an instrumented HTTP client; preloaded documents are served
// without touching the network.
func NewDocumentLoader(opts ...LoaderOpt) ld.DocumentLoader {
	options := &loaderOptions{
		documents: make(map[string]interface{}),
	}
	for _, opt := range opts {
		opt(options)
	}

	client := options.httpClient
	if client == nil {
		client = &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	loader := ld.NewCachingDocumentLoader(ld.NewDefaultDocumentLoader(client))
	for url, doc := range options.documents {
		loader.AddDocument(url, doc)
	}
	return loader
}
