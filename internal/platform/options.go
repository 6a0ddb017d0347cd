package platform

type options struct {
	authorizeURL string
	tokenURL     string
	apiBaseURL   string
}

// Option overrides a provider endpoint, mostly so tests can point a client at httptest.
type Option func(*options)

func WithAuthorizeURL(u string) Option {
	return func(o *options) { o.authorizeURL = u }
}

func WithTokenURL(u string) Option {
	return func(o *options) { o.tokenURL = u }
}

func WithAPIBaseURL(u string) Option {
	return func(o *options) { o.apiBaseURL = u }
}

func buildOptions(defaults options, opts []Option) options {
	o := defaults
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
