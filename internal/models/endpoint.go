package models

import "net/url"

type EndpointSource string

const (
	SourceFlag    EndpointSource = "flag"
	SourceDefault EndpointSource = "default"
	SourceHook    EndpointSource = "hook"
)

// Endpoint is the webhook every message of a run is posted to. The URL is
// the credential, so only Redacted should ever reach a log line.
type Endpoint struct {
	URL    string
	Name   string
	Source EndpointSource
}

func (e Endpoint) Redacted() string {
	u, err := url.Parse(e.URL)
	if err != nil || u.Host == "" {
		return "<invalid>"
	}
	return u.Scheme + "://" + u.Host + "/…"
}
