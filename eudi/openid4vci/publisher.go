package openid4vci

import "sync/atomic"

// Publisher holds the metadata documents currently served. Documents are never modified
// after publication; a reload publishes a new set.
type Publisher struct {
	current atomic.Pointer[Documents]
}

// Publish replaces the current documents and returns the ones it replaced, if any.
func (p *Publisher) Publish(docs *Documents) *Documents {
	return p.current.Swap(docs)
}

// Current returns the published documents, or nil if nothing was published yet.
func (p *Publisher) Current() *Documents {
	return p.current.Load()
}
