package models

// FetchKind итог получения исходного объявления
type FetchKind int

const (
	FetchOK FetchKind = iota
	FetchNotFound
	FetchFailed
	FetchTransportError
)

func (k FetchKind) String() string {
	switch k {
	case FetchOK:
		return "ok"
	case FetchNotFound:
		return "not_found"
	case FetchFailed:
		return "failed"
	case FetchTransportError:
		return "transport_error"
	}
	return "unknown"
}

// FetchResult результат GET /listings/{id}
type FetchResult struct {
	Kind       FetchKind
	Listing    *SourceListing
	StatusCode int
	Err        error
}

// CreateResult результат POST /listings
type CreateResult struct {
	OK         bool
	DraftID    string
	StatusCode int
	Message    string
	Err        error
}

// PublishResult результат PUT /listings/{id}
type PublishResult struct {
	OK         bool
	StatusCode int
	Message    string
	Err        error
}
