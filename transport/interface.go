package transport

import "context"

//go:generate mockgen -typed -package=transport -destination=./mocks.go -source=./interface.go

// Provider turns a pairing code into a listening Endpoint.
type Provider interface {
	// Open registers id with the rendezvous service. It fails with
	// ErrUnavailableID when another endpoint holds id.
	Open(ctx context.Context, id string) (Endpoint, error)
}

// CodeSource supplies the pairing code the endpoint is opened under.
type CodeSource interface {
	CurrentCode() (string, error)
	RegenerateCode() (string, error)
}
