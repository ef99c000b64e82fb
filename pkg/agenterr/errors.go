// Package agenterr registers the agent's sentinel errors. Every error the
// trading loops classify on is one of these, so callers can branch with
// errors.Is instead of string matching.
package agenterr

import (
	"cosmossdk.io/errors"
)

const codespace = "agent"

var (
	// ErrConfig covers missing or invalid configuration. Surfaced at startup
	// only and always fatal.
	ErrConfig = errors.Register(codespace, 2, "invalid configuration")

	// ErrTransport covers HTTP or socket failure talking to the gateway,
	// backend, or bundler. Retriable at the loop level.
	ErrTransport = errors.Register(codespace, 3, "transport failure")

	// ErrQuote means a quote could not be produced, typically because the
	// pool lacks liquidity to absorb the input.
	ErrQuote = errors.Register(codespace, 4, "quote unavailable")

	// ErrNoRoute means no pool or path connects the requested pair.
	ErrNoRoute = errors.Register(codespace, 5, "no route")

	// ErrSubmission means the bundler rejected the signed swap payload.
	ErrSubmission = errors.Register(codespace, 6, "swap submission rejected")

	// ErrExecutionTimeout means no terminal notification arrived within the
	// transaction timeout. On-chain state is unknown.
	ErrExecutionTimeout = errors.Register(codespace, 7, "transaction timed out")

	// ErrCancelled means the engine stopped mid-operation. Results carrying
	// it are not recorded to history.
	ErrCancelled = errors.Register(codespace, 8, "operation cancelled")
)
