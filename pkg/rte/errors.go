package rte

import "github.com/cockroachdb/errors"

var (
	// TransferFailed is returned when an underlying stream transfer fails
	// part way. It is always fatal to the current connection; callers must
	// not retry over the same endpoint.
	TransferFailed = errors.New("[rte] - stream transfer failed")
	// InvalidParameter is returned when required configuration is missing or
	// malformed. It is detected before any network I/O takes place.
	InvalidParameter = errors.New("[rte] - invalid parameter")
	// AddressResolutionFailed is returned when the server hostname cannot be
	// resolved to a usable address. Client path only.
	AddressResolutionFailed = errors.New("[rte] - address resolution failed")
	// Unreachable is returned when a connection attempt fails after the
	// address resolved successfully.
	Unreachable = errors.New("[rte] - peer unreachable")
	// IOError is returned when socket creation, bind, listen, or accept
	// fails on the server path.
	IOError = errors.New("[rte] - socket operation failed")
)
