package stunnat

import "time"

// DefaultReceiveTimeout is the per-probe deadline used when a Config does
// not override it.
const DefaultReceiveTimeout = 2000 * time.Millisecond

// Config carries the options spec §6 lists as "recognized options". It is
// never global or process-wide: each call to Query/QueryWithSocket takes its
// own Config, so concurrent runs never race over a shared timeout.
type Config struct {
	// ReceiveTimeout bounds each individual recv; it is applied
	// independently to every probe (spec §5).
	ReceiveTimeout time.Duration

	// LocalBind is the caller-supplied local interface. The zero value
	// means "any address, ephemeral port", which degrades the self-address
	// equality checks in the classic S1 step and the RFC 5780 mapping test
	// (spec §6).
	LocalBind *Endpoint

	// Logger receives one Debug event per probe sent, reply received and
	// recv timed out. Info events are logged only when a received reply
	// ends the run with ServerError, BadResponse or BadTransactionID, and
	// for the verdict of an RFC 5780 ExactNAT run; classic-procedure Success
	// verdicts, Timeout outcomes and the other early exits log no Info
	// event. The zero value is a no-op logger.
	Logger *runLogger
}

// DefaultConfig returns the package's recommended defaults.
func DefaultConfig() Config {
	return Config{ReceiveTimeout: DefaultReceiveTimeout}
}

func (c Config) receiveTimeout() time.Duration {
	if c.ReceiveTimeout <= 0 {
		return DefaultReceiveTimeout
	}
	return c.ReceiveTimeout
}

func (c Config) logger() *runLogger {
	if c.Logger == nil {
		return newNopRunLogger()
	}
	return c.Logger
}
