package stunnat

import "fmt"

// replyOutcome is the result of parsing and validating one probe reply
// against spec §4.E/§4.F's shared reply-validation rule: parse succeeds,
// transaction id equals the run's id, and message type is BindingResponse or
// BindingErrorResponse.
type replyOutcome struct {
	msg               *Message
	queryError        QueryError // Success iff msg is a usable BindingResponse
	serverErrorCode   int
	serverErrorPhrase string
}

// validateReply implements the reply-validation precedence from spec §7:
// parse failure and type/transaction-id problems are BadResponse/
// BadTransactionID; BindingErrorResponse is ServerError when it carries
// ERROR-CODE, else BadResponse.
func validateReply(data []byte, runID TransactionID) replyOutcome {
	msg, err := decodeMessage(data)
	if err != nil {
		return replyOutcome{queryError: BadResponse}
	}

	if msg.TransactionID != runID {
		return replyOutcome{queryError: BadTransactionID}
	}

	switch msg.Type {
	case BindingResponse:
		return replyOutcome{msg: msg, queryError: Success}
	case BindingErrorResponse:
		ec, ok := msg.Get(AttrErrorCode).(*errorCodeAttribute)
		if !ok {
			return replyOutcome{queryError: BadResponse}
		}
		return replyOutcome{
			queryError:        ServerError,
			serverErrorCode:   ec.Code(),
			serverErrorPhrase: ec.Phrase,
		}
	default:
		return replyOutcome{queryError: BadResponse}
	}
}

// errInternal wraps a non-protocol error (transport failure, encode
// failure) for callers that need a Go error rather than a QueryError.
func errInternal(step string, err error) error {
	return fmt.Errorf("stunnat: %s: %w", step, err)
}
