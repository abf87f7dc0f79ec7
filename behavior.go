package stunnat

import (
	"time"

	"go.uber.org/zap"
)

// runBehaviorDiscovery drives the RFC 5780 mapping/filtering tests described
// in spec §4.F. All probes in the run share one transaction id whose first 4
// octets are the magic cookie.
func runBehaviorDiscovery(t Transport, server *Endpoint, queryType QueryType, cfg Config) (*QueryResult, error) {
	runID, err := newBehaviorTransactionID()
	if err != nil {
		return nil, errInternal("generating behavior transaction id", err)
	}

	e := &behaviorRun{
		t:       t,
		server:  server,
		runID:   runID,
		cfg:     cfg,
		log:     cfg.logger(),
		timeout: cfg.receiveTimeout(),
	}
	result := &QueryResult{
		QueryType:        queryType,
		DiscoveryVariant: Rfc5780,
		ServerEndpoint:   server,
		LocalEndpoint:    t.LocalEndpoint(),
	}
	return e.run(result, queryType)
}

type behaviorRun struct {
	t       Transport
	server  *Endpoint
	runID   TransactionID
	cfg     Config
	log     *runLogger
	timeout time.Duration
}

// send mirrors classicRun.send: build, send, wait once, validate.
func (e *behaviorRun) send(dest *Endpoint, changeIP, changePort bool) (*Message, QueryError, *replyOutcome, error) {
	msg := NewMessage(BindingRequest, e.runID)
	if changeIP || changePort {
		msg.Add(newChangeRequestAttribute(changeIP, changePort))
	}
	data, err := msg.encode()
	if err != nil {
		return nil, 0, nil, errInternal("encoding BindingRequest", err)
	}

	e.log.probe("send binding request", zap.String("dest", dest.String()), zap.Bool("change_ip", changeIP), zap.Bool("change_port", changePort))

	if err := e.t.Send(data, dest); err != nil {
		return nil, 0, nil, errInternal("sending BindingRequest", err)
	}

	reply, err := e.t.Recv(time.Now().Add(e.timeout))
	if err != nil {
		return nil, 0, nil, errInternal("receiving reply", err)
	}
	if reply == nil {
		e.log.probe("recv timeout", zap.String("dest", dest.String()))
		return nil, Timeout, nil, nil
	}

	outcome := validateReply(reply, e.runID)
	e.log.probe("recv reply", zap.String("dest", dest.String()), zap.Stringer("query_error", outcome.queryError))
	return outcome.msg, outcome.queryError, &outcome, nil
}

func (e *behaviorRun) run(result *QueryResult, queryType QueryType) (*QueryResult, error) {
	// MT1
	msg, qerr, outcome, err := e.send(e.server, false, false)
	if err != nil {
		return nil, err
	}
	if qerr == Timeout {
		result.QueryError = Timeout
		return result, nil
	}
	if qerr != Success {
		return e.terminal(result, qerr, outcome), nil
	}

	xm1, ok := msg.Get(AttrXorMappedAddress).(*xorMappedAddressAttribute)
	if !ok {
		result.QueryError = BadResponse
		return result, nil
	}
	result.PublicEndpoint = &xm1.Endpoint

	if queryType == PublicIP {
		result.QueryError = Success
		return result, nil
	}

	other := otherServerEndpoint(msg)
	if other == nil {
		result.QueryError = NotSupported
		return result, nil
	}

	return e.afterMT1(result, queryType, xm1.Endpoint, other)
}

// otherServerEndpoint prefers OTHER-ADDRESS (RFC 5780) and falls back to
// CHANGED-ADDRESS (RFC 3489), matching the teacher's own fallback in its
// GetAlternateAddress helper.
func otherServerEndpoint(msg *Message) *Endpoint {
	if oa, ok := msg.Get(AttrOtherAddress).(*endpointAttribute); ok {
		return &oa.Endpoint
	}
	if ca, ok := msg.Get(AttrChangedAddress).(*endpointAttribute); ok {
		return &ca.Endpoint
	}
	return nil
}

func (e *behaviorRun) afterMT1(result *QueryResult, queryType QueryType, xm1 Endpoint, other *Endpoint) (*QueryResult, error) {
	mapping, err := e.mappingTest(result, xm1, other)
	if err != nil {
		return nil, err
	}
	if mapping == MappingUnspecified {
		// mappingTest already populated a non-Success terminal outcome.
		return result, nil
	}
	result.MappingBehavior = mapping

	if queryType == OpenNAT {
		result.QueryError = Success
		if mapping == NoMapping {
			result.NATType = OpenInternet
		} else {
			result.NATType = Unspecified
		}
		return result, nil
	}

	if mapping != NoMapping && mapping != MappingEndpointIndependent {
		// Symmetric mapping already determines the verdict; the filtering
		// test still runs (spec §4.F runs it unconditionally) but cannot
		// change a Symmetric verdict, so a filtering-test protocol error
		// (but not an internal transport error) is swallowed rather than
		// overriding the verdict that is already fully determined.
		filtering, _, err := e.filteringTest(result)
		if err != nil {
			return nil, err
		}
		result.FilteringBehavior = filtering
		result.QueryError = Success
		result.NATType = Symmetric
		e.log.verdict("behavior discovery terminal", zap.Stringer("nat_type", result.NATType), zap.Stringer("mapping", mapping))
		return result, nil
	}

	filtering, qerr, err := e.filteringTest(result)
	if err != nil {
		return nil, err
	}
	if qerr != Success {
		result.QueryError = qerr
		return result, nil
	}
	result.FilteringBehavior = filtering
	result.QueryError = Success

	if mapping == NoMapping {
		result.NATType = OpenInternet
	} else {
		switch filtering {
		case FilteringEndpointIndependent:
			result.NATType = FullCone
		case FilteringAddressDependent:
			result.NATType = Restricted
		case FilteringAddressAndPortDependent:
			result.NATType = PortRestricted
		}
	}
	e.log.verdict("behavior discovery terminal", zap.Stringer("nat_type", result.NATType), zap.Stringer("mapping", mapping), zap.Stringer("filtering", filtering))
	return result, nil
}

// mappingTest runs MT2 and, if needed, MT3. It writes a non-Success
// QueryError directly onto result and returns MappingUnspecified when the
// test cannot complete (timeout/BadResponse/etc. on MT2 or MT3).
func (e *behaviorRun) mappingTest(result *QueryResult, xm1 Endpoint, other *Endpoint) (MappingBehavior, error) {
	mt2Dest := &Endpoint{IP: other.IP, Port: e.server.Port}
	msg, qerr, outcome, err := e.send(mt2Dest, false, false)
	if err != nil {
		return MappingUnspecified, err
	}
	if qerr == Timeout {
		result.QueryError = Timeout
		return MappingUnspecified, nil
	}
	if qerr != Success {
		e.terminal(result, qerr, outcome)
		return MappingUnspecified, nil
	}
	xm2Attr, ok := msg.Get(AttrXorMappedAddress).(*xorMappedAddressAttribute)
	if !ok {
		result.QueryError = BadResponse
		return MappingUnspecified, nil
	}
	xm2 := xm2Attr.Endpoint

	if endpointEqual(&xm2, &xm1) {
		if result.LocalEndpoint != nil && endpointEqual(&xm1, result.LocalEndpoint) {
			return NoMapping, nil
		}
		return MappingEndpointIndependent, nil
	}

	// MT3
	msg, qerr, outcome, err = e.send(other, false, false)
	if err != nil {
		return MappingUnspecified, err
	}
	if qerr == Timeout {
		result.QueryError = Timeout
		return MappingUnspecified, nil
	}
	if qerr != Success {
		e.terminal(result, qerr, outcome)
		return MappingUnspecified, nil
	}
	xm3Attr, ok := msg.Get(AttrXorMappedAddress).(*xorMappedAddressAttribute)
	if !ok {
		result.QueryError = BadResponse
		return MappingUnspecified, nil
	}
	xm3 := xm3Attr.Endpoint

	if endpointEqual(&xm3, &xm2) {
		return MappingAddressDependent, nil
	}
	return MappingAddressAndPortDependent, nil
}

// filteringTest runs FT2 and, if needed, FT3, against the primary server.
func (e *behaviorRun) filteringTest(result *QueryResult) (FilteringBehavior, QueryError, error) {
	_, qerr, outcome, err := e.send(e.server, true, true)
	if err != nil {
		return FilteringUnspecified, 0, err
	}
	if qerr == Success {
		return FilteringEndpointIndependent, Success, nil
	}
	if qerr != Timeout {
		if qerr == ServerError && outcome != nil {
			result.ServerError = outcome.serverErrorCode
			result.ServerErrorPhrase = outcome.serverErrorPhrase
		}
		return FilteringUnspecified, qerr, nil
	}

	_, qerr, outcome, err = e.send(e.server, false, true)
	if err != nil {
		return FilteringUnspecified, 0, err
	}
	if qerr == Success {
		return FilteringAddressDependent, Success, nil
	}
	if qerr == Timeout {
		return FilteringAddressAndPortDependent, Success, nil
	}
	if qerr == ServerError && outcome != nil {
		result.ServerError = outcome.serverErrorCode
		result.ServerErrorPhrase = outcome.serverErrorPhrase
	}
	return FilteringUnspecified, qerr, nil
}

func (e *behaviorRun) terminal(result *QueryResult, qerr QueryError, outcome *replyOutcome) *QueryResult {
	result.QueryError = qerr
	if qerr == ServerError && outcome != nil {
		result.ServerError = outcome.serverErrorCode
		result.ServerErrorPhrase = outcome.serverErrorPhrase
	}
	e.log.verdict("behavior discovery terminal", zap.Stringer("query_error", qerr))
	return result
}
