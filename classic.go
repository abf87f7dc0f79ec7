package stunnat

import (
	"time"

	"go.uber.org/zap"
)

// runClassicDiscovery drives the RFC 3489 binding/change-request state
// machine described in spec §4.E. The whole run shares one fully-random
// transaction id.
func runClassicDiscovery(t Transport, server *Endpoint, queryType QueryType, cfg Config) (*QueryResult, error) {
	runID, err := newClassicTransactionID()
	if err != nil {
		return nil, errInternal("generating classic transaction id", err)
	}

	e := &classicRun{
		t:        t,
		server:   server,
		runID:    runID,
		cfg:      cfg,
		log:      cfg.logger(),
		timeout:  cfg.receiveTimeout(),
	}
	result := &QueryResult{
		QueryType:        queryType,
		DiscoveryVariant: Rfc3489,
		ServerEndpoint:   server,
	}
	return e.run(result, queryType)
}

type classicRun struct {
	t       Transport
	server  *Endpoint
	runID   TransactionID
	cfg     Config
	log     *runLogger
	timeout time.Duration
}

// send builds a BindingRequest (optionally with CHANGE-REQUEST) over the
// run's transaction id, sends it to dest, and waits for a reply. It returns
// (nil, Timeout, nil, nil) on a timed-out recv and never retries.
func (e *classicRun) send(dest *Endpoint, changeIP, changePort bool) (*Message, QueryError, *replyOutcome, error) {
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

func (e *classicRun) run(result *QueryResult, queryType QueryType) (*QueryResult, error) {
	local := e.t.LocalEndpoint()
	result.LocalEndpoint = local

	// S0
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

	mapped, ok := msg.Get(AttrMappedAddress).(*endpointAttribute)
	if !ok {
		result.QueryError = BadResponse
		return result, nil
	}
	publicEndpoint := mapped.Endpoint
	result.PublicEndpoint = &publicEndpoint

	var changedAddr *Endpoint
	if ca, ok := msg.Get(AttrChangedAddress).(*endpointAttribute); ok {
		changedAddr = &ca.Endpoint
	}

	// S1
	if queryType == PublicIP {
		result.QueryError = Success
		return result, nil
	}

	sameAsLocal := local != nil && endpointEqual(&publicEndpoint, local)
	if sameAsLocal {
		return e.s2(result)
	}
	return e.s3(result, queryType, publicEndpoint, changedAddr)
}

// S2: no apparent NAT — probe whether UDP is filtered at all.
func (e *classicRun) s2(result *QueryResult) (*QueryResult, error) {
	_, qerr, outcome, err := e.send(e.server, true, true)
	if err != nil {
		return nil, err
	}
	switch qerr {
	case Timeout:
		result.QueryError = Success
		result.NATType = SymmetricUDPFirewall
		return result, nil
	case Success:
		result.QueryError = Success
		result.NATType = OpenInternet
		return result, nil
	default:
		return e.terminal(result, qerr, outcome), nil
	}
}

// S3: NAT present — does it forward replies from a different server address?
func (e *classicRun) s3(result *QueryResult, queryType QueryType, publicEndpoint Endpoint, changedAddr *Endpoint) (*QueryResult, error) {
	_, qerr, outcome, err := e.send(e.server, true, true)
	if err != nil {
		return nil, err
	}
	switch qerr {
	case Success:
		result.QueryError = Success
		result.NATType = FullCone
		return result, nil
	case Timeout:
		return e.s4(result, queryType, publicEndpoint, changedAddr)
	default:
		return e.terminal(result, qerr, outcome), nil
	}
}

// S4: is the external mapping stable across destination servers?
func (e *classicRun) s4(result *QueryResult, queryType QueryType, publicEndpoint Endpoint, changedAddr *Endpoint) (*QueryResult, error) {
	if queryType == OpenNAT {
		result.QueryError = Success
		result.NATType = Unspecified
		return result, nil
	}
	if changedAddr == nil {
		result.QueryError = BadResponse
		return result, nil
	}

	msg, qerr, outcome, err := e.send(changedAddr, false, false)
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

	mapped, ok := msg.Get(AttrMappedAddress).(*endpointAttribute)
	if !ok {
		result.QueryError = BadResponse
		return result, nil
	}

	if !endpointEqual(&mapped.Endpoint, &publicEndpoint) {
		result.QueryError = Success
		result.NATType = Symmetric
		result.PublicEndpoint = nil
		return result, nil
	}
	return e.s5(result, changedAddr)
}

// S5: does the NAT additionally filter by port?
func (e *classicRun) s5(result *QueryResult, changedAddr *Endpoint) (*QueryResult, error) {
	_, qerr, outcome, err := e.send(changedAddr, false, true)
	if err != nil {
		return nil, err
	}
	switch qerr {
	case Timeout:
		result.QueryError = Success
		result.NATType = PortRestricted
		return result, nil
	case Success:
		result.QueryError = Success
		result.NATType = Restricted
		return result, nil
	default:
		return e.terminal(result, qerr, outcome), nil
	}
}

func (e *classicRun) terminal(result *QueryResult, qerr QueryError, outcome *replyOutcome) *QueryResult {
	result.QueryError = qerr
	if qerr == ServerError && outcome != nil {
		result.ServerError = outcome.serverErrorCode
		result.ServerErrorPhrase = outcome.serverErrorPhrase
	}
	e.log.verdict("classic discovery terminal", zap.Stringer("query_error", qerr), zap.Stringer("nat_type", result.NATType))
	return result
}
