package noisestream

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/noisestream/negotiate"
)

// stateKind tags which variant of the handshake state is active.
type stateKind uint8

const (
	// stateConsumed is held transiently while a Poll is advancing the
	// machine, and permanently once a terminal result has been reported.
	stateConsumed stateKind = iota
	stateFailed
	stateCompleted
	stateSuspended
)

// handshakeState is a tagged union: exactly one of err, session or cont is
// meaningful, selected by kind. Ownership of the transport moves through
// these variants and is never duplicated.
type handshakeState struct {
	kind    stateKind
	err     error
	session *negotiate.Session
	cont    *negotiate.Continuation
}

// Handshake is a secure-channel negotiation in progress. It owns the
// transport until a Poll reports a terminal result, at which point ownership
// moves to the returned SecureStream or the channel is abandoned.
//
// A Handshake must not be polled concurrently from multiple call sites.
type Handshake struct {
	state handshakeState
}

// newHandshake maps a negotiation outcome triple onto the initial state.
func newHandshake(session *negotiate.Session, cont *negotiate.Continuation, err error) *Handshake {
	switch {
	case err != nil:
		return failedHandshake(err)
	case session != nil:
		return &Handshake{state: handshakeState{kind: stateCompleted, session: session}}
	default:
		return &Handshake{state: handshakeState{kind: stateSuspended, cont: cont}}
	}
}

func failedHandshake(err error) *Handshake {
	return &Handshake{state: handshakeState{kind: stateFailed, err: err}}
}

// Poll advances the negotiation as far as the transport currently allows,
// without blocking, and reports one of three outcomes:
//
//   - (stream, true, nil): negotiation completed; the caller owns stream.
//   - (nil, true, err): negotiation failed terminally.
//   - (nil, false, nil): not ready yet; poll again once the transport may
//     have new data or capacity.
//
// A terminal result is delivered exactly once. Calling Poll again after it
// has returned done == true is a caller defect and panics; it is never
// reported through the error result.
func (h *Handshake) Poll() (*SecureStream, bool, error) {
	state := h.state
	h.state = handshakeState{kind: stateConsumed}

	switch state.kind {
	case stateConsumed:
		panic("noisestream: Poll called after handshake already returned its result")

	case stateFailed:
		logrus.WithFields(logrus.Fields{
			"function": "Handshake.Poll",
			"error":    state.err,
		}).Warn("Handshake failed")
		return nil, true, state.err

	case stateCompleted:
		return newSecureStream(state.session), true, nil

	default: // stateSuspended
		session, cont, err := state.cont.Step()
		switch {
		case err != nil:
			logrus.WithFields(logrus.Fields{
				"function": "Handshake.Poll",
				"error":    err,
			}).Warn("Handshake failed")
			return nil, true, err
		case session != nil:
			return newSecureStream(session), true, nil
		default:
			h.state = handshakeState{kind: stateSuspended, cont: cont}
			return nil, false, nil
		}
	}
}
