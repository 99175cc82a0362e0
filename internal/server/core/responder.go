package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/Bataide/cip-enip-driver/internal/cip/protocol"
	"github.com/Bataide/cip-enip-driver/internal/enip"
	cipErrors "github.com/Bataide/cip-enip-driver/internal/errors"
	"github.com/Bataide/cip-enip-driver/internal/events"
	"github.com/Bataide/cip-enip-driver/internal/logging"
)

// ErrSessionMismatch is returned when a SendRRData carries a handle other
// than the one registered on its connection. The connection must be closed.
var ErrSessionMismatch = cipErrors.Violation("send rr data", "session handle does not match the registered session")

// ErrUnregistered is returned after the peer unregisters its session. The
// connection is closed.
var ErrUnregistered = errors.New("session unregistered by peer")

var processStart = time.Now()

// sinceStart reads the monotonic clock. Wall-clock steps never reach it.
func sinceStart() time.Duration {
	return time.Since(processStart)
}

// Responder answers the frames of one inbound connection. It is owned by
// the connection's reader goroutine.
type Responder struct {
	logger *logging.Logger
	remote string
	handle uint32
	clock  func() time.Duration
}

// NewResponder creates a responder for a connection from remote.
func NewResponder(remote string, logger *logging.Logger) *Responder {
	return &Responder{logger: logger, remote: remote, clock: sinceStart}
}

// SessionHandle returns the registered handle, 0 before RegisterSession.
func (r *Responder) SessionHandle() uint32 {
	return r.handle
}

// Handle maps one frame to its reply. A SendRRData write also yields the
// received tag data. A nil reply with a nil error means nothing is sent.
func (r *Responder) Handle(f enip.Frame) ([]byte, *events.TagData, error) {
	switch f.Header.Command {
	case enip.CommandNOP:
		return nil, nil, nil

	case enip.CommandListServices:
		if len(f.Body) != 0 {
			return nil, nil, cipErrors.Schema("list services", "request carries %d body bytes", len(f.Body))
		}
		reply, err := enip.BuildListServicesReply(f.Header)
		return reply, nil, err

	case enip.CommandRegisterSession:
		return r.register(f)

	case enip.CommandUnRegisterSession:
		if f.Header.SessionHandle != r.handle {
			return nil, nil, ErrSessionMismatch
		}
		r.logger.Verbose("Session 0x%08X unregistered by %s", r.handle, r.remote)
		r.handle = 0
		return nil, nil, ErrUnregistered

	case enip.CommandSendRRData:
		return r.sendRRData(f)

	default:
		return nil, nil, cipErrors.UnknownVariant("handle frame", "command %s not supported", f.Header.Command)
	}
}

func (r *Responder) register(f enip.Frame) ([]byte, *events.TagData, error) {
	body, err := enip.DecodeRegisterSession(f.Body)
	if err != nil {
		return nil, nil, err
	}
	if body.ProtocolVersion != enip.ProtocolVersion {
		h := f.Header
		h.Status = enip.StatusUnsupportedProtocol
		out, err := enip.EncodeBody(&enip.RegisterSession{ProtocolVersion: enip.ProtocolVersion})
		if err != nil {
			return nil, nil, err
		}
		reply, err := enip.EncodeFrame(h, out)
		if err != nil {
			return nil, nil, err
		}
		r.logger.Info("Rejected RegisterSession version %d from %s", body.ProtocolVersion, r.remote)
		return reply, nil, nil
	}

	// Microseconds of process uptime, truncated to 32 bits.
	handle := uint32(r.clock() / time.Microsecond)
	if handle == 0 {
		handle = 1
	}
	reply, err := enip.BuildRegisterSessionReply(f.Header, body, handle)
	if err != nil {
		return nil, nil, err
	}
	r.handle = handle
	r.logger.Verbose("Registered session 0x%08X for %s", handle, r.remote)
	return reply, nil, nil
}

func (r *Responder) sendRRData(f enip.Frame) ([]byte, *events.TagData, error) {
	if r.handle == 0 || f.Header.SessionHandle != r.handle {
		return nil, nil, fmt.Errorf("handle 0x%08X from %s: %w", f.Header.SessionHandle, r.remote, ErrSessionMismatch)
	}
	rr, err := enip.DecodeRRData(f.Body)
	if err != nil {
		return nil, nil, err
	}

	req, err := enip.DecodeWriteTag(rr)
	if err != nil {
		if cipErrors.KindOf(err) == cipErrors.KindUnknownVariant {
			// Unsupported embedded services still get a reply.
			reply, berr := enip.BuildSendRRDataReply(f.Header, rr, protocol.NewReply(protocol.ServiceWriteTagReply, protocol.StatusServiceNotSupported))
			if berr != nil {
				return nil, nil, berr
			}
			return reply, nil, err
		}
		return nil, nil, err
	}

	symbol, err := req.Envelope.Symbol()
	if err != nil {
		return nil, nil, err
	}
	td := &events.TagData{
		Remote:    r.remote,
		Symbol:    symbol,
		DataType:  req.Envelope.Data.DataType,
		Data:      req.Envelope.Data.Data,
		Timestamp: time.Now(),
	}

	reply, err := enip.BuildSendRRDataReply(f.Header, rr, protocol.NewReply(protocol.ServiceWriteTagReply, protocol.StatusSuccess))
	if err != nil {
		return nil, nil, err
	}
	return reply, td, nil
}
