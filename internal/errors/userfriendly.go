package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"strings"
)

// UserFriendlyError is how the CLI reports a failure: what failed, the
// likely reason, a hint and a command to try. Err keeps the original chain
// reachable through errors.Is and errors.As.
type UserFriendlyError struct {
	Message string
	Reason  string
	Hint    string
	Try     string
	Err     error
}

func (e UserFriendlyError) Error() string {
	lines := []string{e.Message}
	for _, field := range [...]struct{ label, text string }{
		{"Reason", e.Reason},
		{"Hint", e.Hint},
		{"Try", e.Try},
	} {
		if field.text != "" {
			lines = append(lines, fmt.Sprintf("  %s: %s", field.label, field.text))
		}
	}
	if e.Err != nil {
		lines = append(lines, "  Details: "+e.Err.Error())
	}
	return strings.Join(lines, "\n")
}

func (e UserFriendlyError) Unwrap() error {
	return e.Err
}

type diagnosis struct {
	reason string
	hint   string
}

// diagnose explains the failures the driver itself raises. Checks run from
// the most specific to the most general.
func diagnose(err error) (diagnosis, bool) {
	msg := err.Error()
	switch {
	case stderrors.Is(err, ErrTimeout) && strings.Contains(msg, "no reply"):
		return diagnosis{
			reason: "The controller accepted the write but did not answer within the send timeout",
			hint:   "Raise session.send_timeout_ms if the controller is slow, or check its load",
		}, true
	case stderrors.Is(err, ErrTimeout):
		return diagnosis{
			reason: "The peer stopped partway through a frame",
			hint:   "The link dropped bytes or the peer is not speaking EtherNet/IP",
		}, true
	case stderrors.Is(err, context.DeadlineExceeded):
		return diagnosis{
			reason: "No session was registered before --timeout ran out",
			hint:   "The controller may be offline, or it refuses RegisterSession",
		}, true
	case stderrors.Is(err, ErrProtocolViolation) && strings.Contains(msg, "over TCP"):
		return diagnosis{
			reason: "The ListServices reply does not advertise encapsulation over TCP",
			hint:   "This device cannot carry unconnected sends over TCP; point --remote-ip at a controller",
		}, true
	case stderrors.Is(err, ErrProtocolViolation) && strings.Contains(msg, "session handle"):
		return diagnosis{
			reason: "The session handle did not match the one the peer registered",
			hint:   "The peer restarted or dropped the session; the write can be retried",
		}, true
	case stderrors.Is(err, ErrProtocolViolation) && strings.Contains(msg, "register session"):
		return diagnosis{
			reason: "The controller refused RegisterSession",
			hint:   "It may not support encapsulation protocol version 1",
		}, true
	case strings.Contains(msg, "status 0x"):
		return diagnosis{
			reason: "The controller answered the write with a non-zero CIP general status",
			hint:   "Check that the symbol exists and that --type matches its declared type",
		}, true
	case stderrors.Is(err, ErrSchema):
		return diagnosis{
			reason: "A frame from the peer did not decode",
			hint:   "Capture the exchange with trace.pcap_file and inspect it",
		}, true
	}
	return diagnosis{}, false
}

// socketFailures maps dial and read errors to a reason.
var socketFailures = []struct {
	match  string
	reason string
}{
	{"connection refused", "Nothing accepted the connection on this port"},
	{"no route to host", "The host cannot be reached from this machine"},
	{"connection reset", "The peer reset the connection"},
	{"i/o timeout", "The TCP connect timed out"},
}

// WrapNetworkError explains a failure talking to the controller at ip:port.
func WrapNetworkError(err error, ip string, port int) error {
	if err == nil {
		return nil
	}

	d, ok := diagnose(err)
	if !ok {
		d = diagnosis{
			reason: "The connection to the controller failed",
			hint:   "Check that the controller listens for EtherNet/IP on this port",
		}
		for _, f := range socketFailures {
			if strings.Contains(err.Error(), f.match) {
				d.reason = f.reason
				break
			}
		}
	}
	return UserFriendlyError{
		Message: fmt.Sprintf("Failed to communicate with device at %s:%d", ip, port),
		Reason:  d.reason,
		Hint:    d.hint,
		Try:     fmt.Sprintf("cipenip send --remote-ip %s --remote-port %d --symbol TEST --type DINT --data 00000000", ip, port),
		Err:     err,
	}
}

// WrapCIPError explains a failed CIP operation such as a tag write.
func WrapCIPError(err error, operation string) error {
	if err == nil {
		return nil
	}

	d, ok := diagnose(err)
	if !ok {
		d = diagnosis{
			reason: "The controller rejected the request",
			hint:   "Run with --log-level debug to see the frames exchanged",
		}
	}
	return UserFriendlyError{
		Message: fmt.Sprintf("CIP operation failed: %s", operation),
		Reason:  d.reason,
		Hint:    d.hint,
		Err:     err,
	}
}

// WrapConfigError explains a configuration file that could not be used.
func WrapConfigError(err error, configPath string) error {
	if err == nil {
		return nil
	}

	if stderrors.Is(err, fs.ErrNotExist) {
		return UserFriendlyError{
			Message: fmt.Sprintf("Configuration file %s does not exist", configPath),
			Hint:    "Write the defaults there and edit them",
			Try:     fmt.Sprintf("cipenip config init --config %s", configPath),
			Err:     err,
		}
	}
	return UserFriendlyError{
		Message: fmt.Sprintf("Configuration error in %s", configPath),
		Reason:  err.Error(),
		Hint:    "Generate a starting point with: cipenip config init",
		Try:     fmt.Sprintf("cipenip config validate --config %s", configPath),
		Err:     err,
	}
}
