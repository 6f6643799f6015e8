// Package wire implements the relay wire protocol: parsing and encoding of
// the JSON-array frames exchanged with a Nostr relay, and the id/signature
// checks every inbound event must pass before it is trusted anywhere else
// in fitcore.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
)

// Errors surfaced by the codec. Protocol faults never propagate past the
// connection that produced them — callers of ParseInbound log and drop.
var (
	ErrBadFrame     = errors.New("wire: bad frame")
	ErrBadSignature = errors.New("wire: bad signature")
	ErrBadId        = errors.New("wire: bad id")
	ErrUnsupported  = errors.New("wire: unsupported message type")
)

// FrameKind identifies the first element of an inbound or outbound frame.
type FrameKind string

const (
	KindEvent  FrameKind = "EVENT"
	KindReq    FrameKind = "REQ"
	KindClose  FrameKind = "CLOSE"
	KindEOSE   FrameKind = "EOSE"
	KindOK     FrameKind = "OK"
	KindNotice FrameKind = "NOTICE"
	KindAuth   FrameKind = "AUTH"
)

// Frame is the parsed form of any inbound relay message. Exactly one of the
// typed fields is populated, selected by Kind.
type Frame struct {
	Kind FrameKind

	// EVENT <sub_id> <event>
	SubID string
	Event *nostr.Event

	// EOSE <sub_id>
	// (SubID populated, nothing else)

	// OK <event_id> <ok> <reason>
	EventID string
	OK      bool
	Reason  string

	// NOTICE <msg> / AUTH <challenge>
	Message string
}

// ParseInbound decodes a single relay frame. Malformed JSON or an unknown
// first element yields ErrBadFrame/ErrUnsupported; the caller is expected to
// log at warning and keep the connection open.
func ParseInbound(raw []byte) (Frame, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	if len(parts) == 0 {
		return Frame{}, fmt.Errorf("%w: empty frame", ErrBadFrame)
	}

	var label string
	if err := json.Unmarshal(parts[0], &label); err != nil {
		return Frame{}, fmt.Errorf("%w: non-string label: %v", ErrBadFrame, err)
	}

	switch FrameKind(label) {
	case KindEvent:
		if len(parts) != 3 {
			return Frame{}, fmt.Errorf("%w: EVENT wants 3 elements, got %d", ErrBadFrame, len(parts))
		}
		var subID string
		if err := json.Unmarshal(parts[1], &subID); err != nil {
			return Frame{}, fmt.Errorf("%w: EVENT sub_id: %v", ErrBadFrame, err)
		}
		var ev nostr.Event
		if err := json.Unmarshal(parts[2], &ev); err != nil {
			return Frame{}, fmt.Errorf("%w: EVENT payload: %v", ErrBadFrame, err)
		}
		return Frame{Kind: KindEvent, SubID: subID, Event: &ev}, nil

	case KindEOSE:
		if len(parts) != 2 {
			return Frame{}, fmt.Errorf("%w: EOSE wants 2 elements, got %d", ErrBadFrame, len(parts))
		}
		var subID string
		if err := json.Unmarshal(parts[1], &subID); err != nil {
			return Frame{}, fmt.Errorf("%w: EOSE sub_id: %v", ErrBadFrame, err)
		}
		return Frame{Kind: KindEOSE, SubID: subID}, nil

	case KindOK:
		if len(parts) != 4 {
			return Frame{}, fmt.Errorf("%w: OK wants 4 elements, got %d", ErrBadFrame, len(parts))
		}
		var id string
		var ok bool
		var reason string
		if err := json.Unmarshal(parts[1], &id); err != nil {
			return Frame{}, fmt.Errorf("%w: OK event_id: %v", ErrBadFrame, err)
		}
		if err := json.Unmarshal(parts[2], &ok); err != nil {
			return Frame{}, fmt.Errorf("%w: OK bool: %v", ErrBadFrame, err)
		}
		_ = json.Unmarshal(parts[3], &reason) // reason is best-effort
		return Frame{Kind: KindOK, EventID: id, OK: ok, Reason: reason}, nil

	case KindNotice:
		if len(parts) != 2 {
			return Frame{}, fmt.Errorf("%w: NOTICE wants 2 elements, got %d", ErrBadFrame, len(parts))
		}
		var msg string
		if err := json.Unmarshal(parts[1], &msg); err != nil {
			return Frame{}, fmt.Errorf("%w: NOTICE message: %v", ErrBadFrame, err)
		}
		return Frame{Kind: KindNotice, Message: msg}, nil

	case KindAuth:
		if len(parts) != 2 {
			return Frame{}, fmt.Errorf("%w: AUTH wants 2 elements, got %d", ErrBadFrame, len(parts))
		}
		var challenge string
		if err := json.Unmarshal(parts[1], &challenge); err != nil {
			return Frame{}, fmt.Errorf("%w: AUTH challenge: %v", ErrBadFrame, err)
		}
		return Frame{Kind: KindAuth, Message: challenge}, nil

	default:
		return Frame{}, fmt.Errorf("%w: %s", ErrUnsupported, label)
	}
}

// EncodeReq builds an outbound REQ frame for one or more filters.
func EncodeReq(subID string, filters ...nostr.Filter) ([]byte, error) {
	parts := make([]interface{}, 0, len(filters)+2)
	parts = append(parts, string(KindReq), subID)
	for _, f := range filters {
		parts = append(parts, f)
	}
	return json.Marshal(parts)
}

// EncodeClose builds an outbound CLOSE frame.
func EncodeClose(subID string) ([]byte, error) {
	return json.Marshal([]interface{}{string(KindClose), subID})
}

// EncodeEvent builds an outbound EVENT frame carrying a signed event.
func EncodeEvent(ev *nostr.Event) ([]byte, error) {
	return json.Marshal([]interface{}{string(KindEvent), ev})
}

// Verify recomputes the canonical id and checks the Schnorr signature.
// Events failing either check must be dropped at ingress (spec §3).
func Verify(ev *nostr.Event) error {
	if ev == nil {
		return fmt.Errorf("%w: nil event", ErrBadId)
	}
	if got := ev.GetID(); got != ev.ID {
		return fmt.Errorf("%w: computed %s, have %s", ErrBadId, got, ev.ID)
	}
	ok, err := ev.CheckSignature()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if !ok {
		return fmt.Errorf("%w: signature does not verify", ErrBadSignature)
	}
	return nil
}
