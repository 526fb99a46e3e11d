// Package protocol defines the JSON signaling messages exchanged between
// peers through the signaling server. Every message is a flat envelope with
// a type discriminator plus from/to routing fields; the server only reads
// the envelope and forwards payload bytes untouched.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Peercall/internal/domain"
)

// SchemaVersion is carried in every message so the wire format can evolve.
const SchemaVersion = 1

type Type string

const (
	TypeRegister   Type = "register"
	TypeCallOffer  Type = "call-offer"
	TypeCallAnswer Type = "call-answer"
	TypeCandidate  Type = "ice-candidate"
	TypeCallReject Type = "call-reject"
	TypeCallEnd    Type = "call-end"
)

var ErrMissingType = errors.New("signaling message without type")

// Message is the tagged union of all signaling payloads. Unused fields are
// omitted on the wire; which fields are meaningful depends on Type.
type Message struct {
	V    int           `json:"v"`
	Type Type          `json:"type"`
	From domain.UserID `json:"from,omitempty"`
	To   domain.UserID `json:"to,omitempty"`

	// call-offer / call-answer
	SDP         string `json:"sdp,omitempty"`
	CallType    string `json:"callType,omitempty"`
	DisplayName string `json:"displayName,omitempty"`

	// ice-candidate
	Candidate     string  `json:"candidate,omitempty"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode signaling message: %w", err)
	}
	if m.Type == "" {
		return Message{}, ErrMissingType
	}
	return m, nil
}

func (m Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode signaling message: %w", err)
	}
	return data, nil
}

func NewRegister(from domain.UserID) Message {
	return Message{V: SchemaVersion, Type: TypeRegister, From: from}
}

func NewCallOffer(from, to domain.UserID, sdp string, kind domain.CallKind, displayName string) Message {
	return Message{
		V:           SchemaVersion,
		Type:        TypeCallOffer,
		From:        from,
		To:          to,
		SDP:         sdp,
		CallType:    string(kind),
		DisplayName: displayName,
	}
}

func NewCallAnswer(from, to domain.UserID, sdp string) Message {
	return Message{V: SchemaVersion, Type: TypeCallAnswer, From: from, To: to, SDP: sdp}
}

func NewCallReject(from, to domain.UserID) Message {
	return Message{V: SchemaVersion, Type: TypeCallReject, From: from, To: to}
}

func NewCallEnd(from, to domain.UserID) Message {
	return Message{V: SchemaVersion, Type: TypeCallEnd, From: from, To: to}
}

// NewCandidate flattens a gathered local candidate into a message.
func NewCandidate(from, to domain.UserID, ci webrtc.ICECandidateInit) Message {
	m := Message{
		V:         SchemaVersion,
		Type:      TypeCandidate,
		From:      from,
		To:        to,
		Candidate: ci.Candidate,
	}
	if ci.SDPMid != nil {
		m.SDPMid = ci.SDPMid
	}
	if ci.SDPMLineIndex != nil {
		m.SDPMLineIndex = ci.SDPMLineIndex
	}
	return m
}

// CandidateInit rebuilds the pion candidate from a received ice-candidate
// message.
func (m Message) CandidateInit() webrtc.ICECandidateInit {
	ci := webrtc.ICECandidateInit{Candidate: m.Candidate}
	if m.SDPMid != nil {
		ci.SDPMid = m.SDPMid
	}
	if m.SDPMLineIndex != nil {
		ci.SDPMLineIndex = m.SDPMLineIndex
	}
	return ci
}

// Kind maps the offer's callType field, defaulting to audio for anything
// unrecognized so an older peer still gets a usable call.
func (m Message) Kind() domain.CallKind {
	if k := domain.CallKind(m.CallType); k.Valid() {
		return k
	}
	return domain.CallAudio
}
