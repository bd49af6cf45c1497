// Package frame parses and formats the Engine.IO / Socket.IO text frames
// exchanged on a session.
//
// Prefixes used by this core:
//
//	0<json>   Engine.IO open with handshake data
//	2         Engine.IO ping
//	3         Engine.IO pong
//	40        Socket.IO connect
//	41        Socket.IO disconnect
//	42<n>[..] Socket.IO event, n is the message number
package frame

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	OpenPrefix  = "0"
	Ping        = "2"
	Pong        = "3"
	Connect     = "40"
	Disconnect  = "41"
	EventPrefix = "42"
)

// Handshake is the payload of the Engine.IO open frame. Field order is part
// of the wire contract; clients match on the serialized form.
type Handshake struct {
	Sid          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
}

// EncodeOpen serializes the handshake as an Engine.IO open frame.
func EncodeOpen(h Handshake) (string, error) {
	body, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("failed to marshal handshake: %w", err)
	}
	return OpenPrefix + string(body), nil
}

// EncodeConnect returns the Socket.IO connect frame. v4 clients expect the
// sid echoed in the frame body; v3 clients expect the bare prefix.
func EncodeConnect(v4 bool, sid string) string {
	if v4 {
		return fmt.Sprintf(`%s{"sid":"%s"}`, Connect, sid)
	}
	return Connect
}

// ParseError describes a malformed Socket.IO event frame. A parse error is
// fatal to the session that received the frame, never to the server.
type ParseError struct {
	Raw    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed socket.io frame %q: %s", e.Raw, e.Reason)
}

// ParseEvent extracts (event, payload) from a Socket.IO event frame. It
// accepts both the client form 42["event",payload] and the server form
// 42<n>["event",payload]. Quotes surrounding a string payload are stripped;
// a payload that begins with '{' or '[' is returned verbatim.
func ParseEvent(payload string) (string, string, error) {
	if len(payload) < 2 || payload[:2] != EventPrefix {
		return "", "", &ParseError{Raw: payload, Reason: "missing event prefix"}
	}

	body := payload[2:]
	bracket := strings.Index(body, "[")
	if bracket < 0 {
		return "", "", &ParseError{Raw: payload, Reason: "no leading bracket"}
	}
	if !strings.HasSuffix(body, "]") {
		return "", "", &ParseError{Raw: payload, Reason: "unterminated frame"}
	}
	comma := strings.Index(body, ",")
	if comma < 0 {
		return "", "", &ParseError{Raw: payload, Reason: "no comma separator"}
	}
	if comma-1 < bracket+2 || len(body) < comma+2 {
		return "", "", &ParseError{Raw: payload, Reason: "event name out of bounds"}
	}

	event := body[bracket+2 : comma-1]
	content := body[comma+1 : len(body)-1]
	if len(content) >= 2 && content[0] == '"' {
		content = content[1 : len(content)-1]
	}

	return event, content, nil
}

// FormatEvent renders an outbound event frame with the given message number.
// Payloads that already look like JSON objects or arrays pass through
// verbatim; anything else is treated as a string and quoted.
func FormatEvent(n int, event, payload string) string {
	if !strings.HasPrefix(payload, "{") && !strings.HasPrefix(payload, "[") {
		payload = `"` + payload + `"`
	}
	return fmt.Sprintf(`%s%d["%s",%s]`, EventPrefix, n, event, payload)
}
