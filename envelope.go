package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"unicode/utf8"
)

var (
	errInvalidUTF8 = errors.New("payload is not valid UTF-8")
	errNotObject   = errors.New("payload is not a JSON object")
)

// parseError carries the decode failure of an inbound payload.
type parseError struct {
	err error
}

func (e *parseError) Error() string { return e.err.Error() }

func (e *parseError) Unwrap() error { return e.err }

// envelope is an inbound message decoded permissively. Only the fields the
// router branches on are extracted. raw keeps the sender's JSON so it can
// be forwarded unmodified.
type envelope struct {
	raw json.RawMessage

	// text is the top-level "message" when it is a string.
	text string
	// nested is "message.message" when "message" is an object.
	nested string
	// url comes from the top level, or from the nested message object.
	url string

	clientID    string
	hasClientID bool
}

type nestedMessage struct {
	Message json.RawMessage `json:"message"`
	URL     json.RawMessage `json:"url"`
}

func parseEnvelope(b []byte) (*envelope, error) {
	if !utf8.Valid(b) {
		return nil, &parseError{errInvalidUTF8}
	}
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		// Let the decoder name syntax errors; valid non-objects are rejected.
		if !json.Valid(trimmed) {
			var v interface{}
			return nil, &parseError{json.Unmarshal(trimmed, &v)}
		}
		return nil, &parseError{errNotObject}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, &parseError{err}
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return nil, &parseError{err}
	}
	env := &envelope{raw: compact.Bytes()}

	if msg, ok := fields["message"]; ok {
		if s, ok := jsonString(msg); ok {
			env.text = s
		} else {
			var nm nestedMessage
			if json.Unmarshal(msg, &nm) == nil {
				env.nested, _ = jsonString(nm.Message)
				env.url, _ = jsonString(nm.URL)
			}
		}
	}
	if u, ok := jsonString(fields["url"]); ok && u != "" {
		env.url = u
	}
	if id, ok := fields["client_id"]; ok {
		env.clientID, _ = jsonString(id)
		env.hasClientID = truthy(id)
	}
	return env, nil
}

func jsonString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// truthy reports whether a JSON value counts as set: null, false, zero and
// the empty string do not.
func truthy(raw json.RawMessage) bool {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	}
	return true
}
