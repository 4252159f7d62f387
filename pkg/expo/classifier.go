package expo

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// maxDetailsLength is the number of characters of a service error's details
// kept in the error message.
const maxDetailsLength = 500

var (
	htmlTitlePattern    = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	bracketTokenPattern = regexp.MustCompile(`Expo(?:nent)?PushToken\[[^\]]*\]`)
	quotedTokenPattern  = regexp.MustCompile(`"([^"]+)"`)
)

// RawResponse is what the transport hands back for one request. A nil Body
// means the response carried no body at all.
type RawResponse struct {
	StatusCode int
	Body       []byte
}

func (r *RawResponse) String() string {
	if r == nil {
		return "<nil response>"
	}
	if r.Body == nil {
		return fmt.Sprintf("{status: %d, body: <nil>}", r.StatusCode)
	}
	return fmt.Sprintf("{status: %d, body: %q}", r.StatusCode, r.Body)
}

// ticket is the per-message outcome of a send request. Receipts share the
// same shape.
type ticket struct {
	ID      string         `json:"id,omitempty"`
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details *ticketDetails `json:"details,omitempty"`
}

type ticketDetails struct {
	Error string `json:"error,omitempty"`
	Fault string `json:"fault,omitempty"`
}

type serviceError struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}

// Classify interprets one raw response. A non-nil error means the request
// failed as a whole; otherwise per-message outcomes are collected into h,
// which is created when nil. Classify performs no I/O.
func Classify(raw *RawResponse, h *ResultHandler) (*ResultHandler, error) {
	if h == nil {
		h = NewResultHandler()
	}
	if raw == nil {
		return h, newUnknownError(raw.String(), nil)
	}
	if isServiceFailure(raw.StatusCode) {
		return h, classifyServiceError(raw)
	}
	interpretBody(raw.Body, h)
	return h, nil
}

// isServiceFailure buckets on the leading digit only, so every 4xx and 5xx
// takes the failure path.
func isServiceFailure(status int) bool {
	s := strconv.Itoa(status)
	return s[0] == '4' || s[0] == '5'
}

func classifyServiceError(raw *RawResponse) *PushError {
	body := raw.Body
	if len(bytes.TrimSpace(body)) == 0 {
		return newUnknownError(raw.String(), nil)
	}

	var envelope struct {
		Errors json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		if title, ok := htmlTitle(body); ok && title != "" {
			kind, _ := KindForCode(strconv.Itoa(raw.StatusCode))
			return &PushError{Kind: kind, Message: title}
		}
		return newUnknownError(string(body), nil)
	}

	svcErr, ok := firstServiceError(envelope.Errors)
	if !ok || svcErr.Code == "" || svcErr.Message == "" {
		return newUnknownError(string(body), nil)
	}

	kind, known := KindForCode(svcErr.Code)
	if !known {
		return newUnknownError(string(body), nil)
	}

	msg := svcErr.Message
	if details := detailsText(svcErr.Details); details != "" {
		msg += ": " + details
	}
	return &PushError{Kind: kind, Message: msg}
}

// firstServiceError accepts either an array of errors or a single object.
func firstServiceError(data json.RawMessage) (serviceError, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return serviceError{}, false
	}
	var svcErr serviceError
	switch data[0] {
	case '[':
		var list []serviceError
		if err := json.Unmarshal(data, &list); err != nil || len(list) == 0 {
			return serviceError{}, false
		}
		svcErr = list[0]
	case '{':
		if err := json.Unmarshal(data, &svcErr); err != nil {
			return serviceError{}, false
		}
	default:
		return serviceError{}, false
	}
	return svcErr, true
}

func detailsText(details json.RawMessage) string {
	details = bytes.TrimSpace(details)
	if len(details) == 0 || string(details) == "null" {
		return ""
	}
	text := string(details)
	var s string
	if err := json.Unmarshal(details, &s); err == nil {
		text = s
	}
	if utf8.RuneCountInString(text) > maxDetailsLength {
		runes := []rune(text)
		text = string(runes[:maxDetailsLength]) + "..."
	}
	return text
}

func htmlTitle(body []byte) (string, bool) {
	m := htmlTitlePattern.FindSubmatch(body)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(string(m[1])), true
}

// interpretBody treats anything it cannot read as an empty result.
func interpretBody(body []byte, h *ResultHandler) {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 {
		return
	}
	switch data[0] {
	case '[':
		interpretTickets(data, h)
	case '{':
		interpretReceipts(data, h)
	}
}

func interpretTickets(data json.RawMessage, h *ResultHandler) {
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return
	}
	for _, entry := range entries {
		var t ticket
		if err := json.Unmarshal(entry, &t); err != nil {
			e := newUnknownError(string(entry), err)
			h.addError(e)
			h.addOutcome("", e)
			continue
		}
		if t.Status == "ok" {
			if t.ID != "" {
				h.addReceiptID(t.ID)
			}
			h.addOutcome(t.ID, nil)
			continue
		}
		e := classifyEntry(entry, t, h)
		h.addOutcome(t.ID, e)
	}
}

// interpretReceipts walks the object with a token decoder so receipt ids
// keep their wire order.
func interpretReceipts(data json.RawMessage, h *ResultHandler) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return
	}
	for dec.More() {
		key, err := dec.Token()
		if err != nil {
			return
		}
		id, ok := key.(string)
		if !ok {
			return
		}
		var entry json.RawMessage
		if err := dec.Decode(&entry); err != nil {
			return
		}
		h.addReceiptID(id)

		var r ticket
		if err := json.Unmarshal(entry, &r); err != nil {
			e := newUnknownError(string(entry), err)
			h.addError(e)
			h.addOutcome(id, e)
			continue
		}
		if r.Status == "ok" {
			h.addOutcome(id, nil)
			continue
		}
		h.addOutcome(id, classifyEntry(entry, r, h))
	}
}

// classifyEntry turns a failed ticket or receipt into a PushError, records
// it and any token named in its message.
func classifyEntry(raw json.RawMessage, t ticket, h *ResultHandler) *PushError {
	var e *PushError
	switch {
	case t.Message == "":
		e = newUnknownError(string(raw), errors.New("missing message"))
	case t.Details == nil || t.Details.Error == "":
		e = newUnknownError(string(raw), nil)
	default:
		kind, known := KindForCode(t.Details.Error)
		if known {
			e = &PushError{Kind: kind, Message: t.Message}
		} else {
			e = newUnknownError(string(raw), nil)
		}
	}
	h.addError(e)

	if token, ok := tokenFromMessage(t.Message); ok {
		h.addInvalidToken(token)
	}
	return e
}

// tokenFromMessage finds the push token a service message refers to, either
// in ExponentPushToken[...] form or as a double-quoted string that is itself
// a push token.
func tokenFromMessage(msg string) (string, bool) {
	if token := bracketTokenPattern.FindString(msg); token != "" {
		return token, true
	}
	// Other quoted strings (bundle ids, experience ids) are not tokens.
	if m := quotedTokenPattern.FindStringSubmatch(msg); m != nil && IsPushToken(m[1]) {
		return m[1], true
	}
	return "", false
}
