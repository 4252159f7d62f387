package expo

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTooManyMessages is returned before any request is made when a batch
// holds more than MaxBatchSize messages.
var ErrTooManyMessages = errors.New("expo: only 100 message objects at a time allowed")

// ErrorKind identifies one of the error classes the push service reports.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindDeviceNotRegistered
	KindMessageTooBig
	KindMessageRateExceeded
	KindInvalidCredentials
	KindInternalServerError
)

var kindNames = map[ErrorKind]string{
	KindUnknown:             "Unknown",
	KindDeviceNotRegistered: "DeviceNotRegistered",
	KindMessageTooBig:       "MessageTooBig",
	KindMessageRateExceeded: "MessageRateExceeded",
	KindInvalidCredentials:  "InvalidCredentials",
	KindInternalServerError: "InternalServerError",
}

// kindsByName is read-only after init.
var kindsByName = func() map[string]ErrorKind {
	m := make(map[string]ErrorKind, len(kindNames))
	for kind, name := range kindNames {
		m[name] = kind
	}
	return m
}()

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// KindForCode maps a wire error code to a kind. Codes may be PascalCase
// ("DeviceNotRegistered") or upper snake case ("DEVICE_NOT_REGISTERED").
// The boolean is false when the code is not part of the known set, in which
// case KindUnknown is returned.
func KindForCode(code string) (ErrorKind, bool) {
	if kind, ok := kindsByName[code]; ok {
		return kind, true
	}
	if kind, ok := kindsByName[pascalCase(code)]; ok {
		return kind, true
	}
	return KindUnknown, false
}

func pascalCase(code string) string {
	var b strings.Builder
	for _, word := range strings.Split(code, "_") {
		if word == "" {
			continue
		}
		b.WriteString(strings.ToUpper(word[:1]))
		b.WriteString(strings.ToLower(word[1:]))
	}
	return b.String()
}

// PushError is a classified error reported by the push service, either for
// a whole request or for a single ticket or receipt.
type PushError struct {
	Kind    ErrorKind
	Message string
}

// Sentinels for errors.Is. They match any PushError of the same kind.
var (
	ErrDeviceNotRegistered = &PushError{Kind: KindDeviceNotRegistered}
	ErrMessageTooBig       = &PushError{Kind: KindMessageTooBig}
	ErrMessageRateExceeded = &PushError{Kind: KindMessageRateExceeded}
	ErrInvalidCredentials  = &PushError{Kind: KindInvalidCredentials}
	ErrInternalServerError = &PushError{Kind: KindInternalServerError}
	ErrUnknown             = &PushError{Kind: KindUnknown}
)

func (e *PushError) Error() string {
	if e.Message == "" {
		return "expo: " + e.Kind.String()
	}
	return fmt.Sprintf("expo: %s: %s", e.Kind, e.Message)
}

// Is reports whether target is a PushError of the same kind. A target with
// a message only matches an error carrying that exact message.
func (e *PushError) Is(target error) bool {
	t, ok := target.(*PushError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

func (e *PushError) equal(other *PushError) bool {
	return e.Kind == other.Kind && e.Message == other.Message
}

// newUnknownError embeds the offending payload, and the decode failure when
// there is one, so the error stays debuggable.
func newUnknownError(payload string, cause error) *PushError {
	msg := "Unknown error format: " + payload
	if cause != nil {
		msg += ": " + cause.Error()
	}
	return &PushError{Kind: KindUnknown, Message: msg}
}

// kindRank orders kinds for the single-error output mode. Lower ranks win.
var kindRank = map[ErrorKind]int{
	KindInvalidCredentials:  0,
	KindMessageRateExceeded: 1,
	KindInternalServerError: 2,
	KindMessageTooBig:       3,
	KindDeviceNotRegistered: 4,
	KindUnknown:             5,
}

// mostSevere returns the highest ranked error, keeping discovery order on
// ties, or nil for an empty list.
func mostSevere(errs []*PushError) *PushError {
	var top *PushError
	for _, e := range errs {
		if top == nil || kindRank[e.Kind] < kindRank[top.Kind] {
			top = e
		}
	}
	return top
}
