package expo

import "slices"

// Outcome is the result of one ticket or receipt, in processing order.
// ReceiptID is empty for a failed ticket; Err is nil on success.
type Outcome struct {
	ReceiptID string
	Err       *PushError
}

// ResultHandler collects the outcome of one request. It is filled while the
// response is classified and must be treated as read-only afterwards.
type ResultHandler struct {
	receiptIDs    []string
	invalidTokens []string
	errs          []*PushError
	outcomes      []Outcome
	uniqueTokens  bool
}

// HandlerOption configures a ResultHandler.
type HandlerOption func(*ResultHandler)

// UniqueInvalidTokens records each invalid token once. By default every
// occurrence is kept, matching the number of failed tickets.
func UniqueInvalidTokens() HandlerOption {
	return func(h *ResultHandler) {
		h.uniqueTokens = true
	}
}

func NewResultHandler(opts ...HandlerOption) *ResultHandler {
	h := &ResultHandler{}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ReceiptIDs returns the collected ids in response order.
func (h *ResultHandler) ReceiptIDs() []string {
	return slices.Clone(h.receiptIDs)
}

// InvalidPushTokens returns tokens reported as invalid, in discovery order.
func (h *ResultHandler) InvalidPushTokens() []string {
	return slices.Clone(h.invalidTokens)
}

// Errors returns the distinct classified errors.
func (h *ResultHandler) Errors() []*PushError {
	return slices.Clone(h.errs)
}

func (h *ResultHandler) HasErrors() bool {
	return len(h.errs) > 0
}

func (h *ResultHandler) Outcomes() []Outcome {
	return slices.Clone(h.outcomes)
}

func (h *ResultHandler) addReceiptID(id string) {
	h.receiptIDs = append(h.receiptIDs, id)
}

func (h *ResultHandler) addError(e *PushError) {
	for _, existing := range h.errs {
		if existing.equal(e) {
			return
		}
	}
	h.errs = append(h.errs, e)
}

func (h *ResultHandler) addInvalidToken(token string) {
	if h.uniqueTokens && slices.Contains(h.invalidTokens, token) {
		return
	}
	h.invalidTokens = append(h.invalidTokens, token)
}

func (h *ResultHandler) addOutcome(id string, err *PushError) {
	h.outcomes = append(h.outcomes, Outcome{ReceiptID: id, Err: err})
}
