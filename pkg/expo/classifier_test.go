package expo_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-expo-notification-service/pkg/expo"
)

func classify(t *testing.T, status int, body string) (*expo.ResultHandler, error) {
	t.Helper()
	h, err := expo.Classify(&expo.RawResponse{StatusCode: status, Body: []byte(body)}, nil)
	require.NotNil(t, h)
	return h, err
}

func requirePushError(t *testing.T, err error) *expo.PushError {
	t.Helper()
	require.Error(t, err)
	var pushErr *expo.PushError
	require.True(t, errors.As(err, &pushErr), "expected *expo.PushError, got %T", err)
	return pushErr
}

func TestClassify_ServiceFailure(t *testing.T) {
	const rateBody = `{"errors":[{"code":"MESSAGE_RATE_EXCEEDED","message":"slow down"}]}`

	t.Run("Status Bucketing - every 4xx and 5xx routes identically", func(t *testing.T) {
		for _, status := range []int{400, 401, 429, 499, 500, 503, 504, 599} {
			_, err := classify(t, status, rateBody)
			pushErr := requirePushError(t, err)
			assert.Equal(t, expo.KindMessageRateExceeded, pushErr.Kind, "status %d", status)
			assert.Equal(t, "slow down", pushErr.Message, "status %d", status)
		}
	})

	t.Run("Success Statuses - ignore an errors envelope", func(t *testing.T) {
		for _, status := range []int{200, 201, 302} {
			h, err := classify(t, status, rateBody)
			require.NoError(t, err, "status %d", status)
			assert.False(t, h.HasErrors())
		}
	})

	t.Run("HTML Fallback - title becomes the message", func(t *testing.T) {
		body := "<html><head><title>504 Gateway Time-out</title></head><body>oops</body></html>"
		_, err := classify(t, 504, body)
		pushErr := requirePushError(t, err)
		assert.Equal(t, "504 Gateway Time-out", pushErr.Message)
		assert.Equal(t, expo.KindUnknown, pushErr.Kind)
	})

	t.Run("HTML Fallback - empty title keeps the body", func(t *testing.T) {
		body := "<html><head><title>  </title></head><body>upstream down</body></html>"
		_, err := classify(t, 502, body)
		pushErr := requirePushError(t, err)
		assert.Equal(t, expo.KindUnknown, pushErr.Kind)
		assert.Contains(t, pushErr.Message, "upstream down")
	})

	t.Run("Non JSON Without Title - unknown with body", func(t *testing.T) {
		_, err := classify(t, 502, "bad gateway")
		pushErr := requirePushError(t, err)
		assert.Equal(t, expo.KindUnknown, pushErr.Kind)
		assert.Contains(t, pushErr.Message, "bad gateway")
	})

	t.Run("Empty Body - unknown", func(t *testing.T) {
		_, err := classify(t, 500, "")
		pushErr := requirePushError(t, err)
		assert.ErrorIs(t, pushErr, expo.ErrUnknown)
		assert.Contains(t, pushErr.Message, "500")
	})

	t.Run("Known Codes - both casings", func(t *testing.T) {
		testCases := map[string]expo.ErrorKind{
			"INVALID_CREDENTIALS":   expo.KindInvalidCredentials,
			"InvalidCredentials":    expo.KindInvalidCredentials,
			"DEVICE_NOT_REGISTERED": expo.KindDeviceNotRegistered,
			"MESSAGE_TOO_BIG":       expo.KindMessageTooBig,
			"INTERNAL_SERVER_ERROR": expo.KindInternalServerError,
		}
		for code, want := range testCases {
			_, err := classify(t, 400, `{"errors":[{"code":"`+code+`","message":"boom"}]}`)
			pushErr := requirePushError(t, err)
			assert.Equal(t, want, pushErr.Kind, code)
		}
	})

	t.Run("Single Object Errors - accepted", func(t *testing.T) {
		_, err := classify(t, 401, `{"errors":{"code":"INVALID_CREDENTIALS","message":"bad token"}}`)
		assert.ErrorIs(t, err, expo.ErrInvalidCredentials)
	})

	t.Run("Details - appended and truncated", func(t *testing.T) {
		long := strings.Repeat("x", 600)
		_, err := classify(t, 400, `{"errors":[{"code":"MESSAGE_TOO_BIG","message":"too big","details":"`+long+`"}]}`)
		pushErr := requirePushError(t, err)
		assert.Equal(t, "too big: "+strings.Repeat("x", 500)+"...", pushErr.Message)

		_, err = classify(t, 400, `{"errors":[{"code":"MESSAGE_TOO_BIG","message":"too big","details":{"limit":4096}}]}`)
		pushErr = requirePushError(t, err)
		assert.Equal(t, `too big: {"limit":4096}`, pushErr.Message)
	})

	t.Run("Unknown Code - unknown embedding payload", func(t *testing.T) {
		body := `{"errors":[{"code":"SOMETHING_WEIRD","message":"huh"}]}`
		_, err := classify(t, 400, body)
		pushErr := requirePushError(t, err)
		assert.Equal(t, expo.KindUnknown, pushErr.Kind)
		assert.Contains(t, pushErr.Message, body)
	})

	t.Run("Missing Code Or Message - unknown", func(t *testing.T) {
		for _, body := range []string{
			`{"errors":[{"message":"no code"}]}`,
			`{"errors":[{"code":"INVALID_CREDENTIALS"}]}`,
			`{"errors":[]}`,
			`{}`,
		} {
			_, err := classify(t, 400, body)
			pushErr := requirePushError(t, err)
			assert.Equal(t, expo.KindUnknown, pushErr.Kind, body)
		}
	})

	t.Run("Nil Response - unknown", func(t *testing.T) {
		h, err := expo.Classify(nil, nil)
		require.NotNil(t, h)
		assert.ErrorIs(t, err, expo.ErrUnknown)
	})
}

func TestClassify_Tickets(t *testing.T) {
	t.Run("Happy Path - all ok", func(t *testing.T) {
		h, err := classify(t, 200, `{"data":[{"status":"ok"}]}`)
		require.NoError(t, err)
		assert.False(t, h.HasErrors())
		assert.Empty(t, h.Errors())
		assert.Empty(t, h.ReceiptIDs())
	})

	t.Run("Happy Path - receipt ids in order", func(t *testing.T) {
		h, err := classify(t, 200, `{"data":[{"status":"ok","id":"a"},{"status":"ok","id":"b"}]}`)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, h.ReceiptIDs())
	})

	t.Run("Device Not Registered - error and token", func(t *testing.T) {
		const msg = `"ExponentPushToken[42]" is not a registered push notification recipient`
		body := `{"data":[{"status":"error","message":"\"ExponentPushToken[42]\" is not a registered push notification recipient","details":{"error":"DeviceNotRegistered"}}]}`

		h, err := classify(t, 200, body)
		require.NoError(t, err)
		require.Len(t, h.Errors(), 1)
		assert.Equal(t, expo.KindDeviceNotRegistered, h.Errors()[0].Kind)
		assert.Equal(t, msg, h.Errors()[0].Message)
		assert.ErrorIs(t, h.Errors()[0], expo.ErrDeviceNotRegistered)
		assert.Equal(t, []string{"ExponentPushToken[42]"}, h.InvalidPushTokens())
	})

	t.Run("Quoted Non-Token - not recorded as invalid", func(t *testing.T) {
		body := `{"data":[{"status":"error","message":"Could not find APNs credentials for \"com.example.app\" (@user/app).","details":{"error":"InvalidCredentials"}}]}`

		h, err := classify(t, 200, body)
		require.NoError(t, err)
		require.Len(t, h.Errors(), 1)
		assert.ErrorIs(t, h.Errors()[0], expo.ErrInvalidCredentials)
		assert.Empty(t, h.InvalidPushTokens())
	})

	t.Run("Quoted Bare Token - recorded as invalid", func(t *testing.T) {
		const token = "1a2b3c4d-0000-1111-2222-333344445555"
		body := `{"data":[{"status":"error","message":"\"` + token + `\" is not a registered push notification recipient","details":{"error":"DeviceNotRegistered"}}]}`

		h, err := classify(t, 200, body)
		require.NoError(t, err)
		assert.Equal(t, []string{token}, h.InvalidPushTokens())
	})

	t.Run("Mixed Batch - outcomes keep position", func(t *testing.T) {
		body := `{"data":[
			{"status":"ok","id":"r1"},
			{"status":"error","message":"\"ExponentPushToken[b]\" is not a registered push notification recipient","details":{"error":"DeviceNotRegistered"}},
			{"status":"ok","id":"r3"}
		]}`
		h, err := classify(t, 200, body)
		require.NoError(t, err)

		outcomes := h.Outcomes()
		require.Len(t, outcomes, 3)
		assert.Nil(t, outcomes[0].Err)
		assert.Equal(t, "r1", outcomes[0].ReceiptID)
		assert.ErrorIs(t, outcomes[1].Err, expo.ErrDeviceNotRegistered)
		assert.Nil(t, outcomes[2].Err)
		assert.Equal(t, []string{"r1", "r3"}, h.ReceiptIDs())
	})

	t.Run("Duplicate Errors - collapsed, tokens kept", func(t *testing.T) {
		entry := `{"status":"error","message":"\"ExponentPushToken[x]\" is not a registered push notification recipient","details":{"error":"DeviceNotRegistered"}}`
		h, err := classify(t, 200, `{"data":[`+entry+`,`+entry+`]}`)
		require.NoError(t, err)
		assert.Len(t, h.Errors(), 1)
		assert.Equal(t, []string{"ExponentPushToken[x]", "ExponentPushToken[x]"}, h.InvalidPushTokens())

		unique, err := expo.Classify(
			&expo.RawResponse{StatusCode: 200, Body: []byte(`{"data":[` + entry + `,` + entry + `]}`)},
			expo.NewResultHandler(expo.UniqueInvalidTokens()),
		)
		require.NoError(t, err)
		assert.Equal(t, []string{"ExponentPushToken[x]"}, unique.InvalidPushTokens())
	})

	t.Run("Missing Details - unknown with payload", func(t *testing.T) {
		body := `{"data":[{"status":"error","message":"Could not send","details":{"fault":"developer"}}]}`
		h, err := classify(t, 200, body)
		require.NoError(t, err)
		require.Len(t, h.Errors(), 1)
		assert.Equal(t, expo.KindUnknown, h.Errors()[0].Kind)
		assert.Contains(t, h.Errors()[0].Message, "Could not send")
	})

	t.Run("Missing Message - unknown", func(t *testing.T) {
		h, err := classify(t, 200, `{"data":[{"status":"error","details":{"error":"MessageTooBig"}}]}`)
		require.NoError(t, err)
		require.Len(t, h.Errors(), 1)
		assert.Equal(t, expo.KindUnknown, h.Errors()[0].Kind)
		assert.Contains(t, h.Errors()[0].Message, "missing message")
	})

	t.Run("Unknown Ticket Code - unknown with payload", func(t *testing.T) {
		body := `{"data":[{"status":"error","message":"m","details":{"error":"BrandNewError"}}]}`
		h, err := classify(t, 200, body)
		require.NoError(t, err)
		require.Len(t, h.Errors(), 1)
		assert.Equal(t, expo.KindUnknown, h.Errors()[0].Kind)
		assert.Contains(t, h.Errors()[0].Message, "BrandNewError")
	})

	t.Run("Unreadable Bodies - empty result", func(t *testing.T) {
		for _, body := range []string{"", "not json", `{"data":null}`, `{"data":"text"}`, `{}`} {
			h, err := classify(t, 200, body)
			require.NoError(t, err, body)
			assert.False(t, h.HasErrors(), body)
			assert.Empty(t, h.ReceiptIDs(), body)
		}
	})
}

func TestClassify_Receipts(t *testing.T) {
	t.Run("Mixed Receipts - wire order kept", func(t *testing.T) {
		body := `{"data":{"X":{"status":"error","message":"m","details":{"error":"DeviceNotRegistered"}},"Y":{"status":"ok"}}}`
		h, err := classify(t, 200, body)
		require.NoError(t, err)
		assert.Equal(t, []string{"X", "Y"}, h.ReceiptIDs())
		require.Len(t, h.Errors(), 1)
		assert.Equal(t, expo.KindDeviceNotRegistered, h.Errors()[0].Kind)

		outcomes := h.Outcomes()
		require.Len(t, outcomes, 2)
		assert.Equal(t, "X", outcomes[0].ReceiptID)
		assert.NotNil(t, outcomes[0].Err)
		assert.Equal(t, "Y", outcomes[1].ReceiptID)
		assert.Nil(t, outcomes[1].Err)
	})

	t.Run("Reverse Alphabetical - not sorted", func(t *testing.T) {
		h, err := classify(t, 200, `{"data":{"zz":{"status":"ok"},"aa":{"status":"ok"},"mm":{"status":"ok"}}}`)
		require.NoError(t, err)
		assert.Equal(t, []string{"zz", "aa", "mm"}, h.ReceiptIDs())
	})

	t.Run("Rate Exceeded Receipt - classified", func(t *testing.T) {
		body := `{"data":{"r":{"status":"error","message":"too fast","details":{"error":"MessageRateExceeded"}}}}`
		h, err := classify(t, 200, body)
		require.NoError(t, err)
		require.Len(t, h.Errors(), 1)
		assert.ErrorIs(t, h.Errors()[0], expo.ErrMessageRateExceeded)
		assert.Empty(t, h.InvalidPushTokens())
	})
}

func TestClassify_Idempotent(t *testing.T) {
	raw := &expo.RawResponse{
		StatusCode: 200,
		Body: []byte(`{"data":[
			{"status":"ok","id":"a"},
			{"status":"error","message":"\"ExponentPushToken[1]\" is not a registered push notification recipient","details":{"error":"DeviceNotRegistered"}},
			{"status":"error","message":"big","details":{"error":"MessageTooBig"}}
		]}`),
	}

	first, err := expo.Classify(raw, nil)
	require.NoError(t, err)
	second, err := expo.Classify(raw, nil)
	require.NoError(t, err)

	assert.Equal(t, first.ReceiptIDs(), second.ReceiptIDs())
	assert.Equal(t, first.Errors(), second.Errors())
	assert.Equal(t, first.InvalidPushTokens(), second.InvalidPushTokens())
	assert.Equal(t, first.Outcomes(), second.Outcomes())
}

func TestKindForCode(t *testing.T) {
	kind, ok := expo.KindForCode("MESSAGE_RATE_EXCEEDED")
	assert.True(t, ok)
	assert.Equal(t, expo.KindMessageRateExceeded, kind)

	kind, ok = expo.KindForCode("DeviceNotRegistered")
	assert.True(t, ok)
	assert.Equal(t, expo.KindDeviceNotRegistered, kind)

	kind, ok = expo.KindForCode("504")
	assert.False(t, ok)
	assert.Equal(t, expo.KindUnknown, kind)

	assert.Equal(t, "InvalidCredentials", expo.KindInvalidCredentials.String())
}

func TestPushError_Is(t *testing.T) {
	err := &expo.PushError{Kind: expo.KindMessageTooBig, Message: "too big"}

	assert.ErrorIs(t, err, expo.ErrMessageTooBig)
	assert.ErrorIs(t, err, &expo.PushError{Kind: expo.KindMessageTooBig, Message: "too big"})
	assert.NotErrorIs(t, err, &expo.PushError{Kind: expo.KindMessageTooBig, Message: "other"})
	assert.NotErrorIs(t, err, expo.ErrDeviceNotRegistered)
	assert.Equal(t, "expo: MessageTooBig: too big", err.Error())
}
