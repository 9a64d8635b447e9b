package payment

import (
	"context"
	"testing"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOmise struct {
	source  *operations.CreateSource
	charge  *operations.CreateCharge
	charges map[string]*omise.Charge
}

func (f *fakeOmise) CreateSource(op *operations.CreateSource) (*omise.Source, error) {
	f.source = op
	return &omise.Source{Base: omise.Base{ID: "src_test_1"}}, nil
}

func (f *fakeOmise) CreateCharge(op *operations.CreateCharge) (*omise.Charge, error) {
	f.charge = op
	ch := &omise.Charge{Base: omise.Base{ID: "chrg_test_1"}, Amount: op.Amount, Currency: op.Currency, AuthorizeURI: "https://pay.example/authorize"}
	ch.Status = "pending"
	return ch, nil
}

func (f *fakeOmise) RetrieveCharge(id string) (*omise.Charge, error) {
	ch, ok := f.charges[id]
	if !ok {
		return nil, assert.AnError
	}
	return ch, nil
}

func TestOmiseCreatePayment(t *testing.T) {
	api := &fakeOmise{}
	p := newOmise(api, "")

	charge, err := p.CreatePayment(context.Background(), ChargeRequest{
		OrderID:     testOrderID,
		AmountCents: 300000,
		Currency:    "THB",
		ReturnURL:   "https://skibook.example/payments/return?order_id=" + testOrderID,
	})
	require.NoError(t, err)

	assert.Equal(t, "promptpay", api.source.Type)
	assert.Equal(t, "thb", api.charge.Currency)
	assert.Equal(t, "src_test_1", api.charge.Source)
	assert.Equal(t, testOrderID, api.charge.Metadata["order_id"])
	assert.Equal(t, "chrg_test_1", charge.PaymentID)
	assert.Equal(t, "https://pay.example/authorize", charge.PaymentURL)
	assert.Equal(t, "pending", charge.ProviderStatus)
}

func TestOmiseGetPayment_StatusMapping(t *testing.T) {
	failure := "insufficient_fund"
	tests := []struct {
		status string
		code   *string
		state  State
		reason string
	}{
		{"successful", nil, StateSucceeded, ""},
		{"pending", nil, StatePending, ""},
		{"failed", &failure, StateFailed, "insufficient_fund"},
		{"expired", nil, StateFailed, ReasonPaymentFailed},
		{"reversed", nil, StateFailed, ReasonPaymentFailed},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			ch := &omise.Charge{
				Base:        omise.Base{ID: "chrg_test_1"},
				Amount:      300000,
				Currency:    "thb",
				FailureCode: tt.code,
				Metadata:    map[string]interface{}{"order_id": testOrderID},
			}
			ch.Status = omise.ChargeStatus(tt.status)
			p := newOmise(&fakeOmise{charges: map[string]*omise.Charge{"chrg_test_1": ch}}, "")

			out, err := p.GetPayment(context.Background(), "chrg_test_1")
			require.NoError(t, err)
			assert.Equal(t, tt.state, out.State)
			assert.Equal(t, tt.reason, out.Reason)
			assert.Equal(t, testOrderID, out.OrderID)
			assert.Equal(t, "THB", out.Currency)
			assert.Equal(t, int64(300000), out.AmountCents)
		})
	}
}

func TestOmiseGetPayment_Unknown(t *testing.T) {
	p := newOmise(&fakeOmise{charges: map[string]*omise.Charge{}}, "")
	_, err := p.GetPayment(context.Background(), "chrg_forged")
	assert.Error(t, err)
}

func TestOmiseParseWebhook(t *testing.T) {
	p := newOmise(&fakeOmise{}, "")

	t.Run("charge event", func(t *testing.T) {
		ev, err := p.ParseWebhook([]byte(`{"object":"event","id":"evnt_1","key":"charge.complete","data":{"object":"charge","id":"chrg_test_1"}}`))
		require.NoError(t, err)
		assert.True(t, ev.Relevant)
		assert.Equal(t, "chrg_test_1", ev.PaymentID)
		assert.Equal(t, "charge.complete", ev.Type)
	})

	t.Run("other event", func(t *testing.T) {
		ev, err := p.ParseWebhook([]byte(`{"object":"event","id":"evnt_2","key":"customer.create","data":{"object":"customer","id":"cust_1"}}`))
		require.NoError(t, err)
		assert.False(t, ev.Relevant)
	})

	t.Run("malformed", func(t *testing.T) {
		for _, body := range []string{`not json`, `{"object":"charge","id":"chrg_1"}`, `{"object":"event","id":"evnt_3","key":"charge.complete","data":{"object":"charge"}}`} {
			_, err := p.ParseWebhook([]byte(body))
			assert.ErrorIs(t, err, ErrInvalidWebhook, body)
		}
	})
}
