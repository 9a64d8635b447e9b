package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
)

const ProviderOmise = "omise"

const metadataOrderID = "order_id"

// omiseAPI is the slice of the Omise client the provider calls.
type omiseAPI interface {
	CreateSource(op *operations.CreateSource) (*omise.Source, error)
	CreateCharge(op *operations.CreateCharge) (*omise.Charge, error)
	RetrieveCharge(id string) (*omise.Charge, error)
}

type omiseClient struct {
	c *omise.Client
}

func (o omiseClient) CreateSource(op *operations.CreateSource) (*omise.Source, error) {
	src := &omise.Source{}
	if err := o.c.Do(src, op); err != nil {
		return nil, err
	}
	return src, nil
}

func (o omiseClient) CreateCharge(op *operations.CreateCharge) (*omise.Charge, error) {
	ch := &omise.Charge{}
	if err := o.c.Do(ch, op); err != nil {
		return nil, err
	}
	return ch, nil
}

func (o omiseClient) RetrieveCharge(id string) (*omise.Charge, error) {
	ch := &omise.Charge{}
	if err := o.c.Do(ch, &operations.RetrieveCharge{ChargeID: id}); err != nil {
		return nil, err
	}
	return ch, nil
}

// Omise collects payments through an Omise source (promptpay, mobile
// banking) and a charge that redirects the client to authorize it.
type Omise struct {
	api        omiseAPI
	sourceType string
}

func NewOmise(publicKey, secretKey, sourceType string) (*Omise, error) {
	c, err := omise.NewClient(publicKey, secretKey)
	if err != nil {
		return nil, fmt.Errorf("create omise client: %w", err)
	}
	c.SetDebug(false)
	return newOmise(omiseClient{c: c}, sourceType), nil
}

func newOmise(api omiseAPI, sourceType string) *Omise {
	if sourceType == "" {
		sourceType = "promptpay"
	}
	return &Omise{api: api, sourceType: sourceType}
}

func (p *Omise) Name() string { return ProviderOmise }

func (p *Omise) CreatePayment(_ context.Context, req ChargeRequest) (*Charge, error) {
	currency := strings.ToLower(req.Currency)
	src, err := p.api.CreateSource(&operations.CreateSource{
		Type:     p.sourceType,
		Amount:   req.AmountCents,
		Currency: currency,
	})
	if err != nil {
		return nil, fmt.Errorf("omise create source: %w", err)
	}

	ch, err := p.api.CreateCharge(&operations.CreateCharge{
		Amount:      req.AmountCents,
		Currency:    currency,
		Source:      src.ID,
		Description: req.Description,
		ReturnURI:   req.ReturnURL,
		Metadata:    map[string]interface{}{metadataOrderID: req.OrderID},
	})
	if err != nil {
		return nil, fmt.Errorf("omise create charge: %w", err)
	}

	return &Charge{
		PaymentID:      ch.ID,
		PaymentURL:     ch.AuthorizeURI,
		ProviderStatus: string(ch.Status),
	}, nil
}

// GetPayment re-fetches the charge with the secret key. A forged webhook
// cannot make this return a charge the account does not own.
func (p *Omise) GetPayment(_ context.Context, paymentID string) (*Outcome, error) {
	ch, err := p.api.RetrieveCharge(paymentID)
	if err != nil {
		return nil, fmt.Errorf("omise retrieve charge %s: %w", paymentID, err)
	}
	return chargeOutcome(ch), nil
}

func chargeOutcome(ch *omise.Charge) *Outcome {
	out := &Outcome{
		Provider:       ProviderOmise,
		PaymentID:      ch.ID,
		ProviderStatus: string(ch.Status),
		AmountCents:    ch.Amount,
		Currency:       strings.ToUpper(ch.Currency),
	}
	if id, ok := ch.Metadata[metadataOrderID].(string); ok {
		out.OrderID = id
	}

	switch string(ch.Status) {
	case "successful":
		out.State = StateSucceeded
	case "failed", "expired", "reversed":
		out.State = StateFailed
		out.Reason = ReasonPaymentFailed
		if ch.FailureCode != nil && *ch.FailureCode != "" {
			out.Reason = *ch.FailureCode
		}
	default:
		out.State = StatePending
	}
	return out
}

type omiseEvent struct {
	Object string `json:"object"`
	ID     string `json:"id"`
	Key    string `json:"key"`
	Data   struct {
		Object string `json:"object"`
		ID     string `json:"id"`
	} `json:"data"`
}

// ParseWebhook reads an Omise event notification. Only charge events carry
// a payment outcome.
func (p *Omise) ParseWebhook(body []byte) (*WebhookEvent, error) {
	var ev omiseEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}
	if ev.Object != "event" || ev.ID == "" || ev.Key == "" {
		return nil, fmt.Errorf("%w: not an omise event", ErrInvalidWebhook)
	}

	out := &WebhookEvent{EventID: ev.ID, Type: ev.Key}
	if strings.HasPrefix(ev.Key, "charge.") && ev.Data.Object == "charge" {
		if ev.Data.ID == "" {
			return nil, fmt.Errorf("%w: charge event without charge id", ErrInvalidWebhook)
		}
		out.PaymentID = ev.Data.ID
		out.Relevant = true
	}
	return out, nil
}
