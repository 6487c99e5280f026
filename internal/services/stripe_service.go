package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/models"
	"github.com/stripe/stripe-go/v82"
)

const ProviderStripe = "stripe"

var (
	// ErrPaymentWithoutUser marks a payment that cannot be attributed to anyone;
	// redelivering it will not help.
	ErrPaymentWithoutUser         = errors.New("payment has no user")
	ErrPaymentProviderUnavailable = errors.New("payment provider not configured")
	// ErrNotRenewal marks an invoice that grants nothing on its own, such as the
	// first invoice of a subscription, which its checkout session already covers.
	ErrNotRenewal = errors.New("invoice is not a subscription renewal")
)

// Metadata keys the client sets when it opens a checkout session. Subscription
// checkouts copy them into the subscription metadata as well.
const (
	checkoutMetadataUserID = "user_id"
	checkoutMetadataPlanID = "plan_id"
)

type CheckoutSessionFetcher interface {
	FetchCheckoutSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error)
}

type StripeCheckoutClient struct {
	client *stripe.Client
}

func NewStripeCheckoutClient(secretKey string) *StripeCheckoutClient {
	return &StripeCheckoutClient{client: stripe.NewClient(secretKey)}
}

func (c *StripeCheckoutClient) FetchCheckoutSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error) {
	session, err := c.client.V1CheckoutSessions.Retrieve(ctx, sessionID, &stripe.CheckoutSessionRetrieveParams{})
	if err != nil {
		return nil, fmt.Errorf("retrieve checkout session: %w", err)
	}
	return session, nil
}

// PaymentEventFromCheckoutSession keys the event on the checkout session id so the
// webhook and the post-redirect confirmation of one purchase share a dedup key.
func PaymentEventFromCheckoutSession(session *stripe.CheckoutSession) (models.PaymentEvent, error) {
	if session == nil || session.ID == "" {
		return models.PaymentEvent{}, fmt.Errorf("%w: missing checkout session", ErrInvalidInput)
	}

	rawUserID := strings.TrimSpace(session.Metadata[checkoutMetadataUserID])
	if rawUserID == "" {
		rawUserID = strings.TrimSpace(session.ClientReferenceID)
	}
	userID, ok := parseUserID(rawUserID)
	if !ok {
		return models.PaymentEvent{}, fmt.Errorf("%w: checkout session %s", ErrPaymentWithoutUser, session.ID)
	}

	paymentStatus := string(session.PaymentStatus)
	completed := string(session.Status) == "complete" &&
		(paymentStatus == "paid" || paymentStatus == "no_payment_required")

	return models.PaymentEvent{
		Provider:  ProviderStripe,
		EventID:   session.ID,
		UserID:    userID,
		PlanID:    strings.TrimSpace(session.Metadata[checkoutMetadataPlanID]),
		Completed: completed,
	}, nil
}

// PaymentEventFromInvoice turns a paid subscription invoice into a renewal keyed
// on the invoice id. User and plan come from the subscription metadata, falling
// back to the invoice metadata and then to the price of the first line item.
func PaymentEventFromInvoice(invoice *stripe.Invoice) (models.PaymentEvent, error) {
	if invoice == nil || invoice.ID == "" {
		return models.PaymentEvent{}, fmt.Errorf("%w: missing invoice", ErrInvalidInput)
	}
	if invoice.Parent == nil || invoice.Parent.SubscriptionDetails == nil {
		return models.PaymentEvent{}, fmt.Errorf("%w: invoice %s has no subscription", ErrNotRenewal, invoice.ID)
	}
	if invoice.BillingReason == stripe.InvoiceBillingReasonSubscriptionCreate {
		return models.PaymentEvent{}, fmt.Errorf("%w: invoice %s opens the subscription", ErrNotRenewal, invoice.ID)
	}

	metadata := invoice.Parent.SubscriptionDetails.Metadata
	lookup := func(key string) string {
		if value := strings.TrimSpace(metadata[key]); value != "" {
			return value
		}
		return strings.TrimSpace(invoice.Metadata[key])
	}

	userID, ok := parseUserID(lookup(checkoutMetadataUserID))
	if !ok {
		return models.PaymentEvent{}, fmt.Errorf("%w: invoice %s", ErrPaymentWithoutUser, invoice.ID)
	}

	planID := lookup(checkoutMetadataPlanID)
	if planID == "" {
		planID = firstLinePriceID(invoice)
	}

	return models.PaymentEvent{
		Provider:  ProviderStripe,
		EventID:   invoice.ID,
		UserID:    userID,
		PlanID:    planID,
		Completed: invoice.Status == stripe.InvoiceStatusPaid,
	}, nil
}

func firstLinePriceID(invoice *stripe.Invoice) string {
	if invoice.Lines == nil {
		return ""
	}
	for _, line := range invoice.Lines.Data {
		if line == nil || line.Pricing == nil || line.Pricing.PriceDetails == nil {
			continue
		}
		if price := strings.TrimSpace(line.Pricing.PriceDetails.Price); price != "" {
			return price
		}
	}
	return ""
}

func parseUserID(raw string) (int64, bool) {
	userID, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || userID <= 0 {
		return 0, false
	}
	return userID, true
}

type paymentApplier interface {
	ApplyPayment(ctx context.Context, event models.PaymentEvent) (*models.PassGrantResult, error)
}

// PaymentService is the provider-facing side of the reconciler: it turns Stripe
// checkout sessions and subscription invoices into payment events.
type PaymentService struct {
	checkout   CheckoutSessionFetcher
	reconciler paymentApplier
}

func NewPaymentService(checkout CheckoutSessionFetcher, reconciler paymentApplier) *PaymentService {
	return &PaymentService{checkout: checkout, reconciler: reconciler}
}

// ConfirmCheckout is called by the client after the checkout redirect.
func (s *PaymentService) ConfirmCheckout(
	ctx context.Context,
	userID int64,
	sessionID string,
) (*models.PassGrantResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if userID <= 0 || sessionID == "" {
		return nil, ErrInvalidInput
	}
	if s.checkout == nil {
		return nil, ErrPaymentProviderUnavailable
	}

	session, err := s.checkout.FetchCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	event, err := PaymentEventFromCheckoutSession(session)
	if errors.Is(err, ErrPaymentWithoutUser) {
		return nil, ErrPaymentUserMismatch
	}
	if err != nil {
		return nil, err
	}
	if event.UserID != userID {
		return nil, ErrPaymentUserMismatch
	}
	return s.reconciler.ApplyPayment(ctx, event)
}

// ApplyCheckoutSession is the webhook path; the session arrives already verified.
func (s *PaymentService) ApplyCheckoutSession(
	ctx context.Context,
	session *stripe.CheckoutSession,
) (*models.PassGrantResult, error) {
	event, err := PaymentEventFromCheckoutSession(session)
	if err != nil {
		return nil, err
	}
	return s.reconciler.ApplyPayment(ctx, event)
}

// ApplySubscriptionInvoice renews the pass behind a subscription each billing
// period.
func (s *PaymentService) ApplySubscriptionInvoice(
	ctx context.Context,
	invoice *stripe.Invoice,
) (*models.PassGrantResult, error) {
	event, err := PaymentEventFromInvoice(invoice)
	if err != nil {
		return nil, err
	}
	return s.reconciler.ApplyPayment(ctx, event)
}
