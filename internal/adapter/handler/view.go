package handler

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/carryo/job-intake/internal/core/domain"
	"github.com/carryo/job-intake/internal/core/service"
)

// DraftPatch is a partial draft update. Absent fields are left unchanged.
type DraftPatch struct {
	JobType              *string          `json:"job_type,omitempty"`
	Title                *string          `json:"title,omitempty"`
	PickupLocation       *domain.Location `json:"pickup_location,omitempty"`
	PickupContact        *domain.Contact  `json:"pickup_contact,omitempty"`
	DeliveryLocation     *domain.Location `json:"delivery_location,omitempty"`
	DeliveryContact      *domain.Contact  `json:"delivery_contact,omitempty"`
	ItemDescription      *string          `json:"item_description,omitempty"`
	ItemCategory         *string          `json:"item_category,omitempty"`
	ItemSize             *string          `json:"item_size,omitempty"`
	ItemWeight           *string          `json:"item_weight,omitempty"`
	CustomerPrice        *string          `json:"customer_price,omitempty"`
	PaymentType          *string          `json:"payment_type,omitempty"`
	ScheduledPickup      *time.Time       `json:"scheduled_pickup,omitempty"`
	ClearScheduledPickup bool             `json:"clear_scheduled_pickup,omitempty"`
}

// Edits converts the patch into draft edits, rejecting malformed values.
func (p DraftPatch) Edits() ([]domain.Edit, error) {
	var edits []domain.Edit
	if p.JobType != nil {
		t, err := domain.ParseJobType(*p.JobType)
		if err != nil {
			return nil, err
		}
		edits = append(edits, domain.SetJobType(t))
	}
	if p.Title != nil {
		edits = append(edits, domain.SetTitle(*p.Title))
	}
	if p.PickupLocation != nil {
		edits = append(edits, domain.SetPickupLocation(*p.PickupLocation))
	}
	if p.PickupContact != nil {
		edits = append(edits, domain.SetPickupContact(*p.PickupContact))
	}
	if p.DeliveryLocation != nil {
		edits = append(edits, domain.SetDeliveryLocation(*p.DeliveryLocation))
	}
	if p.DeliveryContact != nil {
		edits = append(edits, domain.SetDeliveryContact(*p.DeliveryContact))
	}
	if p.ItemDescription != nil {
		edits = append(edits, domain.SetItemDescription(*p.ItemDescription))
	}
	if p.ItemCategory != nil {
		edits = append(edits, domain.SetItemCategory(*p.ItemCategory))
	}
	if p.ItemSize != nil {
		edits = append(edits, domain.SetItemSize(*p.ItemSize))
	}
	if p.ItemWeight != nil {
		edits = append(edits, domain.SetItemWeight(*p.ItemWeight))
	}
	if p.CustomerPrice != nil {
		price, err := decimal.NewFromString(*p.CustomerPrice)
		if err != nil {
			return nil, fmt.Errorf("invalid customer_price %q", *p.CustomerPrice)
		}
		edits = append(edits, domain.SetCustomerPrice(price))
	}
	if p.PaymentType != nil {
		pt, err := domain.ParsePaymentType(*p.PaymentType)
		if err != nil {
			return nil, err
		}
		edits = append(edits, domain.SetPaymentType(pt))
	}
	switch {
	case p.ClearScheduledPickup:
		edits = append(edits, domain.ClearScheduledPickup())
	case p.ScheduledPickup != nil:
		edits = append(edits, domain.SetScheduledPickup(*p.ScheduledPickup))
	}
	return edits, nil
}

type PricingView struct {
	CustomerPrice string `json:"customer_price"`
	PlatformFee   string `json:"platform_fee"`
	DriverPayout  string `json:"driver_payout"`
}

// SessionView is what clients see of a form session.
type SessionView struct {
	ID          string                 `json:"id"`
	State       domain.SessionState    `json:"state"`
	Step        string                 `json:"step,omitempty"`
	DisplayStep int                    `json:"display_step,omitempty"`
	TotalSteps  int                    `json:"total_steps,omitempty"`
	Draft       *domain.OrderDraft     `json:"draft,omitempty"`
	Pricing     *PricingView           `json:"pricing,omitempty"`
	Validation  *domain.StepResult     `json:"validation,omitempty"`
	Job         *domain.Job            `json:"job,omitempty"`
	LastFailure *service.SubmitFailure `json:"last_failure,omitempty"`
}

// NewSessionView renders sess. When now is non-zero the current step is
// validated so clients can show errors and warnings inline.
func NewSessionView(sess *service.FormSession, now time.Time) SessionView {
	v := SessionView{
		ID:          sess.ID,
		State:       sess.State(),
		Job:         sess.Job(),
		LastFailure: sess.LastFailure(),
	}
	if sess.State().Terminal() {
		return v
	}

	v.Step = sess.Step().String()
	v.DisplayStep = sess.DisplayStep()
	v.TotalSteps = sess.TotalSteps()
	v.Draft = sess.Draft()

	p := sess.Pricing()
	v.Pricing = &PricingView{
		CustomerPrice: domain.FormatMoney(p.CustomerPrice),
		PlatformFee:   domain.FormatMoney(p.PlatformFee),
		DriverPayout:  domain.FormatMoney(p.DriverPayout),
	}
	if !now.IsZero() {
		result := sess.Validate(now)
		v.Validation = &result
	}
	return v
}
