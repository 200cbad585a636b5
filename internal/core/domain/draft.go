package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var ErrJobTypeUnset = errors.New("job type not selected")

type Location struct {
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type Photo struct {
	URL string `json:"url"`
}

// OrderDraft is the in-progress job a customer is filling in. It is owned
// by exactly one form session and is only ever changed through Apply.
type OrderDraft struct {
	JobType          JobType          `json:"job_type"`
	Title            string           `json:"title"`
	PickupLocation   *Location        `json:"pickup_location,omitempty"`
	PickupContact    Contact          `json:"pickup_contact"`
	PickupPhotos     []Photo          `json:"pickup_photos,omitempty"`
	DeliveryLocation *Location        `json:"delivery_location,omitempty"`
	DeliveryContact  Contact          `json:"delivery_contact"`
	RecyclingCenter  *RecyclingCenter `json:"recycling_center,omitempty"`
	ItemDescription  string           `json:"item_description"`
	ItemCategory     string           `json:"item_category"`
	ItemSize         string           `json:"item_size"`
	ItemWeight       string           `json:"item_weight"`
	CustomerPrice    decimal.Decimal  `json:"customer_price"`
	PaymentType      PaymentType      `json:"payment_type"`
	ScheduledPickup  *time.Time       `json:"scheduled_pickup,omitempty"`
}

func NewOrderDraft() *OrderDraft {
	return &OrderDraft{PaymentType: PaymentCash}
}

// Edit is a single field mutation applied to a draft.
type Edit func(d *OrderDraft)

// Apply runs the edits in order and re-establishes the draft invariants.
func (d *OrderDraft) Apply(edits ...Edit) {
	for _, edit := range edits {
		if edit != nil {
			edit(d)
		}
	}
	d.normalize()
}

// Reset empties the draft in place.
func (d *OrderDraft) Reset() {
	*d = *NewOrderDraft()
}

func (d *OrderDraft) Clone() *OrderDraft {
	if d == nil {
		return nil
	}
	c := *d
	if d.PickupLocation != nil {
		loc := *d.PickupLocation
		c.PickupLocation = &loc
	}
	if d.DeliveryLocation != nil {
		loc := *d.DeliveryLocation
		c.DeliveryLocation = &loc
	}
	if d.RecyclingCenter != nil {
		center := *d.RecyclingCenter
		c.RecyclingCenter = &center
	}
	if d.ScheduledPickup != nil {
		at := *d.ScheduledPickup
		c.ScheduledPickup = &at
	}
	c.PickupPhotos = append([]Photo(nil), d.PickupPhotos...)
	return &c
}

// normalize keeps only the destination data of the chosen job type, so a
// draft never carries a stale delivery or recycling center for another one.
func (d *OrderDraft) normalize() {
	if d.JobType == JobTypeGift {
		d.CustomerPrice = decimal.Zero
	}
	if d.JobType.IsSet() {
		if d.JobType != JobTypeMove {
			d.DeliveryLocation = nil
			d.DeliveryContact = Contact{}
		}
		if d.JobType != JobTypeRecycle {
			d.RecyclingCenter = nil
		}
	}
	if d.PaymentType == "" {
		d.PaymentType = PaymentCash
	}
}

func SetJobType(t JobType) Edit {
	return func(d *OrderDraft) { d.JobType = t }
}

func SetTitle(title string) Edit {
	return func(d *OrderDraft) { d.Title = strings.TrimSpace(title) }
}

func SetPickupLocation(loc Location) Edit {
	return func(d *OrderDraft) { d.PickupLocation = &loc }
}

func SetPickupContact(c Contact) Edit {
	return func(d *OrderDraft) { d.PickupContact = trimContact(c) }
}

func AddPickupPhoto(p Photo) Edit {
	return func(d *OrderDraft) { d.PickupPhotos = append(d.PickupPhotos, p) }
}

func SetDeliveryLocation(loc Location) Edit {
	return func(d *OrderDraft) { d.DeliveryLocation = &loc }
}

func SetDeliveryContact(c Contact) Edit {
	return func(d *OrderDraft) { d.DeliveryContact = trimContact(c) }
}

func SelectRecyclingCenter(c RecyclingCenter) Edit {
	return func(d *OrderDraft) { d.RecyclingCenter = &c }
}

func SetItemDetails(description, category, size, weight string) Edit {
	return func(d *OrderDraft) {
		d.ItemDescription = strings.TrimSpace(description)
		d.ItemCategory = strings.TrimSpace(category)
		d.ItemSize = strings.TrimSpace(size)
		d.ItemWeight = strings.TrimSpace(weight)
	}
}

func SetItemDescription(description string) Edit {
	return func(d *OrderDraft) { d.ItemDescription = strings.TrimSpace(description) }
}

func SetItemCategory(category string) Edit {
	return func(d *OrderDraft) { d.ItemCategory = strings.TrimSpace(category) }
}

func SetItemSize(size string) Edit {
	return func(d *OrderDraft) { d.ItemSize = strings.TrimSpace(size) }
}

func SetItemWeight(weight string) Edit {
	return func(d *OrderDraft) { d.ItemWeight = strings.TrimSpace(weight) }
}

func SetCustomerPrice(price decimal.Decimal) Edit {
	return func(d *OrderDraft) { d.CustomerPrice = price }
}

func SetPaymentType(p PaymentType) Edit {
	return func(d *OrderDraft) { d.PaymentType = p }
}

func SetScheduledPickup(at time.Time) Edit {
	return func(d *OrderDraft) { d.ScheduledPickup = &at }
}

func ClearScheduledPickup() Edit {
	return func(d *OrderDraft) { d.ScheduledPickup = nil }
}

func trimContact(c Contact) Contact {
	return Contact{Name: strings.TrimSpace(c.Name), Phone: strings.TrimSpace(c.Phone)}
}

// Destination is where the job ends. Exactly one variant exists per job type.
type Destination interface {
	destination()
}

// DeliverTo is the destination of a move job.
type DeliverTo struct {
	Location Location
	Contact  Contact
}

// RecycleAt is the destination of a recycle job.
type RecycleAt struct {
	Center RecyclingCenter
}

// NoDelivery is the destination of a gift job.
type NoDelivery struct{}

func (DeliverTo) destination()  {}
func (RecycleAt) destination()  {}
func (NoDelivery) destination() {}

// Destination derives the delivery variant from the job type. It fails when
// the job type is unset or the variant's data has not been entered yet.
func (d *OrderDraft) Destination() (Destination, error) {
	switch d.JobType {
	case JobTypeUnset:
		return nil, ErrJobTypeUnset
	case JobTypeMove:
		if d.DeliveryLocation == nil {
			return nil, fmt.Errorf("move job: delivery location missing")
		}
		return DeliverTo{Location: *d.DeliveryLocation, Contact: d.DeliveryContact}, nil
	case JobTypeRecycle:
		if d.RecyclingCenter == nil {
			return nil, fmt.Errorf("recycle job: recycling center missing")
		}
		return RecycleAt{Center: *d.RecyclingCenter}, nil
	case JobTypeGift:
		return NoDelivery{}, nil
	}
	panic(fmt.Sprintf("domain: unhandled job type %d", uint8(d.JobType)))
}
