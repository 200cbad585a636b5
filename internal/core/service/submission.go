package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/carryo/job-intake/internal/core/domain"
	"github.com/carryo/job-intake/internal/port"
)

// GiftDeliveryAddress is sent in place of a delivery address for gift jobs.
const GiftDeliveryAddress = "N/A - Gift Job"

// AssembleSubmission flattens a validated draft into the multipart fields of
// the create-job call. It is the only place where the three delivery
// variants are reconciled into one wire shape.
func AssembleSubmission(d domain.OrderDraft) ([]port.FormField, error) {
	dest, err := d.Destination()
	if err != nil {
		return nil, fmt.Errorf("assemble submission: %w", err)
	}
	if d.PickupLocation == nil {
		return nil, fmt.Errorf("assemble submission: pickup location missing")
	}

	var fields []port.FormField
	add := func(name, value string) {
		fields = append(fields, port.FormField{Name: name, Value: value})
	}

	add("job_type", d.JobType.String())
	add("title", domain.PlainText(d.Title))

	add("pickup_address", domain.PlainText(d.PickupLocation.Address))
	add("pickup_lat", formatCoord(d.PickupLocation.Lat))
	add("pickup_lng", formatCoord(d.PickupLocation.Lng))
	add("pickup_contact_name", domain.PlainText(d.PickupContact.Name))
	add("pickup_contact_phone", strings.TrimSpace(d.PickupContact.Phone))

	switch dest := dest.(type) {
	case domain.DeliverTo:
		add("delivery_address", domain.PlainText(dest.Location.Address))
		add("delivery_lat", formatCoord(dest.Location.Lat))
		add("delivery_lng", formatCoord(dest.Location.Lng))
		add("delivery_contact_name", domain.PlainText(dest.Contact.Name))
		add("delivery_contact_phone", strings.TrimSpace(dest.Contact.Phone))
	case domain.RecycleAt:
		add("delivery_address", dest.Center.Address)
		add("delivery_lat", formatCoord(dest.Center.Lat))
		add("delivery_lng", formatCoord(dest.Center.Lng))
		add("delivery_contact_name", dest.Center.Name)
		add("delivery_contact_phone", "")
		add("recycling_center_id", dest.Center.ID)
	case domain.NoDelivery:
		add("delivery_address", GiftDeliveryAddress)
		add("delivery_lat", "0")
		add("delivery_lng", "0")
		add("delivery_contact_name", "")
		add("delivery_contact_phone", "")
	default:
		return nil, fmt.Errorf("assemble submission: unhandled destination %T", dest)
	}

	add("item_description", domain.PlainText(d.ItemDescription))
	add("item_category", domain.PlainText(d.ItemCategory))
	add("item_size", domain.PlainText(d.ItemSize))
	add("item_weight", domain.PlainText(d.ItemWeight))

	pricing := domain.CalculatePricing(d)
	add("customer_price", domain.FormatMoney(pricing.CustomerPrice))
	add("platform_fee", domain.FormatMoney(pricing.PlatformFee))
	add("driver_payout", domain.FormatMoney(pricing.DriverPayout))
	add("payment_type", string(d.PaymentType))

	if d.ScheduledPickup != nil {
		add("scheduled_pickup", d.ScheduledPickup.UTC().Format(time.RFC3339))
	}
	for _, p := range d.PickupPhotos {
		add("pickup_photos", p.URL)
	}

	return fields, nil
}

// FieldValue returns the first value of the named field.
func FieldValue(fields []port.FormField, name string) (string, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
