package domain

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// Field names used as keys of validation error maps. They match the wire
// names so clients can attach messages to inputs directly.
type Field string

const (
	FieldJobType          Field = "job_type"
	FieldTitle            Field = "title"
	FieldPickupLocation   Field = "pickup_location"
	FieldPickupName       Field = "pickup_contact_name"
	FieldPickupPhone      Field = "pickup_contact_phone"
	FieldPickupPhotos     Field = "pickup_photos"
	FieldDeliveryLocation Field = "delivery_location"
	FieldDeliveryName     Field = "delivery_contact_name"
	FieldDeliveryPhone    Field = "delivery_contact_phone"
	FieldRecyclingCenter  Field = "recycling_center"
	FieldItemDescription  Field = "item_description"
	FieldCustomerPrice    Field = "customer_price"
	FieldScheduledPickup  Field = "scheduled_pickup"
)

const (
	minTitleLen       = 3
	maxTitleLen       = 100
	minDescriptionLen = 10
)

var phonePattern = regexp.MustCompile(`^\+?[0-9\s\-()]{9,}$`)

func ValidPhone(phone string) bool {
	return phonePattern.MatchString(strings.TrimSpace(phone))
}

// StepResult is the outcome of validating one step. Warnings never affect Valid.
type StepResult struct {
	Step     Step             `json:"step"`
	Valid    bool             `json:"valid"`
	Errors   map[Field]string `json:"errors,omitempty"`
	Warnings map[Field]string `json:"warnings,omitempty"`
}

func newResult(step Step) StepResult {
	return StepResult{Step: step, Errors: map[Field]string{}, Warnings: map[Field]string{}}
}

func (r StepResult) finish() StepResult {
	r.Valid = len(r.Errors) == 0
	if len(r.Errors) == 0 {
		r.Errors = nil
	}
	if len(r.Warnings) == 0 {
		r.Warnings = nil
	}
	return r
}

// ValidationError carries the failing step result through error returns.
type ValidationError struct {
	Result StepResult
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Result.Errors))
	for f := range e.Result.Errors {
		fields = append(fields, string(f))
	}
	sort.Strings(fields)
	return fmt.Sprintf("step %s invalid: %s", e.Result.Step, strings.Join(fields, ", "))
}

// ValidateStep runs the validator of the given actual step. It has no side
// effects and can be called any number of times.
func ValidateStep(step Step, d OrderDraft, now time.Time) StepResult {
	switch step {
	case StepJobDetails:
		return ValidateJobDetails(d)
	case StepPickup:
		return ValidatePickup(d)
	case StepDelivery:
		return ValidateDelivery(d)
	case StepItemDetails:
		return ValidateItemDetails(d, now)
	}
	r := newResult(step)
	r.Errors[FieldJobType] = fmt.Sprintf("Unknown step %d", uint8(step))
	return r.finish()
}

func ValidateJobDetails(d OrderDraft) StepResult {
	r := newResult(StepJobDetails)
	if !d.JobType.IsSet() {
		r.Errors[FieldJobType] = "Please select a job type"
	}

	title := PlainText(d.Title)
	switch n := utf8.RuneCountInString(title); {
	case n == 0:
		r.Errors[FieldTitle] = "Title is required"
	case n < minTitleLen || n > maxTitleLen:
		r.Errors[FieldTitle] = fmt.Sprintf("Title must be between %d and %d characters", minTitleLen, maxTitleLen)
	}
	return r.finish()
}

func ValidatePickup(d OrderDraft) StepResult {
	r := newResult(StepPickup)
	if d.PickupLocation == nil {
		r.Errors[FieldPickupLocation] = "Pickup location is required"
	}
	validateContact(r.Errors, d.PickupContact, FieldPickupName, FieldPickupPhone, "Pickup")
	if len(d.PickupPhotos) == 0 {
		r.Warnings[FieldPickupPhotos] = "Adding at least one photo of the item is recommended"
	}
	return r.finish()
}

func ValidateDelivery(d OrderDraft) StepResult {
	r := newResult(StepDelivery)
	switch d.JobType {
	case JobTypeUnset:
		r.Errors[FieldJobType] = "Please select a job type"
	case JobTypeRecycle:
		if d.RecyclingCenter == nil {
			r.Errors[FieldRecyclingCenter] = "Please select a recycling center"
		}
	case JobTypeMove:
		if d.DeliveryLocation == nil {
			r.Errors[FieldDeliveryLocation] = "Delivery location is required"
		}
		validateContact(r.Errors, d.DeliveryContact, FieldDeliveryName, FieldDeliveryPhone, "Delivery")
	case JobTypeGift:
		// gift jobs have no delivery step
	default:
		panic(fmt.Sprintf("domain: unhandled job type %d", uint8(d.JobType)))
	}
	return r.finish()
}

func ValidateItemDetails(d OrderDraft, now time.Time) StepResult {
	r := newResult(StepItemDetails)

	description := PlainText(d.ItemDescription)
	switch {
	case description == "":
		r.Errors[FieldItemDescription] = "Item description is required"
	case utf8.RuneCountInString(description) < minDescriptionLen:
		r.Errors[FieldItemDescription] = fmt.Sprintf("Description must be at least %d characters", minDescriptionLen)
	}

	if d.JobType != JobTypeGift {
		switch {
		case d.CustomerPrice.IsZero():
			r.Errors[FieldCustomerPrice] = "Price is required"
		case d.CustomerPrice.LessThan(MinCustomerPrice) || d.CustomerPrice.GreaterThan(MaxCustomerPrice):
			r.Errors[FieldCustomerPrice] = fmt.Sprintf("Price must be between %s and %s",
				MinCustomerPrice.String(), MaxCustomerPrice.String())
		}
	}

	switch {
	case d.ScheduledPickup == nil:
		r.Errors[FieldScheduledPickup] = "Pickup time is required"
	case !d.ScheduledPickup.After(now):
		r.Errors[FieldScheduledPickup] = "Pickup time must be in the future"
	}
	return r.finish()
}

func validateContact(errs map[Field]string, c Contact, nameField, phoneField Field, label string) {
	if PlainText(c.Name) == "" {
		errs[nameField] = label + " contact name is required"
	}
	switch {
	case strings.TrimSpace(c.Phone) == "":
		errs[phoneField] = label + " contact phone is required"
	case !ValidPhone(c.Phone):
		errs[phoneField] = "Please enter a valid phone number"
	}
}
