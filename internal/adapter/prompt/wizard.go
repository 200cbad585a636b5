package prompt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/carryo/job-intake/internal/core/domain"
	"github.com/carryo/job-intake/internal/core/service"
	"github.com/carryo/job-intake/internal/port"
)

var ErrCancelled = errors.New("job creation cancelled")

const pickupTimeLayout = "2006-01-02 15:04"

const (
	actionNext   = "Next"
	actionBack   = "Back"
	actionSubmit = "Post job"
	actionCancel = "Cancel"
)

var stepTitles = map[domain.Step]string{
	domain.StepJobDetails:  "Job details",
	domain.StepPickup:      "Pickup",
	domain.StepDelivery:    "Delivery",
	domain.StepItemDetails: "Item details",
}

var jobTypeLabels = map[domain.JobType]string{
	domain.JobTypeMove:    "Move",
	domain.JobTypeRecycle: "Recycle",
	domain.JobTypeGift:    "Gift",
}

var jobTypeHelp = map[domain.JobType]string{
	domain.JobTypeMove:    "Move items from one place to another",
	domain.JobTypeRecycle: "Take items to a recycling center",
	domain.JobTypeGift:    "Give items away for free",
}

var itemSizes = []string{"small", "medium", "large", "extra_large"}

// Wizard walks a customer through a form session in the terminal.
type Wizard struct {
	driver   PromptDriver
	session  *service.FormSession
	gateway  port.JobGateway
	catalog  port.RecyclingCenterCatalog
	geocoder port.Geocoder
	images   port.ImageStore
	now      func() time.Time
	loc      *time.Location
}

type Option func(*Wizard)

func WithGeocoder(g port.Geocoder) Option {
	return func(w *Wizard) { w.geocoder = g }
}

func WithImageStore(s port.ImageStore) Option {
	return func(w *Wizard) { w.images = s }
}

// WithClock sets the clock and the zone pickup times are entered in.
func WithClock(now func() time.Time, loc *time.Location) Option {
	return func(w *Wizard) {
		w.now = now
		w.loc = loc
	}
}

func NewWizard(driver PromptDriver, session *service.FormSession, gateway port.JobGateway, catalog port.RecyclingCenterCatalog, opts ...Option) *Wizard {
	w := &Wizard{
		driver:  driver,
		session: session,
		gateway: gateway,
		catalog: catalog,
		now:     time.Now,
		loc:     time.Local,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run prompts until the job is created or the customer cancels.
func (w *Wizard) Run(ctx context.Context) (*domain.Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		step := w.session.Step()
		header := stepTitles[step]
		if w.session.JobType().IsSet() {
			header = fmt.Sprintf("Step %d of %d: %s", w.session.DisplayStep(), w.session.TotalSteps(), header)
		}
		if err := w.driver.Info(ctx, "\n"+header); err != nil {
			return nil, err
		}
		if err := w.promptStep(ctx, step); err != nil {
			return nil, err
		}

		action, err := w.chooseAction(ctx)
		if err != nil {
			return nil, err
		}
		switch action {
		case actionNext:
			result, err := w.session.Next(w.now())
			if err := w.report(ctx, result); err != nil {
				return nil, err
			}
			var verr *domain.ValidationError
			if err != nil && !errors.As(err, &verr) {
				return nil, err
			}
		case actionBack:
			if err := w.session.Back(); err != nil {
				return nil, err
			}
		case actionCancel:
			confirmed, err := w.driver.Confirm(ctx, ConfirmConfig{Message: "Discard this job?"})
			if err != nil {
				return nil, err
			}
			if confirmed {
				if err := w.session.Cancel(true); err != nil {
					return nil, err
				}
				return nil, ErrCancelled
			}
		case actionSubmit:
			job, err := w.submit(ctx)
			if err != nil {
				return nil, err
			}
			if job != nil {
				return job, nil
			}
		}
	}
}

func (w *Wizard) chooseAction(ctx context.Context) (string, error) {
	var actions []string
	_, hasNext := domain.NextStep(w.session.JobType(), w.session.Step())
	if hasNext || !w.session.JobType().IsSet() {
		actions = append(actions, actionNext)
	} else {
		actions = append(actions, actionSubmit)
	}
	if _, hasPrev := domain.PrevStep(w.session.JobType(), w.session.Step()); hasPrev {
		actions = append(actions, actionBack)
	}
	actions = append(actions, actionCancel)

	i, err := w.driver.Select(ctx, SelectConfig{Message: "What next?", Options: actions})
	if err != nil {
		return "", err
	}
	if i < 0 || i >= len(actions) {
		return "", fmt.Errorf("invalid choice %d", i)
	}
	return actions[i], nil
}

// submit returns a nil job when the customer should keep editing.
func (w *Wizard) submit(ctx context.Context) (*domain.Job, error) {
	p := w.session.Pricing()
	summary := fmt.Sprintf("Price %s, platform fee %s, driver receives %s",
		domain.FormatMoney(p.CustomerPrice), domain.FormatMoney(p.PlatformFee), domain.FormatMoney(p.DriverPayout))
	if err := w.driver.Info(ctx, summary); err != nil {
		return nil, err
	}
	ok, err := w.driver.Confirm(ctx, ConfirmConfig{Message: "Post this job?", Default: true})
	if err != nil || !ok {
		return nil, err
	}

	job, err := w.session.Submit(ctx, w.gateway, w.now())
	if err == nil {
		return job, w.driver.Info(ctx, fmt.Sprintf("Job %s created.", job.ID))
	}

	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return nil, w.report(ctx, verr.Result)
	case w.session.LastFailure() != nil:
		f := w.session.LastFailure()
		msg := f.Message
		for _, r := range f.Reasons {
			msg += "\n  - " + r
		}
		return nil, w.driver.Info(ctx, msg)
	}
	return nil, err
}

// report prints validation errors and warnings sorted by field.
func (w *Wizard) report(ctx context.Context, r domain.StepResult) error {
	var lines []string
	for _, f := range sortedFields(r.Errors) {
		lines = append(lines, "  ✗ "+r.Errors[f])
	}
	for _, f := range sortedFields(r.Warnings) {
		lines = append(lines, "  ! "+r.Warnings[f])
	}
	if len(lines) == 0 {
		return nil
	}
	return w.driver.Info(ctx, strings.Join(lines, "\n"))
}

func sortedFields(m map[domain.Field]string) []domain.Field {
	fields := make([]domain.Field, 0, len(m))
	for f := range m {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })
	return fields
}

func (w *Wizard) promptStep(ctx context.Context, step domain.Step) error {
	switch step {
	case domain.StepJobDetails:
		return w.promptJobDetails(ctx)
	case domain.StepPickup:
		return w.promptPickup(ctx)
	case domain.StepDelivery:
		return w.promptDelivery(ctx)
	case domain.StepItemDetails:
		return w.promptItemDetails(ctx)
	}
	return fmt.Errorf("unknown step %s", step)
}

func (w *Wizard) promptJobDetails(ctx context.Context) error {
	d := w.session.Draft()
	types := domain.AllJobTypes()
	options := make([]string, len(types))
	descriptions := make([]string, len(types))
	def := 0
	for i, t := range types {
		options[i] = jobTypeLabels[t]
		descriptions[i] = jobTypeHelp[t]
		if t == d.JobType {
			def = i
		}
	}
	i, err := w.driver.Select(ctx, SelectConfig{
		Message:      "What kind of job is this?",
		Options:      options,
		Descriptions: descriptions,
		DefaultIndex: def,
	})
	if err != nil {
		return err
	}
	if i < 0 || i >= len(types) {
		return fmt.Errorf("invalid job type choice %d", i)
	}

	title, err := w.driver.Input(ctx, InputConfig{Message: "Title", Default: d.Title, Help: "A short summary, e.g. \"Move a sofa\""})
	if err != nil {
		return err
	}
	return w.session.Apply(domain.SetJobType(types[i]), domain.SetTitle(title))
}

func (w *Wizard) promptPickup(ctx context.Context) error {
	d := w.session.Draft()
	loc, err := w.promptLocation(ctx, "Pickup address", d.PickupLocation)
	if err != nil {
		return err
	}
	contact, err := w.promptContact(ctx, "Pickup", d.PickupContact)
	if err != nil {
		return err
	}
	edits := []domain.Edit{domain.SetPickupContact(contact)}
	if loc != nil {
		edits = append(edits, domain.SetPickupLocation(*loc))
	}
	if err := w.session.Apply(edits...); err != nil {
		return err
	}
	return w.promptPhotos(ctx)
}

func (w *Wizard) promptDelivery(ctx context.Context) error {
	d := w.session.Draft()
	switch d.JobType {
	case domain.JobTypeMove:
		loc, err := w.promptLocation(ctx, "Delivery address", d.DeliveryLocation)
		if err != nil {
			return err
		}
		contact, err := w.promptContact(ctx, "Delivery", d.DeliveryContact)
		if err != nil {
			return err
		}
		edits := []domain.Edit{domain.SetDeliveryContact(contact)}
		if loc != nil {
			edits = append(edits, domain.SetDeliveryLocation(*loc))
		}
		return w.session.Apply(edits...)
	case domain.JobTypeRecycle:
		return w.promptRecyclingCenter(ctx, d.RecyclingCenter)
	case domain.JobTypeGift, domain.JobTypeUnset:
		return nil
	}
	panic(fmt.Sprintf("prompt: unhandled job type %d", uint8(d.JobType)))
}

func (w *Wizard) promptRecyclingCenter(ctx context.Context, current *domain.RecyclingCenter) error {
	centers, err := w.catalog.ListRecyclingCenters(ctx)
	if err != nil {
		return fmt.Errorf("list recycling centers: %w", err)
	}
	if len(centers) == 0 {
		return w.driver.Info(ctx, "No recycling centers are available.")
	}

	options := make([]string, len(centers))
	descriptions := make([]string, len(centers))
	def := 0
	for i, c := range centers {
		options[i] = c.Name
		descriptions[i] = c.Address
		if current != nil && current.ID == c.ID {
			def = i
		}
	}
	i, err := w.driver.Select(ctx, SelectConfig{
		Message:      "Recycling center",
		Options:      options,
		Descriptions: descriptions,
		DefaultIndex: def,
	})
	if err != nil {
		return err
	}
	if i < 0 || i >= len(centers) {
		return fmt.Errorf("invalid recycling center choice %d", i)
	}
	return w.session.Apply(domain.SelectRecyclingCenter(centers[i]))
}

func (w *Wizard) promptItemDetails(ctx context.Context) error {
	d := w.session.Draft()
	description, err := w.driver.Input(ctx, InputConfig{Message: "Describe the item", Default: d.ItemDescription})
	if err != nil {
		return err
	}
	category, err := w.driver.Input(ctx, InputConfig{Message: "Category", Default: d.ItemCategory})
	if err != nil {
		return err
	}
	sizeIdx, err := w.driver.Select(ctx, SelectConfig{Message: "Size", Options: itemSizes, DefaultIndex: indexOf(itemSizes, d.ItemSize)})
	if err != nil {
		return err
	}
	var size string
	if sizeIdx >= 0 && sizeIdx < len(itemSizes) {
		size = itemSizes[sizeIdx]
	}
	weight, err := w.driver.Input(ctx, InputConfig{Message: "Approximate weight", Default: d.ItemWeight})
	if err != nil {
		return err
	}
	edits := []domain.Edit{domain.SetItemDetails(description, category, size, weight)}

	if d.JobType != domain.JobTypeGift {
		priceEdits, err := w.promptPrice(ctx, d)
		if err != nil {
			return err
		}
		edits = append(edits, priceEdits...)
	}

	at, err := w.promptPickupTime(ctx, d.ScheduledPickup)
	if err != nil {
		return err
	}
	if at != nil {
		edits = append(edits, domain.SetScheduledPickup(*at))
	}
	return w.session.Apply(edits...)
}

func (w *Wizard) promptPrice(ctx context.Context, d *domain.OrderDraft) ([]domain.Edit, error) {
	def := ""
	if !d.CustomerPrice.IsZero() {
		def = domain.FormatMoney(d.CustomerPrice)
	}
	raw, err := w.driver.Input(ctx, InputConfig{
		Message: "Your price",
		Default: def,
		Help:    fmt.Sprintf("Between %s and %s", domain.MinCustomerPrice, domain.MaxCustomerPrice),
	})
	if err != nil {
		return nil, err
	}
	var edits []domain.Edit
	if price, perr := decimal.NewFromString(strings.TrimSpace(raw)); perr == nil {
		edits = append(edits, domain.SetCustomerPrice(price))
	} else if err := w.driver.Info(ctx, "  ✗ Please enter a number"); err != nil {
		return nil, err
	}

	payments := []domain.PaymentType{domain.PaymentCash, domain.PaymentOnline}
	i, err := w.driver.Select(ctx, SelectConfig{
		Message:      "Payment",
		Options:      []string{"Cash", "Online payment"},
		DefaultIndex: indexOf([]string{string(domain.PaymentCash), string(domain.PaymentOnline)}, string(d.PaymentType)),
	})
	if err != nil {
		return nil, err
	}
	if i >= 0 && i < len(payments) {
		edits = append(edits, domain.SetPaymentType(payments[i]))
	}
	return edits, nil
}

func (w *Wizard) promptPickupTime(ctx context.Context, current *time.Time) (*time.Time, error) {
	def := ""
	if current != nil {
		def = current.In(w.loc).Format(pickupTimeLayout)
	}
	raw, err := w.driver.Input(ctx, InputConfig{Message: "Pickup time (YYYY-MM-DD HH:MM)", Default: def})
	if err != nil {
		return nil, err
	}
	at, err := time.ParseInLocation(pickupTimeLayout, strings.TrimSpace(raw), w.loc)
	if err != nil {
		return nil, w.driver.Info(ctx, "  ✗ Please use the format YYYY-MM-DD HH:MM")
	}
	return &at, nil
}

// promptLocation resolves a typed address through the geocoder. Without a
// geocoder, or when it fails, the coordinates are asked for directly.
func (w *Wizard) promptLocation(ctx context.Context, label string, current *domain.Location) (*domain.Location, error) {
	def := ""
	if current != nil {
		def = current.Address
	}
	address, err := w.driver.Input(ctx, InputConfig{Message: label, Default: def})
	if err != nil {
		return nil, err
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, nil
	}
	if current != nil && address == current.Address {
		return current, nil
	}

	if w.geocoder != nil {
		loc, err := w.geocoder.Forward(ctx, address)
		if err == nil {
			loc.Address = address
			return loc, nil
		}
		if err := w.driver.Info(ctx, "Could not find that address, please enter its coordinates."); err != nil {
			return nil, err
		}
	}

	lat, err := w.promptFloat(ctx, "Latitude", -90, 90)
	if err != nil {
		return nil, err
	}
	lng, err := w.promptFloat(ctx, "Longitude", -180, 180)
	if err != nil {
		return nil, err
	}
	return &domain.Location{Address: address, Lat: lat, Lng: lng}, nil
}

func (w *Wizard) promptFloat(ctx context.Context, label string, lo, hi float64) (float64, error) {
	raw, err := w.driver.Input(ctx, InputConfig{
		Message: label,
		Validator: func(s string) error {
			v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil || v < lo || v > hi {
				return fmt.Errorf("enter a number between %g and %g", lo, hi)
			}
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(raw), 64)
}

func (w *Wizard) promptContact(ctx context.Context, label string, current domain.Contact) (domain.Contact, error) {
	name, err := w.driver.Input(ctx, InputConfig{Message: label + " contact name", Default: current.Name})
	if err != nil {
		return domain.Contact{}, err
	}
	phone, err := w.driver.Input(ctx, InputConfig{Message: label + " contact phone", Default: current.Phone})
	if err != nil {
		return domain.Contact{}, err
	}
	return domain.Contact{Name: name, Phone: phone}, nil
}

// promptPhotos uploads photo files one by one until an empty path is given.
func (w *Wizard) promptPhotos(ctx context.Context) error {
	if w.images == nil {
		return nil
	}
	for {
		path, err := w.driver.Input(ctx, InputConfig{Message: "Photo file (leave empty to continue)"})
		if err != nil {
			return err
		}
		path = strings.TrimSpace(path)
		if path == "" {
			return nil
		}
		if err := w.uploadPhoto(ctx, path); err != nil {
			if err := w.driver.Info(ctx, "  ✗ "+err.Error()); err != nil {
				return err
			}
		}
	}
}

func (w *Wizard) uploadPhoto(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open photo: %w", err)
	}
	defer f.Close()

	name := fmt.Sprintf("%s/%d%s", w.session.ID, w.now().UnixNano(), filepath.Ext(path))
	url, err := w.images.Upload(ctx, name, "", f)
	if err != nil {
		return fmt.Errorf("upload photo: %w", err)
	}
	return w.session.Apply(domain.AddPickupPhoto(domain.Photo{URL: url}))
}

func indexOf(options []string, value string) int {
	for i, option := range options {
		if option == value {
			return i
		}
	}
	return -1
}
