package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/carryo/job-intake/internal/adapter/api"
	"github.com/carryo/job-intake/internal/adapter/prompt"
	"github.com/carryo/job-intake/internal/adapter/storage"
	"github.com/carryo/job-intake/internal/config"
	"github.com/carryo/job-intake/internal/core/service"
)

func main() {
	email := flag.String("email", os.Getenv("CARRYO_EMAIL"), "account email")
	centers := flag.String("centers", "", "recycling centers YAML file (built-in list if empty)")
	flag.Parse()

	cfg := config.LoadConfig()
	if err := cfg.ValidateClient(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	if *centers != "" {
		cfg.Catalog.File = *centers
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	driver := prompt.NewSurveyDriver()

	auth := api.NewSupabaseAuth(api.NewClient(cfg.Supabase.URL, nil,
		api.WithTimeout(cfg.API.Timeout),
		api.WithHeader("apikey", cfg.Supabase.AnonKey)))
	session, err := signIn(ctx, driver, auth, *email)
	if err != nil {
		exit(err)
	}

	catalog, err := storage.LoadYAMLCatalog(cfg.Catalog.File)
	if err != nil {
		log.Fatalf("failed to load recycling centers: %v", err)
	}

	jobs := api.NewJobs(api.NewClient(cfg.API.BaseURL, auth, api.WithTimeout(cfg.API.Timeout)))
	images := api.NewStorage(api.NewClient(cfg.Supabase.URL, auth,
		api.WithTimeout(cfg.API.Timeout),
		api.WithHeader("apikey", cfg.Supabase.AnonKey)), cfg.Supabase.StorageBucket)
	geocoder := api.NewGeocoder(api.NewClient(cfg.API.GeocoderURL, nil,
		api.WithTimeout(cfg.API.Timeout),
		api.WithHeader("User-Agent", "carryo-jobwizard/1.0")))

	form := service.NewFormSession(uuid.NewString(), session.UserID)
	wizard := prompt.NewWizard(driver, form, jobs, catalog,
		prompt.WithGeocoder(geocoder),
		prompt.WithImageStore(images))

	job, err := wizard.Run(ctx)
	if err != nil {
		exit(err)
	}
	fmt.Printf("Job %s is %s.\n", job.ID, job.Status)
}

func signIn(ctx context.Context, driver prompt.PromptDriver, auth *api.SupabaseAuth, email string) (api.Session, error) {
	if email == "" {
		var err error
		email, err = driver.Input(ctx, prompt.InputConfig{Message: "Email"})
		if err != nil {
			return api.Session{}, err
		}
	}
	password, err := driver.Password(ctx, prompt.InputConfig{Message: "Password"})
	if err != nil {
		return api.Session{}, err
	}
	session, err := auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		var apiErr *api.Error
		if errors.As(err, &apiErr) {
			return api.Session{}, errors.New(apiErr.UserMessage())
		}
		return api.Session{}, fmt.Errorf("sign in: %w", err)
	}
	return session, nil
}

func exit(err error) {
	switch {
	case errors.Is(err, prompt.ErrCancelled), errors.Is(err, prompt.ErrAborted), errors.Is(err, context.Canceled):
		fmt.Println("No job was created.")
		os.Exit(0)
	}
	log.Fatal(err)
}
