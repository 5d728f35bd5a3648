package main

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/nhle/paddledesk/internal/credential"
	"github.com/nhle/paddledesk/internal/model"
)

// runSetup asks for the backend, storage and sound settings, stores the
// token in the keyring and writes the config file.
func runSetup(cfgPath string, cfg *model.AppConfig) error {
	var (
		token  string
		volume = strconv.FormatFloat(cfg.Sound.Volume, 'f', 2, 64)
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Bookings API").
				Description("Base URL of the bookings backend").
				Placeholder("https://bookings.example.com").
				Value(&cfg.Backend.BaseURL).
				Validate(validateURL),
			huh.NewInput().
				Title("API token").
				Description("Leave empty to keep the stored token").
				EchoMode(huh.EchoModePassword).
				Value(&token),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Local storage").
				Options(
					huh.NewOption("SQLite file", "sqlite"),
					huh.NewOption("Redis (shared between terminals)", "redis"),
					huh.NewOption("Memory (lost on exit)", "memory"),
				).
				Value(&cfg.Storage.Backend),
			huh.NewInput().
				Title("Redis URL").
				Description("Only used with the Redis backend").
				Placeholder("redis://localhost:6379/0").
				Value(&cfg.Storage.RedisURL),
			huh.NewInput().
				Title("Worker address").
				Value(&cfg.Worker.ListenAddr).
				Validate(validateRequired("Worker address")),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Play sounds for alerts?").
				Value(&cfg.Sound.Enabled),
			huh.NewInput().
				Title("Volume").
				Description("Between 0 and 1").
				Value(&volume).
				Validate(validateVolume),
		),
	)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("setup cancelled")
			return nil
		}
		return fmt.Errorf("running setup form: %w", err)
	}

	cfg.Sound.Volume, _ = strconv.ParseFloat(strings.TrimSpace(volume), 64)
	if cfg.Storage.Backend == "redis" && cfg.Storage.RedisURL == "" {
		return errors.New("the Redis backend needs a Redis URL")
	}

	if token != "" {
		if err := credential.Set(cfg.Backend.TokenKey, token); err != nil {
			return fmt.Errorf("saving API token: %w", err)
		}
	}
	if err := model.SaveConfig(cfgPath, cfg); err != nil {
		return err
	}

	fmt.Printf("config written to %s\n", cfgPath)
	return nil
}

func validateRequired(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func validateURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("enter a full URL, e.g. https://bookings.example.com")
	}
	return nil
}

func validateVolume(s string) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 || v > 1 {
		return errors.New("volume must be a number between 0 and 1")
	}
	return nil
}
