package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

const (
	SettingMaintenanceMode    = "maintenance_mode"
	SettingAllowRegistrations = "allow_registrations"
	SettingAllowBotDownload   = "allow_bot_download"
	SettingCheckoutEnabled    = "checkout_enabled"
)

// Settings is a read-only snapshot of system_settings.
type Settings struct {
	MaintenanceMode    bool
	AllowRegistrations bool
	AllowBotDownload   bool
	CheckoutEnabled    bool
}

func DefaultSettings() Settings {
	return Settings{
		AllowRegistrations: true,
		AllowBotDownload:   true,
		CheckoutEnabled:    true,
	}
}

func (s Settings) CheckoutAvailable() bool {
	return !s.MaintenanceMode && s.CheckoutEnabled
}

func SettingsFromRows(rows []entity.SystemSetting) Settings {
	settings := DefaultSettings()
	for _, row := range rows {
		value := strings.EqualFold(strings.TrimSpace(row.Value), "true")
		switch row.Key {
		case SettingMaintenanceMode:
			settings.MaintenanceMode = value
		case SettingAllowRegistrations:
			settings.AllowRegistrations = value
		case SettingAllowBotDownload:
			settings.AllowBotDownload = value
		case SettingCheckoutEnabled:
			settings.CheckoutEnabled = value
		}
	}
	return settings
}

type settingsRepository interface {
	ListAll(ctx context.Context) ([]entity.SystemSetting, error)
}

type settingsSource interface {
	Snapshot() Settings
}

// SettingsStore keeps the current settings snapshot and fans out changes to
// subscribers.
type SettingsStore struct {
	repo   settingsRepository
	logger logrus.FieldLogger

	mu          sync.RWMutex
	current     Settings
	subscribers map[int]chan Settings
	nextID      int
}

func NewSettingsStore(repo settingsRepository) *SettingsStore {
	return &SettingsStore{
		repo:        repo,
		logger:      logrus.WithField("module", "settings-store"),
		current:     DefaultSettings(),
		subscribers: make(map[int]chan Settings),
	}
}

func (s *SettingsStore) Snapshot() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Refresh reloads settings. Subscribers are only notified when the snapshot
// actually changed.
func (s *SettingsStore) Refresh(ctx context.Context) error {
	rows, err := s.repo.ListAll(ctx)
	if err != nil {
		return err
	}
	next := SettingsFromRows(rows)

	s.mu.Lock()
	changed := next != s.current
	s.current = next
	targets := make([]chan Settings, 0, len(s.subscribers))
	if changed {
		for _, ch := range s.subscribers {
			targets = append(targets, ch)
		}
	}
	s.mu.Unlock()

	for _, ch := range targets {
		select {
		case ch <- next:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel receiving new snapshots and a func that
// unsubscribes and closes it.
func (s *SettingsStore) Subscribe() (<-chan Settings, func()) {
	ch := make(chan Settings, 1)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = ch
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (s *SettingsStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				s.logger.WithError(err).Warn("Settings refresh failed")
			}
		}
	}
}
