package application

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/re178/mega-facebook-autoposter/core/settings/domain"
	"github.com/re178/mega-facebook-autoposter/core/settings/infrastructure"
	"gorm.io/gorm"
)

type SettingsService struct {
	repo domain.Repository
}

func NewSettingsService(db *gorm.DB) *SettingsService {
	return &SettingsService{
		repo: infrastructure.NewSettingsGormRepository(db),
	}
}

// NewSettingsServiceWithRepo is used by tests to plug an alternate store.
func NewSettingsServiceWithRepo(repo domain.Repository) *SettingsService {
	return &SettingsService{repo: repo}
}

func (s *SettingsService) Init(ctx context.Context) error {
	return s.repo.InitSchema(ctx)
}

type DynamicSettings struct {
	AutoGenerationEnabled bool
	SchedulerPaused       bool
	MediaProbability      *float64
	DisabledProviders     []string
}

func (s *SettingsService) GetDynamicSettings(ctx context.Context) (*DynamicSettings, error) {
	ds := &DynamicSettings{}

	auto, err := s.AutoGenerationEnabled(ctx)
	if err != nil {
		return nil, err
	}
	ds.AutoGenerationEnabled = auto

	if val, _ := s.repo.Get(ctx, domain.KeySchedulerPaused); val != "" {
		ds.SchedulerPaused = isOn(val)
	}
	if val, _ := s.repo.Get(ctx, domain.KeyMediaProbability); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil && f >= 0 && f <= 1 {
			ds.MediaProbability = &f
		}
	}
	disabled, err := s.DisabledProviders(ctx)
	if err != nil {
		return nil, err
	}
	ds.DisabledProviders = disabled
	return ds, nil
}

// AutoGenerationEnabled reads the single flag that gates the background planner.
func (s *SettingsService) AutoGenerationEnabled(ctx context.Context) (bool, error) {
	val, err := s.repo.Get(ctx, domain.KeyAutoGenerationEnabled)
	if err != nil {
		return false, err
	}
	return isOn(val), nil
}

func (s *SettingsService) SetAutoGenerationEnabled(ctx context.Context, v bool) error {
	return s.repo.Set(ctx, domain.KeyAutoGenerationEnabled, boolValue(v))
}

func (s *SettingsService) SetSchedulerPaused(ctx context.Context, v bool) error {
	return s.repo.Set(ctx, domain.KeySchedulerPaused, boolValue(v))
}

func (s *SettingsService) SetMediaProbability(ctx context.Context, v float64) error {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return s.repo.Set(ctx, domain.KeyMediaProbability, strconv.FormatFloat(v, 'f', -1, 64))
}

func (s *SettingsService) DisabledProviders(ctx context.Context) ([]string, error) {
	val, err := s.repo.Get(ctx, domain.KeyDisabledProviders)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, n := range strings.Split(val, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names, nil
}

// SetProviderDisabled adds or removes a provider from the persisted disabled list.
func (s *SettingsService) SetProviderDisabled(ctx context.Context, name string, disabled bool) error {
	current, err := s.DisabledProviders(ctx)
	if err != nil {
		return err
	}
	set := make(map[string]bool, len(current)+1)
	for _, n := range current {
		set[n] = true
	}
	name = strings.TrimSpace(name)
	if disabled {
		set[name] = true
	} else {
		delete(set, name)
	}
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return s.repo.Set(ctx, domain.KeyDisabledProviders, strings.Join(names, ","))
}

func isOn(val string) bool {
	vLower := strings.ToLower(strings.TrimSpace(val))
	return vLower == "1" || vLower == "true" || vLower == "yes" || vLower == "on"
}

func boolValue(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
