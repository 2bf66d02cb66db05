package contest

import (
	"context"
	"fmt"
	"regexp"

	"globalbangla.org/internal/blob"
)

var featureKey = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,63}$`)

// SiteSettings manages the settings singleton.
type SiteSettings struct {
	store SettingsStore
	blobs blob.Store
}

func NewSiteSettings(store SettingsStore, blobs blob.Store) *SiteSettings {
	return &SiteSettings{store: store, blobs: blobs}
}

func (s *SiteSettings) Get(ctx context.Context) (*Settings, error) {
	return s.store.GetSettings(ctx)
}

// Update coalesces p onto the stored settings. A new logo replaces the current one.
func (s *SiteSettings) Update(ctx context.Context, p SettingsPatch, logo *blob.File) (string, error) {
	for k := range p.Features {
		if !featureKey.MatchString(k) {
			return "", fmt.Errorf("%w: invalid feature key %q", ErrInvalidInput, k)
		}
	}
	if logo != nil {
		path, err := s.blobs.Save(ctx, blob.FolderLogos, *logo, blob.MediaAllowlist(blob.DefaultMaxBytes))
		if err != nil {
			return "", err
		}
		p.LogoPath = &path
	}
	if err := s.store.UpdateSettings(ctx, p); err != nil {
		return "", err
	}
	return "Site settings updated.", nil
}

// ToggleFeature sets a single feature flag.
func (s *SiteSettings) ToggleFeature(ctx context.Context, key string, enabled bool) (string, error) {
	if !featureKey.MatchString(key) {
		return "", fmt.Errorf("%w: invalid feature key %q", ErrInvalidInput, key)
	}
	if err := s.store.SetFeature(ctx, key, enabled); err != nil {
		return "", err
	}
	return "Feature flag updated.", nil
}
