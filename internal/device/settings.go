package device

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Settings keys persisted in device_settings.
const (
	SettingHostname = "hostname"
	SettingName     = "name"
)

const (
	maxHostnameLength = 253
	maxNameLength     = 100
)

// SettingsRepository persists user-editable device settings.
//
// Implementations must be safe for concurrent use.
type SettingsRepository interface {
	// Get returns the stored settings.
	// Returns ErrSettingsNotFound if nothing is stored for the device.
	Get(ctx context.Context, deviceID string) (*Settings, error)

	// Save stores every field of s, replacing previous values.
	Save(ctx context.Context, s *Settings) error

	// Delete removes all settings for the device. Deleting nothing is not an error.
	Delete(ctx context.Context, deviceID string) error
}

// SettingsPatch carries a partial settings update. Nil fields are left unchanged.
type SettingsPatch struct {
	Hostname *string `json:"hostname,omitempty"`
	Name     *string `json:"name,omitempty"`
}

// ChangedKeys lists the settings keys whose values differ from old after
// applying the patch.
func (p SettingsPatch) ChangedKeys(old Settings) []string {
	var keys []string
	if p.Hostname != nil && strings.TrimSpace(*p.Hostname) != old.Hostname {
		keys = append(keys, SettingHostname)
	}
	if p.Name != nil && strings.TrimSpace(*p.Name) != old.Name {
		keys = append(keys, SettingName)
	}
	return keys
}

// Apply returns a copy of s with the patch applied.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.Hostname != nil {
		s.Hostname = strings.TrimSpace(*p.Hostname)
	}
	if p.Name != nil {
		s.Name = strings.TrimSpace(*p.Name)
	}
	return s
}

// ValidateSettings checks a settings value before it is persisted.
// An empty hostname is valid: it means no session should be started.
func ValidateSettings(s *Settings) error {
	if s == nil {
		return fmt.Errorf("%w: nil settings", ErrInvalidSettings)
	}
	if s.DeviceID == "" {
		return ErrDeviceIDRequired
	}
	if len(s.Hostname) > maxHostnameLength {
		return fmt.Errorf("%w: hostname exceeds %d characters", ErrInvalidSettings, maxHostnameLength)
	}
	if strings.ContainsAny(s.Hostname, " \t\r\n/") {
		return fmt.Errorf("%w: hostname %q contains invalid characters", ErrInvalidSettings, s.Hostname)
	}
	if utf8.RuneCountInString(s.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidSettings, maxNameLength)
	}
	return nil
}
