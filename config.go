package strata

import (
	"context"
	"fmt"
)

// DefaultSystemID is the fallback owner and user identity used when no
// ambient identity is available.
const DefaultSystemID = "000000000000000000000000"

// TenancyMode selects how records are partitioned between tenants.
type TenancyMode string

// Supported tenancy modes.
const (
	// ModeRegular disables tenancy entirely.
	ModeRegular TenancyMode = "regular"
	// ModeSingleLevel scopes records by a single tenant field.
	ModeSingleLevel TenancyMode = "single-level"
	// ModeHierarchy scopes records by an ordered list of tenant fields.
	ModeHierarchy TenancyMode = "hierarchy"
)

// ConflictPolicy decides what a write does when the record already belongs
// to a different, non-system tenant than the ambient one.
type ConflictPolicy string

// Supported conflict policies.
const (
	ConflictKeep   ConflictPolicy = "keep"
	ConflictClaim  ConflictPolicy = "claim"
	ConflictReject ConflictPolicy = "reject"
)

// ApplyOn selects the access direction an extra context field is applied on.
type ApplyOn string

// Directions an extra context field may be applied on.
const (
	ApplyOnWrite ApplyOn = "write"
	ApplyOnRead  ApplyOn = "read"
	ApplyOnBoth  ApplyOn = "both"
)

// HierarchyLevel is one tier of the tenant hierarchy.
type HierarchyLevel struct {
	// FieldName is the record field holding the tenant id, e.g. "companyId".
	FieldName string `yaml:"field_name"`

	// Header is the inbound request header carrying the value.
	Header string `yaml:"header"`

	// LookupKey is the ambient context key. Defaults to Header.
	LookupKey string `yaml:"lookup_key"`

	// Required marks the level as mandatory for tenant-scoped requests.
	Required bool `yaml:"required"`
}

// Key returns the ambient lookup key for the level.
func (l HierarchyLevel) Key() string {
	if l.LookupKey != "" {
		return l.LookupKey
	}
	return l.Header
}

// TenancyConfig describes the tenant hierarchy.
type TenancyConfig struct {
	Mode TenancyMode `yaml:"mode"`

	// Levels lists the hierarchy, primary tenant first. Single-level mode
	// uses exactly one entry.
	Levels []HierarchyLevel `yaml:"levels"`

	// SystemID overrides DefaultSystemID.
	SystemID string `yaml:"system_id"`

	// OnConflict defaults to ConflictKeep.
	OnConflict ConflictPolicy `yaml:"on_conflict"`
}

// ContextField is a custom key/value provider applied by contextualization.
type ContextField struct {
	FieldName string

	// Value returns the value to stamp. Returning false skips the field.
	Value func(ctx context.Context) (any, bool)

	// ApplyOn defaults to ApplyOnWrite.
	ApplyOn ApplyOn
}

// Applies reports whether the field is applied for the given direction.
func (f ContextField) Applies(write bool) bool {
	on := f.ApplyOn
	if on == "" {
		on = ApplyOnWrite
	}
	if write {
		return on == ApplyOnWrite || on == ApplyOnBoth
	}
	return on == ApplyOnRead || on == ApplyOnBoth
}

// AuditPolicy configures audit stamping.
type AuditPolicy struct {
	UserIDHeader           string `yaml:"user_id_header"`
	UserIDLookupKey        string `yaml:"user_id_lookup_key"`
	CorrelationIDHeader    string `yaml:"correlation_id_header"`
	CorrelationIDLookupKey string `yaml:"correlation_id_lookup_key"`

	// SoftDeleteEnabled makes reads skip records carrying deletedAt.
	SoftDeleteEnabled bool `yaml:"soft_delete_enabled"`

	// ExtraFields are not loadable from YAML; they are code-only providers.
	ExtraFields []ContextField `yaml:"-"`
}

// UserIDKey returns the ambient lookup key for the acting user.
func (a AuditPolicy) UserIDKey() string {
	if a.UserIDLookupKey != "" {
		return a.UserIDLookupKey
	}
	return a.UserIDHeader
}

// CorrelationIDKey returns the ambient lookup key for the correlation id.
func (a AuditPolicy) CorrelationIDKey() string {
	if a.CorrelationIDLookupKey != "" {
		return a.CorrelationIDLookupKey
	}
	return a.CorrelationIDHeader
}

// Config holds the process-wide tenancy and audit configuration.
type Config struct {
	Tenancy TenancyConfig `yaml:"tenancy"`
	Audit   AuditPolicy   `yaml:"audit"`
}

// DefaultConfig returns a Config in regular mode with default audit keys.
func DefaultConfig() Config {
	return Config{
		Tenancy: TenancyConfig{
			Mode:       ModeRegular,
			SystemID:   DefaultSystemID,
			OnConflict: ConflictKeep,
		},
		Audit: AuditPolicy{
			UserIDHeader:        "x-user-id",
			CorrelationIDHeader: "x-correlation-id",
			SoftDeleteEnabled:   true,
		},
	}
}

// withDefaults fills zero values from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Tenancy.Mode == "" {
		c.Tenancy.Mode = def.Tenancy.Mode
	}
	if c.Tenancy.SystemID == "" {
		c.Tenancy.SystemID = def.Tenancy.SystemID
	}
	if c.Tenancy.OnConflict == "" {
		c.Tenancy.OnConflict = def.Tenancy.OnConflict
	}
	if c.Audit.UserIDHeader == "" {
		c.Audit.UserIDHeader = def.Audit.UserIDHeader
	}
	if c.Audit.CorrelationIDHeader == "" {
		c.Audit.CorrelationIDHeader = def.Audit.CorrelationIDHeader
	}
	return c
}

// Validate checks the configuration for structural errors.
func (c Config) Validate() error {
	switch c.Tenancy.Mode {
	case ModeRegular:
		if len(c.Tenancy.Levels) > 0 {
			return fmt.Errorf("%w: regular mode does not take hierarchy levels", ErrConfiguration)
		}
	case ModeSingleLevel:
		if len(c.Tenancy.Levels) != 1 {
			return fmt.Errorf("%w: single-level mode needs exactly one level, got %d",
				ErrConfiguration, len(c.Tenancy.Levels))
		}
	case ModeHierarchy:
		if len(c.Tenancy.Levels) == 0 {
			return fmt.Errorf("%w: hierarchy mode needs at least one level", ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown tenancy mode %q", ErrConfiguration, c.Tenancy.Mode)
	}

	seen := make(map[string]struct{}, len(c.Tenancy.Levels))
	for i, l := range c.Tenancy.Levels {
		if l.FieldName == "" {
			return fmt.Errorf("%w: level %d has no field name", ErrConfiguration, i)
		}
		if l.Key() == "" {
			return fmt.Errorf("%w: level %q has neither header nor lookup key", ErrConfiguration, l.FieldName)
		}
		if _, dup := seen[l.FieldName]; dup {
			return fmt.Errorf("%w: duplicate level field %q", ErrConfiguration, l.FieldName)
		}
		seen[l.FieldName] = struct{}{}
	}

	switch c.Tenancy.OnConflict {
	case "", ConflictKeep, ConflictClaim, ConflictReject:
	default:
		return fmt.Errorf("%w: unknown conflict policy %q", ErrConfiguration, c.Tenancy.OnConflict)
	}

	for _, f := range c.Audit.ExtraFields {
		if f.FieldName == "" || f.Value == nil {
			return fmt.Errorf("%w: extra audit field needs a name and a value provider", ErrConfiguration)
		}
	}
	return nil
}

// Regular reports whether tenancy is disabled.
func (c *Config) Regular() bool { return c.Tenancy.Mode == ModeRegular }

// Levels returns the configured hierarchy, empty in regular mode.
func (c *Config) Levels() []HierarchyLevel {
	if c.Regular() {
		return nil
	}
	return c.Tenancy.Levels
}

// PrimaryLevel returns the first hierarchy level.
func (c *Config) PrimaryLevel() (HierarchyLevel, bool) {
	levels := c.Levels()
	if len(levels) == 0 {
		return HierarchyLevel{}, false
	}
	return levels[0], true
}

// SystemID returns the configured system identity.
func (c *Config) SystemID() string {
	if c.Tenancy.SystemID == "" {
		return DefaultSystemID
	}
	return c.Tenancy.SystemID
}
