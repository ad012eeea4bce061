package schema

type (
	// Config is the root configuration loaded via conf.MustLoad.
	Config struct {
		Services map[string]Service `yaml:"services" json:"services"`
	}

	// Service isolates access to one database.
	Service struct {
		// DSN is the connection string, driver://uri.
		DSN string `yaml:"dsn" json:"dsn"`
		// Destructive enables table and column removal during sync.
		Destructive bool `yaml:"destructive" json:"destructive,optional"`
		// EmitNotNull emits NOT NULL constraints in generated DDL. Off by
		// default; requiredness is enforced by validation instead.
		EmitNotNull bool `yaml:"emit_not_null" json:"emit_not_null,optional"`
		// Doctypes declares the service's document types, keyed by name.
		Doctypes map[string]DoctypeSpec `yaml:"doctypes" json:"doctypes,optional"`
	}

	// DoctypeSpec is one doctype declaration as written in configuration.
	DoctypeSpec struct {
		IsSingle              bool     `yaml:"single" json:"single,optional"`
		IsSubmittable         bool     `yaml:"submittable" json:"submittable,optional"`
		TrackChanges          bool     `yaml:"track_changes" json:"track_changes,optional"`
		NamingSeries          string   `yaml:"naming_series" json:"naming_series,optional"`
		SearchFields          []string `yaml:"search_fields" json:"search_fields,optional"`
		RequireUserPermission bool     `yaml:"require_user_permission" json:"require_user_permission,optional"`
		Fields                []*Field `yaml:"fields" json:"fields"`
	}
)

// Load turns declared doctypes into the runnable schema set: standard fields
// injected, relatives derived, system doctypes merged in.
func Load(specs map[string]DoctypeSpec) (Schemas, error) {
	s := Schemas{}
	for name, spec := range specs {
		d := New(name, spec.Fields)
		d.IsSingle = spec.IsSingle
		d.IsSubmittable = spec.IsSubmittable
		d.TrackChanges = spec.TrackChanges
		d.NamingSeries = spec.NamingSeries
		d.SearchFields = spec.SearchFields
		d.RequireUserPermission = spec.RequireUserPermission
		s[name] = d
	}
	if err := Build(s); err != nil {
		return nil, err
	}
	return WithSystem(s), nil
}
