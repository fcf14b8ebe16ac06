package v1

const ConvertJobKind = "ConvertJob"

// ConvertJob is a batch of archive conversions.
type ConvertJob struct {
	Kind     string         `yaml:"kind" json:"kind" validate:"required,eq=ConvertJob"`
	Metadata Metadata       `yaml:"metadata" json:"metadata"`
	Spec     ConvertJobSpec `yaml:"spec" json:"spec"`
}

type Metadata struct {
	Name string `yaml:"name" json:"name" validate:"required"`
}

type ConvertJobSpec struct {
	// Concurrency bounds how many conversions run at once (default 4).
	Concurrency int `yaml:"concurrency,omitempty" json:"concurrency,omitempty" validate:"omitempty,min=1,max=64"`

	// SpoolDir is where downloads and streamed output are buffered (default: OS temp dir).
	SpoolDir string `yaml:"spool_dir,omitempty" json:"spool_dir,omitempty" template:""`

	// Defaults fill the fields a conversion leaves empty.
	Defaults *ConversionDefaults `yaml:"defaults,omitempty" json:"defaults,omitempty"`

	Conversions []Conversion `yaml:"conversions" json:"conversions" validate:"required,min=1,unique=ID,dive"`

	S3   *S3Spec   `yaml:"s3,omitempty" json:"s3,omitempty"`
	HTTP *HTTPSpec `yaml:"http,omitempty" json:"http,omitempty"`
}

type ConversionDefaults struct {
	OutputDir  string `yaml:"output_dir,omitempty" json:"output_dir,omitempty" template:""`
	Format     string `yaml:"format,omitempty" json:"format,omitempty" validate:"omitempty,archive_format"`
	Level      *int   `yaml:"level,omitempty" json:"level,omitempty" validate:"omitempty,min=1,max=9"`
	MinimalZip bool   `yaml:"minimal_zip,omitempty" json:"minimal_zip,omitempty"`
	Filter     string `yaml:"filter,omitempty" json:"filter,omitempty"`
}

// Conversion converts one source archive. Either Destination, or OutputDir together with
// Format, must be set.
type Conversion struct {
	ID string `yaml:"id" json:"id" validate:"required"`

	// Source is a local path, an http(s) URL or an s3:// URL. It is expanded before the
	// other fields so they can reference ${SOURCE_STEM}.
	Source string `yaml:"source" json:"source" validate:"required" template:"-"`

	// SourceFormat is an advisory hint; the source signature always wins.
	SourceFormat string `yaml:"source_format,omitempty" json:"source_format,omitempty" validate:"omitempty,archive_format"`

	Destination string `yaml:"destination,omitempty" json:"destination,omitempty" validate:"required_without=OutputDir" template:""`
	OutputDir   string `yaml:"output_dir,omitempty" json:"output_dir,omitempty" validate:"required_without=Destination" template:""`
	Format      string `yaml:"format,omitempty" json:"format,omitempty" validate:"omitempty,archive_format"`

	// Filter is a CEL expression over path, name, kind, size, mode, mtime, link_target and depth.
	Filter string `yaml:"filter,omitempty" json:"filter,omitempty"`

	Level      *int `yaml:"level,omitempty" json:"level,omitempty" validate:"omitempty,min=1,max=9"`
	MinimalZip bool `yaml:"minimal_zip,omitempty" json:"minimal_zip,omitempty"`
}

// S3Spec configures access to s3:// sources and destinations.
type S3Spec struct {
	Region         *string        `yaml:"region,omitempty" json:"region,omitempty" template:""`
	Endpoint       *string        `yaml:"endpoint,omitempty" json:"endpoint,omitempty" template:""`
	ForcePathStyle bool           `yaml:"force_path_style,omitempty" json:"force_path_style,omitempty"`
	Credentials    *S3Credentials `yaml:"credentials,omitempty" json:"credentials,omitempty"`
}

type S3Credentials struct {
	AccessKeyID     string `yaml:"access_key_id" json:"access_key_id" validate:"required" template:""`
	SecretAccessKey string `yaml:"secret_access_key" json:"secret_access_key" validate:"required" template:""`
}

// HTTPSpec configures http(s) sources.
type HTTPSpec struct {
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Auth    *HTTPAuth         `yaml:"auth,omitempty" json:"auth,omitempty"`
	// Timeout is in seconds.
	Timeout  *int `yaml:"timeout,omitempty" json:"timeout,omitempty" validate:"omitempty,min=1"`
	Insecure bool `yaml:"insecure,omitempty" json:"insecure,omitempty"`
}

type HTTPAuth struct {
	Basic *BasicAuth `yaml:"basic,omitempty" json:"basic,omitempty"`
}

type BasicAuth struct {
	Username string `yaml:"username,omitempty" json:"username,omitempty" template:""`
	Password string `yaml:"password,omitempty" json:"password,omitempty" template:""`
	Encoded  string `yaml:"encoded,omitempty" json:"encoded,omitempty" template:""`
}
