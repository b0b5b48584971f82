package main

import (
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-errors/errors"
	"github.com/spf13/cast"
)

type ArchiveConfig struct {
	RootFolderID      string `conf:"ARCHIVE_ROOT_FOLDER_ID"`
	ServiceCredential string `conf:"ARCHIVE_SERVICE_CREDENTIAL"`
}

type DataStoreConfig struct {
	URL      string `conf:"DATA_STORE_URL"`
	AdminKey string `conf:"DATA_STORE_ADMIN_KEY"`

	ConnectTimeout time.Duration `conf:"DATA_STORE_CONNECT_TIMEOUT,1m"`

	PgDumpURL string `conf:"BACKUP_PG_DUMP_URL"`
}

type StorageConfig struct {
	Provider string `conf:"STORAGE_PROVIDER,supabase"`
	URL      string `conf:"STORAGE_URL"`

	S3Endpoint  string `conf:"S3_ENDPOINT"`
	S3AccessKey string `conf:"S3_ACCESS_KEY"`
	S3SecretKey string `conf:"S3_SECRET_KEY"`
	S3UseSSL    bool   `conf:"S3_USE_SSL,true"`
}

type BackupConfig struct {
	// only student related tables, course structure and platform config are excluded
	Tables  []string `conf:"BACKUP_TABLES,profiles,enrollments,enrollment_modules,lesson_progress,test_attempts,test_grades,certificates,certificate_requests,tcc_submissions,student_grade_overrides,student_schedules,activity_logs"`
	Buckets []string `conf:"BACKUP_BUCKETS,certificates,avatars,templates,excel_templates"`

	Concurrency int           `conf:"BACKUP_CONCURRENCY,1"`
	Timeout     time.Duration `conf:"BACKUP_TIMEOUT,0"`

	Schedule string `conf:"BACKUP_SCHEDULE,@daily"`
}

type Config struct {
	Archive   ArchiveConfig
	DataStore DataStoreConfig
	Storage   StorageConfig
	Backup    BackupConfig

	LogLevel string `conf:"LOG_LEVEL,info"`
}

// Mode selects where the backup is written to
type Mode int

const (
	// ModeDrive writes into the remote archive
	ModeDrive Mode = iota
	// ModeLocal mirrors storage into a local directory
	ModeLocal
)

// MissingEnvError is returned for required but unset variables
type MissingEnvError struct {
	Name string
}

func (e *MissingEnvError) Error() string {
	return fmt.Sprintf("required environment variable %q is not set", e.Name)
}

func isHTTPURL(value string) bool {
	u, err := url.Parse(value)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}

// validate configuration
func (c *Config) validate(mode Mode) error {
	if mode == ModeDrive {
		if c.Archive.RootFolderID == "" {
			return &MissingEnvError{Name: "ARCHIVE_ROOT_FOLDER_ID"}
		}
		if c.Archive.ServiceCredential == "" {
			return &MissingEnvError{Name: "ARCHIVE_SERVICE_CREDENTIAL"}
		}
	}

	// the local mirror only reads storage
	db := c.DataStore
	if mode == ModeDrive {
		if db.URL == "" {
			return &MissingEnvError{Name: "DATA_STORE_URL"}
		}
		if isHTTPURL(db.URL) && db.AdminKey == "" {
			return &MissingEnvError{Name: "DATA_STORE_ADMIN_KEY"}
		}
	}

	switch c.Storage.Provider {
	case "supabase":
		if c.Storage.URL == "" {
			if !isHTTPURL(db.URL) {
				return &MissingEnvError{Name: "STORAGE_URL"}
			}
			c.Storage.URL = db.URL
		}
		if db.AdminKey == "" {
			return &MissingEnvError{Name: "DATA_STORE_ADMIN_KEY"}
		}
	case "s3":
		if c.Storage.S3Endpoint == "" {
			return &MissingEnvError{Name: "S3_ENDPOINT"}
		}
		if c.Storage.S3AccessKey == "" || c.Storage.S3SecretKey == "" {
			return errors.New("s3 endpoint given but credentials are missing")
		}
	default:
		return errors.Errorf("unknown storage provider %q", c.Storage.Provider)
	}

	if c.Backup.Concurrency < 1 {
		return errors.New("backup concurrency must be at least 1")
	}
	if c.Backup.Timeout < 0 {
		return errors.New("backup timeout must not be negative")
	}
	return nil
}

// LoadConfig from environment
func LoadConfig(mode Mode) (Config, error) {
	var conf Config
	if err := loadStruct(reflect.ValueOf(&conf).Elem()); err != nil {
		return conf, err
	}
	return conf, conf.validate(mode)
}

var durationType = reflect.TypeOf(time.Duration(0))

func loadStruct(st reflect.Value) error {
	for i := 0; i < st.NumField(); i++ {
		field := st.Field(i)
		fieldType := st.Type().Field(i)

		// load sub structures
		if fieldType.Type.Kind() == reflect.Struct {
			if err := loadStruct(field); err != nil {
				return err
			}
			continue
		}

		// get conf tag and skip this field if tag does not exist
		tag, ok := fieldType.Tag.Lookup("conf")
		if !ok {
			continue
		}
		splitTag := strings.SplitN(tag, ",", 2)

		// get value from env, empty values fall back to the default value
		value := os.Getenv(splitTag[0])
		if value == "" && len(splitTag) > 1 {
			value = splitTag[1]
		}

		// set value in struct
		var err error
		switch {
		case value == "" && fieldType.Type.Kind() != reflect.String:
			field.SetZero()
		case fieldType.Type == durationType:
			var d time.Duration
			d, err = cast.ToDurationE(value)
			field.SetInt(int64(d))
		case fieldType.Type.Kind() == reflect.String:
			field.SetString(value)
		case fieldType.Type.Kind() == reflect.Int:
			var n int64
			n, err = cast.ToInt64E(value)
			field.SetInt(n)
		case fieldType.Type.Kind() == reflect.Bool:
			var b bool
			b, err = cast.ToBoolE(value)
			field.SetBool(b)
		case fieldType.Type.Kind() == reflect.Slice && fieldType.Type.Elem().Kind() == reflect.String:
			field.Set(reflect.ValueOf(splitList(value)))

		default:
			panic("unsupported struct field type")
		}
		if err != nil {
			return fmt.Errorf("invalid value %q for %s: %w", value, splitTag[0], err)
		}
	}
	return nil
}

// splitList of comma separated values, empty entries are dropped
func splitList(value string) []string {
	list := []string{}
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			list = append(list, item)
		}
	}
	return list
}
