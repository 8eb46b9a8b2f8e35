package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config models rasapp.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr" validate:"required"`
		BasePath string `yaml:"base_path" validate:"omitempty,startswith=/"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret         string        `yaml:"jwt_secret"`
		TokenTTL          time.Duration `yaml:"token_ttl" validate:"gt=0"`
		PasswordMinLength int           `yaml:"password_min_length" validate:"gte=1,lte=128"`
		BcryptCost        int           `yaml:"bcrypt_cost" validate:"gte=4,lte=31"`
	} `yaml:"auth"`
	Database struct {
		Workspace string `yaml:"workspace"`
	} `yaml:"database"`
	Log struct {
		Level  string `yaml:"level" validate:"oneof=trace debug info warn warning error"`
		Format string `yaml:"format" validate:"oneof=json text"`
	} `yaml:"log"`
	Seed Seed `yaml:"seed"`
}

// Seed describes the framework and primary admin created on first start.
type Seed struct {
	FrameworkName       string `yaml:"framework_name" validate:"required"`
	AdminName           string `yaml:"admin_name" validate:"required"`
	AdminPersonalNumber string `yaml:"admin_personal_number" validate:"required"`
	AdminPassword       string `yaml:"admin_password"`
}

var validate = validator.New()

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return err
	}
	if pw := c.Seed.AdminPassword; pw != "" && len(pw) < c.Auth.PasswordMinLength {
		return fmt.Errorf("seed.admin_password shorter than auth.password_min_length (%d)", c.Auth.PasswordMinLength)
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "rasapp.yml")
}

// Load reads rasapp.yml from the workspace. A missing file yields defaults.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML overlays raw YAML on the defaults and validates the result.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GenerateDefault returns the default config as YAML text.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /api

auth:
  # empty secret disables token issuing; set RASAPP_AUTH_JWT_SECRET in production
  jwt_secret: ""
  token_ttl: 168h
  password_min_length: 8
  bcrypt_cost: 10

database:
  workspace: ""

log:
  level: info
  format: text

seed:
  framework_name: "HQ"
  admin_name: "Primary Admin"
  admin_personal_number: "0000000"
  admin_password: ""
`
