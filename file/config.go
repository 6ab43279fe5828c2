package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

const (
	DefaultFilename  = "clinicagenda.toml"
	DefaultDatabase  = "clinicagenda.db"
	DefaultAddr      = ":8080"
	DefaultProvider  = "google"
	DefaultTokenKey  = "google_calendar_token"
	DefaultDaysAhead = 60
)

type Config struct {
	Database   string   `toml:"database"`
	Provider   string   `toml:"provider"`
	ListenAddr string   `toml:"listen_addr"`
	LogLevel   string   `toml:"log_level"`
	DaysAhead  int      `toml:"days_ahead"`
	TokenKey   string   `toml:"token_key"`
	Palette    []string `toml:"palette"`

	Google GoogleConfig `toml:"google"`
	CalDAV CalDAVConfig `toml:"caldav"`

	dir string
}

type GoogleConfig struct {
	ClientID        string `toml:"client_id"`
	ClientSecret    string `toml:"client_secret"`
	CredentialsFile string `toml:"credentials_file"`
	RedirectURL     string `toml:"redirect_url"`
}

type CalDAVConfig struct {
	URL      string `toml:"url"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

func NewConfig() *Config {
	return &Config{
		Database:   DefaultDatabase,
		Provider:   DefaultProvider,
		ListenAddr: DefaultAddr,
		LogLevel:   "info",
		DaysAhead:  DefaultDaysAhead,
		TokenKey:   DefaultTokenKey,
	}
}

// Load reads filename, or when it is empty the first of ./clinicagenda.toml
// and $HOME/.config/clinicagenda/clinicagenda.toml. Missing default files
// are not an error. Environment variables override what the file says.
func Load(filename string) (*Config, error) {
	cfg := NewConfig()

	path, err := find(filename)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		cfg.dir = filepath.Dir(path)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.fillDefaults()
	return cfg, nil
}

func find(filename string) (string, error) {
	if filename != "" {
		if _, err := os.Stat(filename); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return filename, nil
	}

	candidates := []string{DefaultFilename}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "clinicagenda", DefaultFilename))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", nil
}

func (c *Config) applyEnv() error {
	for env, field := range map[string]*string{
		"CLINICAGENDA_DB":         &c.Database,
		"CLINICAGENDA_ADDR":       &c.ListenAddr,
		"CLINICAGENDA_PROVIDER":   &c.Provider,
		"LOG_LEVEL":               &c.LogLevel,
		"GOOGLE_CLIENT_ID":        &c.Google.ClientID,
		"GOOGLE_CLIENT_SECRET":    &c.Google.ClientSecret,
		"GOOGLE_CREDENTIALS_FILE": &c.Google.CredentialsFile,
		"GOOGLE_REDIRECT_URL":     &c.Google.RedirectURL,
		"CALDAV_URL":              &c.CalDAV.URL,
		"CALDAV_USERNAME":         &c.CalDAV.Username,
		"CALDAV_PASSWORD":         &c.CalDAV.Password,
	} {
		if v, ok := os.LookupEnv(env); ok && v != "" {
			*field = v
		}
	}

	if v := os.Getenv("CLINICAGENDA_DAYS_AHEAD"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CLINICAGENDA_DAYS_AHEAD: %w", err)
		}
		c.DaysAhead = days
	}
	return nil
}

func (c *Config) fillDefaults() {
	if c.Database == "" {
		c.Database = DefaultDatabase
	}
	// A relative database lives next to the config file it was named in.
	if c.dir != "" && !filepath.IsAbs(c.Database) {
		c.Database = filepath.Join(c.dir, c.Database)
	}
	if c.Provider == "" {
		c.Provider = DefaultProvider
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultAddr
	}
	if c.DaysAhead <= 0 {
		c.DaysAhead = DefaultDaysAhead
	}
	if c.TokenKey == "" {
		c.TokenKey = DefaultTokenKey
	}
}

func (c *Config) Validate() error {
	switch c.Provider {
	case "google":
		if c.Google.ClientID == "" && c.Google.CredentialsFile == "" {
			return errors.New("google: client_id or credentials_file is required")
		}
	case "caldav":
		if c.CalDAV.URL == "" {
			return errors.New("caldav: url is required")
		}
	default:
		return fmt.Errorf("provider %q is not supported", c.Provider)
	}
	return nil
}

// GoogleCredentials returns the content of the credentials file, or nil
// when the client is configured by id and secret.
func (c *Config) GoogleCredentials() ([]byte, error) {
	if c.Google.CredentialsFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(c.Google.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("reading google credentials: %w", err)
	}
	return data, nil
}
