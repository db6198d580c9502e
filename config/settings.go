package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Server   ServerSettings   `json:"server"`
	Upstream UpstreamSettings `json:"upstream"`
	Cache    CacheSettings    `json:"cache"`
	Redis    RedisSettings    `json:"redis"`
	Sessions SessionSettings  `json:"sessions"`
	UI       UISettings       `json:"ui"`
	Log      LogConfig        `json:"log"`
}

type ServerSettings struct {
	Host                string `json:"host"`
	Port                int    `json:"port" validate:"min=1,max=65535"`
	ReadTimeoutSeconds  int    `json:"readTimeoutSeconds" validate:"min=0"`
	WriteTimeoutSeconds int    `json:"writeTimeoutSeconds" validate:"min=0"`
	// FrontendOrigin is echoed in Access-Control-Allow-Origin on /api routes.
	FrontendOrigin string `json:"frontendOrigin"`
}

// UpstreamSettings configures the content backend client.
type UpstreamSettings struct {
	BaseURL        string `json:"baseUrl" validate:"required,url"`
	TimeoutSeconds int    `json:"timeoutSeconds" validate:"min=1"`
	// RetryAttempts is the total number of attempts per request, first try included.
	RetryAttempts           int     `json:"retryAttempts" validate:"min=1,max=5"`
	RetryDelayMillis        int     `json:"retryDelayMillis" validate:"min=0"`
	RequestsPerSecond       float64 `json:"requestsPerSecond" validate:"gte=0"` // 0 disables client side rate limiting
	Burst                   int     `json:"burst" validate:"min=1"`
	BreakerFailureThreshold int     `json:"breakerFailureThreshold" validate:"min=1"`
	BreakerOpenSeconds      int     `json:"breakerOpenSeconds" validate:"min=1"`
}

type CacheBackend string

const (
	CacheBackendMemory CacheBackend = "memory"
	CacheBackendRedis  CacheBackend = "redis"
)

// CacheSettings mirrors the request cache policy of the web client: stale times
// decide when to refetch, retention decides when entries are dropped.
type CacheSettings struct {
	Backend               CacheBackend `json:"backend" validate:"oneof=memory redis"`
	MaxEntries            int          `json:"maxEntries" validate:"min=1"`
	SearchStaleMinutes    int          `json:"searchStaleMinutes" validate:"min=0"`
	TrendingStaleMinutes  int          `json:"trendingStaleMinutes" validate:"min=0"`
	PlatformsStaleMinutes int          `json:"platformsStaleMinutes" validate:"min=0"`
	RetentionMinutes      int          `json:"retentionMinutes" validate:"min=1"`
}

type RedisSettings struct {
	Address  string `json:"address" validate:"required_if=Enabled true"`
	Password string `json:"password"`
	DB       int    `json:"db" validate:"min=0"`
	Prefix   string `json:"prefix"`
	Enabled  bool   `json:"-"`
}

// SessionSettings bounds the live search sessions kept for the JSON API.
type SessionSettings struct {
	MaxSessions int `json:"maxSessions" validate:"min=1"`
	IdleMinutes int `json:"idleMinutes" validate:"min=1"`
}

type UISettings struct {
	SiteName     string `json:"siteName" validate:"required"`
	HeroItems    int    `json:"heroItems" validate:"min=0"`
	ItemsPerPage int    `json:"itemsPerPage" validate:"min=1"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	File       string `json:"file"`
	Level      string `json:"level" validate:"omitempty,oneof=debug info warn error"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{Host: "0.0.0.0", Port: 3000, ReadTimeoutSeconds: 30, WriteTimeoutSeconds: 60, FrontendOrigin: "*"},
		Upstream: UpstreamSettings{
			BaseURL:                 "http://localhost:8001",
			TimeoutSeconds:          20,
			RetryAttempts:           2,
			RetryDelayMillis:        300,
			RequestsPerSecond:       20,
			Burst:                   10,
			BreakerFailureThreshold: 5,
			BreakerOpenSeconds:      30,
		},
		Cache: CacheSettings{
			Backend:               CacheBackendMemory,
			MaxEntries:            512,
			SearchStaleMinutes:    5,
			TrendingStaleMinutes:  10,
			PlatformsStaleMinutes: 30,
			RetentionMinutes:      30,
		},
		Redis:    RedisSettings{Address: "localhost:6379", DB: 0, Prefix: "streamfinder"},
		Sessions: SessionSettings{MaxSessions: 1024, IdleMinutes: 30},
		UI:       UISettings{SiteName: "StreamFinder", HeroItems: 8, ItemsPerPage: 28},
		Log: LogConfig{
			File:       "cache/logs/streamfinder.log",
			Level:      "info",
			MaxSize:    50,   // 50 MB per file
			MaxBackups: 3,    // keep 3 old files
			MaxAge:     7,    // 7 days
			Compress:   true, // compress old files
		},
	}
}

type Manager struct {
	fs   afero.Fs
	path string
}

func NewManager(configPath string) *Manager {
	return NewManagerWithFs(afero.NewOsFs(), configPath)
}

// NewManagerWithFs lets tests run the manager on an in-memory filesystem.
func NewManagerWithFs(fsys afero.Fs, configPath string) *Manager {
	return &Manager{fs: fsys, path: configPath}
}

// Path returns the settings file location.
func (m *Manager) Path() string {
	return m.path
}

// EnsureDir ensures parent directory exists.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "." || dir == "" {
		return nil
	}
	return m.fs.MkdirAll(dir, 0o755)
}

// Load reads settings.json from disk or creates defaults if missing.
// Environment overrides are applied on top of the file but never written back.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	if _, err := m.fs.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		// create with defaults
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		ApplyEnv(&defaults, os.LookupEnv)
		return defaults, Validate(defaults)
	}

	data, err := afero.ReadFile(m.fs, m.path)
	if err != nil {
		return Settings{}, err
	}

	s := DefaultSettings()
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse %s: %w", m.path, err)
	}

	backfill(&s)
	ApplyEnv(&s, os.LookupEnv)

	if err := Validate(s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// backfill restores defaults for fields an older or hand-edited file left at zero.
func backfill(s *Settings) {
	d := DefaultSettings()

	if strings.TrimSpace(s.Server.Host) == "" {
		s.Server.Host = d.Server.Host
	}
	if s.Server.Port == 0 {
		s.Server.Port = d.Server.Port
	}
	if strings.TrimSpace(s.Upstream.BaseURL) == "" {
		s.Upstream.BaseURL = d.Upstream.BaseURL
	}
	s.Upstream.BaseURL = strings.TrimRight(strings.TrimSpace(s.Upstream.BaseURL), "/")
	if s.Upstream.TimeoutSeconds == 0 {
		s.Upstream.TimeoutSeconds = d.Upstream.TimeoutSeconds
	}
	if s.Upstream.RetryAttempts == 0 {
		s.Upstream.RetryAttempts = d.Upstream.RetryAttempts
	}
	if s.Upstream.Burst == 0 {
		s.Upstream.Burst = d.Upstream.Burst
	}
	if s.Upstream.BreakerFailureThreshold == 0 {
		s.Upstream.BreakerFailureThreshold = d.Upstream.BreakerFailureThreshold
	}
	if s.Upstream.BreakerOpenSeconds == 0 {
		s.Upstream.BreakerOpenSeconds = d.Upstream.BreakerOpenSeconds
	}
	if s.Cache.Backend == "" {
		s.Cache.Backend = d.Cache.Backend
	}
	if s.Cache.MaxEntries == 0 {
		s.Cache.MaxEntries = d.Cache.MaxEntries
	}
	if s.Cache.RetentionMinutes == 0 {
		s.Cache.RetentionMinutes = d.Cache.RetentionMinutes
	}
	if strings.TrimSpace(s.Redis.Prefix) == "" {
		s.Redis.Prefix = d.Redis.Prefix
	}
	if s.Sessions.MaxSessions == 0 {
		s.Sessions.MaxSessions = d.Sessions.MaxSessions
	}
	if s.Sessions.IdleMinutes == 0 {
		s.Sessions.IdleMinutes = d.Sessions.IdleMinutes
	}
	if strings.TrimSpace(s.UI.SiteName) == "" {
		s.UI.SiteName = d.UI.SiteName
	}
	if s.UI.ItemsPerPage == 0 {
		s.UI.ItemsPerPage = d.UI.ItemsPerPage
	}
	if strings.TrimSpace(s.Log.Level) == "" {
		s.Log.Level = d.Log.Level
	}
}

// ApplyEnv overlays environment variables onto s. lookup is os.LookupEnv outside tests.
func ApplyEnv(s *Settings, lookup func(string) (string, bool)) {
	get := func(keys ...string) (string, bool) {
		for _, key := range keys {
			if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v), true
			}
		}
		return "", false
	}

	// REACT_APP_BACKEND_URL is honoured so existing .env files keep working.
	if v, ok := get("STREAMFINDER_BACKEND_URL", "REACT_APP_BACKEND_URL"); ok {
		s.Upstream.BaseURL = strings.TrimRight(v, "/")
	}
	if v, ok := get("STREAMFINDER_PORT", "PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			s.Server.Port = port
		}
	}
	if v, ok := get("STREAMFINDER_CACHE_BACKEND"); ok {
		s.Cache.Backend = CacheBackend(strings.ToLower(v))
	}
	if v, ok := get("STREAMFINDER_REDIS_ADDR"); ok {
		s.Redis.Address = v
	}
	if v, ok := get("STREAMFINDER_REDIS_PASSWORD"); ok {
		s.Redis.Password = v
	}
	if v, ok := get("FRONTEND_ORIGIN"); ok {
		s.Server.FrontendOrigin = v
	}
	if v, ok := get("STREAMFINDER_LOG_FILE"); ok {
		s.Log.File = v
	}
	s.Redis.Enabled = s.Cache.Backend == CacheBackendRedis
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and reports every violation in one error.
func Validate(s Settings) error {
	s.Redis.Enabled = s.Cache.Backend == CacheBackendRedis
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			msg += " (" + fe.Param() + ")"
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("invalid settings: %s", strings.Join(msgs, "; "))
}

// Save writes the provided settings to disk atomically.
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return errors.New("config path not set")
	}
	if err := m.EnsureDir(); err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	f, err := m.fs.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		f.Close()
		_ = m.fs.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = m.fs.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = m.fs.Remove(tmp)
		return err
	}
	return m.fs.Rename(tmp, m.path)
}
