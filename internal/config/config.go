package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

// Platform selects which OAuth client ID and redirect URI scheme apply.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

// Config carries everything the auth manager and Gmail transport need.
// Endpoints are injectable so tests can point them at local servers; the
// defaults are Google's production endpoints.
type Config struct {
	Platform        Platform
	IOSClientID     string
	AndroidClientID string

	AuthEndpoint       string
	TokenEndpoint      string
	RevocationEndpoint string
	UserInfoEndpoint   string
	GmailEndpoint      string // Gmail API base URL; empty means the library default

	Scopes []string

	DataDir        string
	MaxAttachments int
}

// Only the send scope is requested beyond identity - the app never reads mail.
var defaultScopes = []string{
	"openid",
	"email",
	"profile",
	"https://www.googleapis.com/auth/gmail.send",
}

// Load builds a Config from the environment, falling back to defaults.
func Load() Config {
	return Config{
		Platform:        Platform(getEnvString("CAPSULE_PLATFORM", string(PlatformIOS))),
		IOSClientID:     getEnvString("CAPSULE_IOS_CLIENT_ID", ""),
		AndroidClientID: getEnvString("CAPSULE_ANDROID_CLIENT_ID", ""),

		AuthEndpoint:       getEnvString("CAPSULE_AUTH_ENDPOINT", "https://accounts.google.com/o/oauth2/v2/auth"),
		TokenEndpoint:      getEnvString("CAPSULE_TOKEN_ENDPOINT", "https://oauth2.googleapis.com/token"),
		RevocationEndpoint: getEnvString("CAPSULE_REVOCATION_ENDPOINT", "https://oauth2.googleapis.com/revoke"),
		UserInfoEndpoint:   getEnvString("CAPSULE_USERINFO_ENDPOINT", "https://www.googleapis.com/oauth2/v2/userinfo"),
		GmailEndpoint:      getEnvString("CAPSULE_GMAIL_ENDPOINT", ""),

		Scopes: defaultScopes,

		DataDir:        getEnvString("CAPSULE_DATA_DIR", ""),
		MaxAttachments: getEnvInt("CAPSULE_MAX_ATTACHMENTS", 5),
	}
}

// ClientID returns the OAuth client ID for the configured platform.
func (c Config) ClientID() string {
	if c.Platform == PlatformAndroid {
		return c.AndroidClientID
	}
	return c.IOSClientID
}

// Validate reports missing required configuration. A missing client ID is a
// setup error, not a runtime failure, so callers are expected to treat this
// as fatal.
func (c Config) Validate() error {
	if c.ClientID() == "" {
		return errors.New("config: no OAuth client ID set for platform " + string(c.Platform))
	}
	return nil
}

func getEnvString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err == nil {
			return parsed
		}
	}
	return fallback
}
