package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/casanet/remote-server/internal/flagx"
	"github.com/casanet/remote-server/internal/timex"
)

// JsonConfig is the file representation of Config. Durations use
// timex.Duration so they may be written as "2m" or as nanoseconds.
// Only keys present in the file override the current values.
type JsonConfig struct {
	EndpointAddrHTTP      *string         `json:"endpoint_addr_http"`
	DatabaseDSN           *string         `json:"database_dsn"`
	KeySalt               *string         `json:"key_salt"`
	SecretKey             *string         `json:"secret_key"`
	SessionValidity       *timex.Duration `json:"session_validity"`
	HTTPRequestTimeout    *timex.Duration `json:"http_request_timeout"`
	LogsRequestTimeout    *timex.Duration `json:"logs_request_timeout"`
	ReaperInterval        *timex.Duration `json:"reaper_interval"`
	RegistrationCodeTTL   *timex.Duration `json:"registration_code_ttl"`
	NotificationWindow    *timex.Duration `json:"notification_window"`
	FailedHandshakeDelay  *timex.Duration `json:"failed_handshake_delay"`
	NotificationsTimezone *string         `json:"notifications_timezone"`
	AllowedOrigin         *string         `json:"allowed_origin"`
	SecureCookies         *bool           `json:"secure_cookies"`
	LogLevel              *string         `json:"log_level"`
	LogFormat             *string         `json:"log_format"`
	SMTPHost              *string         `json:"smtp_host"`
	SMTPPort              *int            `json:"smtp_port"`
	SMTPUsername          *string         `json:"smtp_username"`
	SMTPPassword          *string         `json:"smtp_password"`
	SMTPFrom              *string         `json:"smtp_from"`
	NATSURL               *string         `json:"nats_url"`
	NATSStream            *string         `json:"nats_stream"`
	S3RootUser            *string         `json:"s3_root_user"`
	S3RootPassword        *string         `json:"s3_root_password"`
	S3Bucket              *string         `json:"s3_bucket"`
	S3Region              *string         `json:"s3_region"`
	S3BaseEndpoint        *string         `json:"s3_base_endpoint"`
}

// parseJson loads configuration values from the JSON file named by the -c or
// -config flag into config. Without the flag nothing is loaded. An unreadable
// or invalid file panics.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JSONConfigPath(os.Args[1:])

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.KeySalt, c.KeySalt)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.SessionValidity, c.SessionValidity)
	setDuration(&config.HTTPRequestTimeout, c.HTTPRequestTimeout)
	setDuration(&config.LogsRequestTimeout, c.LogsRequestTimeout)
	setDuration(&config.ReaperInterval, c.ReaperInterval)
	setDuration(&config.RegistrationCodeTTL, c.RegistrationCodeTTL)
	setDuration(&config.NotificationWindow, c.NotificationWindow)
	setDuration(&config.FailedHandshakeDelay, c.FailedHandshakeDelay)
	setString(&config.NotificationsTimezone, c.NotificationsTimezone)
	setString(&config.AllowedOrigin, c.AllowedOrigin)
	if c.SecureCookies != nil {
		config.SecureCookies = *c.SecureCookies
	}
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFormat, c.LogFormat)
	setString(&config.SMTPHost, c.SMTPHost)
	if c.SMTPPort != nil {
		config.SMTPPort = *c.SMTPPort
	}
	setString(&config.SMTPUsername, c.SMTPUsername)
	setString(&config.SMTPPassword, c.SMTPPassword)
	setString(&config.SMTPFrom, c.SMTPFrom)
	setString(&config.NATSURL, c.NATSURL)
	setString(&config.NATSStream, c.NATSStream)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
