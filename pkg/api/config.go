package api

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServerConfig defines the API server runtime settings.
type ServerConfig struct {
	// Port is the TCP port to bind (0 = pick a free port).
	Port int `json:"port" yaml:"port"`
	// Host is the bind address. Default: 127.0.0.1
	Host string `json:"host" yaml:"host"`
	// BasePath is stripped from every request path before routing ("" = none).
	BasePath string `json:"basePath,omitempty" yaml:"basePath,omitempty"`
	// Logging enables per-request logging.
	Logging bool `json:"logging" yaml:"logging"`

	// Auth configures API key / bearer token authentication.
	Auth AuthConfig `json:"auth" yaml:"auth"`
	// RateLimit configures per-client rate limiting.
	RateLimit RateLimitConfig `json:"rateLimit" yaml:"rateLimit"`
	// CORS configures Cross-Origin Resource Sharing headers.
	CORS CORSConfig `json:"cors" yaml:"cors"`
	// SSE configures the Server-Sent-Events stream.
	SSE SSEConfig `json:"sse" yaml:"sse"`
	// OpenAPI configures serving of the generated OpenAPI document.
	OpenAPI OpenAPIConfig `json:"openapi" yaml:"openapi"`
}

// AuthConfig defines authentication settings.
type AuthConfig struct {
	// Enabled enables the authentication middleware.
	Enabled bool `json:"enabled" yaml:"enabled"`
	// Keys is the set of accepted static API keys.
	Keys []string `json:"keys,omitempty" yaml:"keys,omitempty"`
	// JWTSecret, when set, additionally accepts HS256-signed bearer tokens.
	JWTSecret string `json:"jwtSecret,omitempty" yaml:"jwtSecret,omitempty"`
}

// RateLimitConfig defines per-client rate limiting settings.
type RateLimitConfig struct {
	// Enabled enables the rate limiting middleware.
	Enabled bool `json:"enabled" yaml:"enabled"`
	// RequestsPerSecond is the token refill rate. Default: 50
	RequestsPerSecond float64 `json:"requestsPerSecond" yaml:"requestsPerSecond"`
	// BurstSize is the maximum bucket capacity. Default: 100
	BurstSize int `json:"burstSize" yaml:"burstSize"`
}

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	// Enabled enables the CORS middleware.
	Enabled bool `json:"enabled" yaml:"enabled"`
	// AllowOrigins specifies allowed origins. Default: ["*"]
	AllowOrigins []string `json:"allowOrigins,omitempty" yaml:"allowOrigins,omitempty"`
	// AllowMethods specifies allowed HTTP methods.
	AllowMethods []string `json:"allowMethods,omitempty" yaml:"allowMethods,omitempty"`
	// AllowHeaders specifies allowed request headers.
	AllowHeaders []string `json:"allowHeaders,omitempty" yaml:"allowHeaders,omitempty"`
	// ExposeHeaders specifies response headers browsers may read.
	ExposeHeaders []string `json:"exposeHeaders,omitempty" yaml:"exposeHeaders,omitempty"`
	// AllowCredentials indicates whether credentials are allowed.
	AllowCredentials bool `json:"allowCredentials,omitempty" yaml:"allowCredentials,omitempty"`
	// MaxAge is the preflight cache duration in seconds. Default: 86400
	MaxAge int `json:"maxAge,omitempty" yaml:"maxAge,omitempty"`
}

// SSEConfig defines Server-Sent-Events settings.
type SSEConfig struct {
	// HeartbeatIntervalMs is the per-connection heartbeat interval in
	// milliseconds. Default: 30000
	HeartbeatIntervalMs int `json:"heartbeatIntervalMs" yaml:"heartbeatIntervalMs"`
}

// OpenAPIConfig defines OpenAPI document settings.
type OpenAPIConfig struct {
	// Enabled serves the generated document at Path.
	Enabled bool `json:"enabled" yaml:"enabled"`
	// Path is where the document is served. Default: /openapi.json
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// DefaultConfig returns the full default server configuration.
func DefaultConfig() *ServerConfig {
	return &ServerConfig{
		Port:      8420,
		Host:      "127.0.0.1",
		BasePath:  "/api",
		Logging:   true,
		Auth:      DefaultAuthConfig(),
		RateLimit: DefaultRateLimitConfig(),
		CORS:      DefaultCORSConfig(),
		SSE:       DefaultSSEConfig(),
		OpenAPI:   DefaultOpenAPIConfig(),
	}
}

// DefaultAuthConfig returns default authentication settings (disabled).
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{Enabled: false}
}

// DefaultRateLimitConfig returns default rate limit settings (disabled).
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:           false,
		RequestsPerSecond: 50,
		BurstSize:         100,
	}
}

// DefaultCORSConfig returns default CORS settings.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		Enabled:      true,
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization", "X-API-Key"},
		MaxAge:       86400,
	}
}

// DefaultSSEConfig returns default SSE settings.
func DefaultSSEConfig() SSEConfig {
	return SSEConfig{HeartbeatIntervalMs: 30000}
}

// DefaultOpenAPIConfig returns default OpenAPI settings.
func DefaultOpenAPIConfig() OpenAPIConfig {
	return OpenAPIConfig{Enabled: true, Path: "/openapi.json"}
}

// Overrides is a partial configuration merged onto defaults. Scalar fields
// use pointers so an absent value is distinguishable from a zero value.
// Nested sections merge field-by-field: an override never replaces a whole
// section wholesale.
type Overrides struct {
	Port     *int    `json:"port,omitempty" yaml:"port,omitempty"`
	Host     *string `json:"host,omitempty" yaml:"host,omitempty"`
	BasePath *string `json:"basePath,omitempty" yaml:"basePath,omitempty"`
	Logging  *bool   `json:"logging,omitempty" yaml:"logging,omitempty"`

	Auth      *AuthOverrides      `json:"auth,omitempty" yaml:"auth,omitempty"`
	RateLimit *RateLimitOverrides `json:"rateLimit,omitempty" yaml:"rateLimit,omitempty"`
	CORS      *CORSOverrides      `json:"cors,omitempty" yaml:"cors,omitempty"`
	SSE       *SSEOverrides       `json:"sse,omitempty" yaml:"sse,omitempty"`
	OpenAPI   *OpenAPIOverrides   `json:"openapi,omitempty" yaml:"openapi,omitempty"`
}

// AuthOverrides is a partial AuthConfig.
type AuthOverrides struct {
	Enabled   *bool    `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Keys      []string `json:"keys,omitempty" yaml:"keys,omitempty"`
	JWTSecret *string  `json:"jwtSecret,omitempty" yaml:"jwtSecret,omitempty"`
}

// RateLimitOverrides is a partial RateLimitConfig.
type RateLimitOverrides struct {
	Enabled           *bool    `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	RequestsPerSecond *float64 `json:"requestsPerSecond,omitempty" yaml:"requestsPerSecond,omitempty"`
	BurstSize         *int     `json:"burstSize,omitempty" yaml:"burstSize,omitempty"`
}

// CORSOverrides is a partial CORSConfig.
type CORSOverrides struct {
	Enabled          *bool    `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	AllowOrigins     []string `json:"allowOrigins,omitempty" yaml:"allowOrigins,omitempty"`
	AllowMethods     []string `json:"allowMethods,omitempty" yaml:"allowMethods,omitempty"`
	AllowHeaders     []string `json:"allowHeaders,omitempty" yaml:"allowHeaders,omitempty"`
	ExposeHeaders    []string `json:"exposeHeaders,omitempty" yaml:"exposeHeaders,omitempty"`
	AllowCredentials *bool    `json:"allowCredentials,omitempty" yaml:"allowCredentials,omitempty"`
	MaxAge           *int     `json:"maxAge,omitempty" yaml:"maxAge,omitempty"`
}

// SSEOverrides is a partial SSEConfig.
type SSEOverrides struct {
	HeartbeatIntervalMs *int `json:"heartbeatIntervalMs,omitempty" yaml:"heartbeatIntervalMs,omitempty"`
}

// OpenAPIOverrides is a partial OpenAPIConfig.
type OpenAPIOverrides struct {
	Enabled *bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Path    *string `json:"path,omitempty" yaml:"path,omitempty"`
}

// MergeConfig applies partial overrides on top of the defaults and returns
// the resulting configuration. Merging is explicit and per-section: slices
// replace (never append), absent fields keep their defaults.
func MergeConfig(o *Overrides) *ServerConfig {
	cfg := DefaultConfig()
	if o == nil {
		return cfg
	}

	if o.Port != nil {
		cfg.Port = *o.Port
	}
	if o.Host != nil {
		cfg.Host = *o.Host
	}
	if o.BasePath != nil {
		cfg.BasePath = *o.BasePath
	}
	if o.Logging != nil {
		cfg.Logging = *o.Logging
	}

	mergeAuth(&cfg.Auth, o.Auth)
	mergeRateLimit(&cfg.RateLimit, o.RateLimit)
	mergeCORS(&cfg.CORS, o.CORS)
	mergeSSE(&cfg.SSE, o.SSE)
	mergeOpenAPI(&cfg.OpenAPI, o.OpenAPI)

	return cfg
}

func mergeAuth(dst *AuthConfig, o *AuthOverrides) {
	if o == nil {
		return
	}
	if o.Enabled != nil {
		dst.Enabled = *o.Enabled
	}
	if o.Keys != nil {
		dst.Keys = o.Keys
	}
	if o.JWTSecret != nil {
		dst.JWTSecret = *o.JWTSecret
	}
}

func mergeRateLimit(dst *RateLimitConfig, o *RateLimitOverrides) {
	if o == nil {
		return
	}
	if o.Enabled != nil {
		dst.Enabled = *o.Enabled
	}
	if o.RequestsPerSecond != nil {
		dst.RequestsPerSecond = *o.RequestsPerSecond
	}
	if o.BurstSize != nil {
		dst.BurstSize = *o.BurstSize
	}
}

func mergeCORS(dst *CORSConfig, o *CORSOverrides) {
	if o == nil {
		return
	}
	if o.Enabled != nil {
		dst.Enabled = *o.Enabled
	}
	if o.AllowOrigins != nil {
		dst.AllowOrigins = o.AllowOrigins
	}
	if o.AllowMethods != nil {
		dst.AllowMethods = o.AllowMethods
	}
	if o.AllowHeaders != nil {
		dst.AllowHeaders = o.AllowHeaders
	}
	if o.ExposeHeaders != nil {
		dst.ExposeHeaders = o.ExposeHeaders
	}
	if o.AllowCredentials != nil {
		dst.AllowCredentials = *o.AllowCredentials
	}
	if o.MaxAge != nil {
		dst.MaxAge = *o.MaxAge
	}
}

func mergeSSE(dst *SSEConfig, o *SSEOverrides) {
	if o == nil {
		return
	}
	if o.HeartbeatIntervalMs != nil {
		dst.HeartbeatIntervalMs = *o.HeartbeatIntervalMs
	}
}

func mergeOpenAPI(dst *OpenAPIConfig, o *OpenAPIOverrides) {
	if o == nil {
		return
	}
	if o.Enabled != nil {
		dst.Enabled = *o.Enabled
	}
	if o.Path != nil {
		dst.Path = *o.Path
	}
}

// LoadOverrides reads partial configuration overrides from a YAML file.
func LoadOverrides(path string) (*Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var o Overrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &o, nil
}
