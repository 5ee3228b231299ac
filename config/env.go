package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Environment variable names
const (
	EnvPaperlessURL       = "PAPERLESS_URL"
	EnvPaperlessToken     = "PAPERLESS_TOKEN"
	EnvPollInterval       = "STAMP_POLL_INTERVAL"
	EnvDefaultColor       = "STAMP_DEFAULT_COLOR"
	EnvOpacity            = "STAMP_OPACITY"
	EnvTypes              = "STAMP_TYPES"
	EnvReceivedFallback   = "STAMP_RECEIVED_DATE_FALLBACK"
	envTextPrefix         = "STAMP_TEXT_"
	envColorPrefix        = "STAMP_COLOR_"
	envDateFieldPrefix    = "STAMP_DATE_FIELD_"
	envDateFallbackPrefix = "STAMP_DATE_FALLBACK_"
)

// ApplyEnv overlays environment variables, given in os.Environ form, on cfg
func ApplyEnv(cfg *Config, environ []string) error {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			env[k] = v
		}
	}

	setString(env, EnvPaperlessURL, &cfg.Paperless.URL)
	setString(env, EnvPaperlessToken, &cfg.Paperless.Token)
	setString(env, EnvDefaultColor, &cfg.Stamp.DefaultColor)
	setString(env, "LOG_LEVEL", &cfg.Log.Level)
	setString(env, "LOG_FORMAT", &cfg.Log.Format)
	setString(env, "STORE_DRIVER", &cfg.Store.Driver)
	setString(env, "STORE_PATH", &cfg.Store.Path)
	setString(env, "REDIS_ADDR", &cfg.Redis.Addr)
	setString(env, "REDIS_PASSWORD", &cfg.Redis.Password)
	if v, ok := env["MINIO_ENDPOINT"]; ok && v != "" {
		cfg.Minio.Endpoint = v
		cfg.Minio.Enabled = true
	}
	setString(env, "MINIO_ACCESS_KEY", &cfg.Minio.AccessKey)
	setString(env, "MINIO_SECRET_KEY", &cfg.Minio.SecretKey)
	setString(env, "MINIO_BUCKET", &cfg.Minio.Bucket)

	if err := setInt(env, EnvPollInterval, &cfg.Stamp.PollInterval); err != nil {
		return err
	}
	if err := setInt(env, "SERVER_PORT", &cfg.Server.Port); err != nil {
		return err
	}
	if v, ok := env[EnvOpacity]; ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvOpacity, err)
		}
		cfg.Stamp.Opacity = f
	}

	if cfg.Stamp.Types == nil {
		cfg.Stamp.Types = make(map[string]TypeConfig)
	}
	for _, name := range envTypes(env) {
		tc, ok := cfg.Stamp.Types[name]
		if !ok {
			tc = typeDefaults(name, TypeConfig{})
		}
		suffix := strings.ToUpper(name)
		setString(env, envTextPrefix+suffix, &tc.Text)
		setString(env, envColorPrefix+suffix, &tc.Color)
		setString(env, envDateFieldPrefix+suffix, &tc.DateField)
		if v, ok := env[envDateFallbackPrefix+suffix]; ok && v != "" {
			tc.DateFallback = NormalizeFallback(v)
		}
		cfg.Stamp.Types[name] = tc
	}

	if v, ok := env[EnvReceivedFallback]; ok && v != "" {
		tc := cfg.Stamp.Types["received"]
		tc.DateFallback = NormalizeFallback(v)
		cfg.Stamp.Types["received"] = tc
	}

	return nil
}

// envTypes lists every configured or environment-declared stamp type
func envTypes(env map[string]string) []string {
	seen := make(map[string]bool)
	var names []string
	add := func(name string) {
		name = normalizeType(name)
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	for name := range builtinTypes {
		add(name)
	}
	for _, name := range strings.Split(env[EnvTypes], ",") {
		add(name)
	}
	for k := range env {
		for _, prefix := range []string{envTextPrefix, envColorPrefix, envDateFieldPrefix, envDateFallbackPrefix} {
			if rest, ok := strings.CutPrefix(k, prefix); ok {
				add(rest)
			}
		}
	}
	return names
}

func setString(env map[string]string, key string, dst *string) {
	if v, ok := env[key]; ok && v != "" {
		*dst = v
	}
}

func setInt(env map[string]string, key string, dst *int) error {
	v, ok := env[key]
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}
