// Package config provides configuration sections and validation helpers for simple-device-auth.
//
// Sections are plain structs with cleanenv tags and are embedded in the binary's
// top-level Config:
//
//	type Config struct {
//		Database config.DatabaseConfig
//		Token    config.TokenConfig
//		Device   config.DeviceConfig
//		...
//	}
//	cleanenv.ReadEnv(&cfg)
//
// Each section has a Validate method returning ValidationErrors; combine them with
// Validate:
//
//	err := config.Validate(cfg.Device.Validate, cfg.Password.Validate)
//
// Sections convert themselves into the types the services expect
// (ToDbConfig, ToPasswordPolicy, ToSMTPConfig, ToMiddlewareConfig).
//
// APP_ENV selects the environment; production requires SESSION_TOKEN_HMAC_KEY.
package config
