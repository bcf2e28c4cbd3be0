// Package config handles loading and validating MyQ bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (MyQ credentials, MQTT password, InfluxDB token) should
//     be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - The stored MyQ password is base64-obscured, not encrypted; the config
//     file must still be treated as sensitive
//
// Performance Characteristics:
//   - Configuration is loaded once at startup
//   - No runtime overhead after initial load
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MyQ.Brand)
package config
