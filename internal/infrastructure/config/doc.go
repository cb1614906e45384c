// Package config handles loading and validating the enteliWEB service
// configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with ENTELIWEB_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The gateway password and broker credentials should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/enteliweb.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Gateway.Server)
package config
