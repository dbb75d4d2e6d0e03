// Package config defines the wavecrawl configuration: the flat Config
// populated from CLI flags, its validation, and the optional YAML file
// (.wavecrawl) holding defaults and per-site overrides such as cookies,
// headers, scope patterns and target detection.
package config
