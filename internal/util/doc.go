// Package util provides common utility functions used across the gateway.
//
// This package contains helper functions for string manipulation and other
// shared operations that don't fit into domain-specific packages.
//
// Key utilities:
//   - SafeTruncate: Safely truncates strings for logging sensitive data
package util
