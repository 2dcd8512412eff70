// Package config loads the JSON run configuration for the lap timing tools.
package config
