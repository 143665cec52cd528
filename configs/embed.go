// Package configs embeds the annotated configuration template written by
// `kbank config init`.
//
// The template mirrors config.NewConfig; loading it yields the defaults.
package configs

import _ "embed"

// ConfigTemplate is the annotated example configuration.
//
//go:embed config.example.yaml
var ConfigTemplate []byte
