package config

import "embed"

const engineSchemaFile = "schema/engine.schema.json"

//go:embed schema/*.json
var configSchemaFS embed.FS
