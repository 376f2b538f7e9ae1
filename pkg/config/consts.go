package config

// EnvPrefix namespaces every environment variable read by Load.
const EnvPrefix = "VERILINE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

// Environment variable names shared with tests and boot error messages.
const (
	EnvAppEnv = "VERILINE_APP_ENV"
	EnvPort   = "VERILINE_APP_PORT"
	EnvDBDSN  = "VERILINE_DB_DSN"
	EnvDBHost = "VERILINE_DB_HOST"
	EnvDBUser = "VERILINE_DB_USER"
	EnvDBName = "VERILINE_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
