/*
Package config provides type-safe configuration extraction from map[string]any.

# Overview

Config wraps a parsed YAML/JSON document and offers typed accessors that
return a default when a key is missing or has the wrong type. Keys may be
dotted paths into nested sections.

	cfg, err := config.FromFile("config/taskrouter.yaml")
	if err != nil {
	    log.Fatal(err)
	}

	port := cfg.Int("server.port", 5000)
	model := cfg.Sub("agent").String("model", "gpt-3.5-turbo")

# Decoding

Decode fills a struct through mapstructure. Pre-populate the struct with
defaults; keys present in the config overwrite them.

	type Server struct {
	    Host string `mapstructure:"host"`
	    Port int    `mapstructure:"port"`
	}
	srv := Server{Host: "0.0.0.0", Port: 5000}
	err := cfg.Sub("server").Decode(&srv)

# Environment Overrides

WithEnv overlays variables of the form PREFIX_SECTION_KEY:

	cfg = cfg.WithEnv("TASKROUTER", os.Environ())
	// TASKROUTER_SERVER_PORT=8080 now wins over server.port in the file

Values from the environment are strings; accessors and Decode convert them.

# References

ExpandEnv replaces ${NAME} inside string values, so secrets can stay out of
the file:

	agent:
	  api_key: ${OPENAI_API_KEY}

	cfg, err = cfg.ExpandEnv(os.Environ(), config.MissingError)

# Thread Safety

Config is safe for concurrent read access. WithEnv, ExpandEnv and Set return copies and
never modify the receiver.
*/
package config
