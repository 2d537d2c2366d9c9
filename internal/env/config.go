package env

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Prefix is prepended to config file keys to get the environment variable
// that overrides them, e.g. PORT in the file is PARCEL_PORT in the env.
const Prefix = "PARCEL_"

type Config struct {
	// IP the client connects to
	IP string `env:"PARCEL_IP,default=127.0.0.1"`

	// Host the server listens on
	Host string `env:"PARCEL_HOST,default=0.0.0.0"`

	Port int `env:"PARCEL_PORT,default=4444"`

	// Key is a free-form value, the client logs it and sends it as its
	// first message
	Key string `env:"PARCEL_KEY"`

	// AdminHost is where the admin API listens. /journal exposes what clients
	// sent, keep it off public interfaces.
	AdminHost string `env:"PARCEL_ADMIN_HOST,default=127.0.0.1"`

	// AdminPort serves /ping, /metrics and /journal, 0 disables it
	AdminPort int `env:"PARCEL_ADMIN_PORT,default=4445"`

	// MaxJournal is how many entries the journal keeps per connection
	MaxJournal int `env:"PARCEL_MAX_JOURNAL,default=1024"`

	MaxPayload int `env:"PARCEL_MAX_PAYLOAD,default=16777216"`

	FrameRate  float64 `env:"PARCEL_FRAME_RATE,default=0"`
	FrameBurst int     `env:"PARCEL_FRAME_BURST,default=1"`

	LogLevel    string `env:"PARCEL_LOG_LEVEL,default=info"`
	LogEncoding string `env:"PARCEL_LOG_ENCODING,default=json"`

	DebugHTTP bool `env:"PARCEL_DEBUG_HTTP"`
}

// LoadConfig reads KEY=VALUE pairs from path, if it exists, and lets the
// process environment override them.
func LoadConfig(ctx context.Context, path string) (*Config, error) {
	config := Config{}

	fileValues, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}

	lookuper := envconfig.MultiLookuper(
		envconfig.OsLookuper(),
		envconfig.MapLookuper(fileValues),
	)

	if err := envconfig.ProcessWith(ctx, &config, lookuper); err != nil {
		return nil, err
	}

	return &config, nil
}

func readConfigFile(path string) (map[string]string, error) {
	values := make(map[string]string)

	if path == "" {
		return values, nil
	}

	raw, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return values, nil
		}

		return nil, err
	}

	for key, value := range raw {
		values[Prefix+key] = value
	}

	return values, nil
}
