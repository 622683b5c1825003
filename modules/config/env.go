package config

import (
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// DecodeEnv fills out from the process environment. Field names are matched
// against the `mapstructure` tag of each field, values are weakly typed so
// "8080" decodes into an int field. Unset variables leave the field untouched.
func DecodeEnv(out any) error {
	return DecodeEnviron(os.Environ(), out)
}

func DecodeEnviron(environ []string, out any) error {
	env := make(map[string]any, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || v == "" {
			continue
		}
		env[k] = v
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	return decoder.Decode(env)
}
