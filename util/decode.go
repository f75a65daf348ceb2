package util

import "github.com/mitchellh/mapstructure"

// DecodeOther decodes a loosely-typed map (as produced by viper's
// Unmarshal or a YAML config section) into a strongly-typed struct,
// mirroring evcc's util.DecodeOther helper used to populate adapter
// configuration from the generic `other map[string]interface{}` blob.
// Durations and comma-separated strings decode the same way viper's
// own config-file parsing does.
func DecodeOther(other interface{}, out interface{}) error {
	decoderConfig := &mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      false,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	}

	decoder, err := mapstructure.NewDecoder(decoderConfig)
	if err != nil {
		return err
	}

	return decoder.Decode(other)
}
