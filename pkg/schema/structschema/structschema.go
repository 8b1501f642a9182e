// Package structschema registers the optional modules that let Go struct
// types be used as schemas. Import it for its side effects:
//
//	import _ "github.com/petrijr/herald/pkg/schema/structschema"
package structschema

import (
	"reflect"

	"github.com/go-viper/mapstructure/v2"
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/petrijr/herald/pkg/schema"
)

func init() {
	Register()
}

// Register (re)installs the modules. It is called from init; tests that
// unregister the modules can call it to restore them.
func Register() {
	schema.RegisterModule(schema.ModuleJSONSchemaReflect, map[string]any{
		"ForType": schema.ForTypeFunc(ForType),
	})
	schema.RegisterModule(schema.ModuleStructDecode, map[string]any{
		"Decode": schema.DecodeFunc(Decode),
	})
}

// ForType infers a JSON schema from a struct type.
func ForType(t reflect.Type) (*jsonschema.Schema, error) {
	return jsonschema.ForType(t, &jsonschema.ForOptions{IgnoreInvalidTypes: true})
}

// Decode decodes a plain JSON value into out using json field names.
func Decode(input any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Squash:  true,
		Result:  out,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.TextUnmarshallerHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}
