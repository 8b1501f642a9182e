// Package schema validates data against schemas written in one of three
// forms and converts each form to a canonical *jsonschema.Schema.
//
// The accepted forms are, in the order they are tried:
//
//   - Go struct types, as a reflect.Type or a Class from ClassOf. These need
//     the optional modules installed by importing
//     github.com/petrijr/herald/pkg/schema/structschema.
//   - JSON Schema documents: *jsonschema.Schema, raw JSON, or a map that
//     carries a schema keyword.
//   - Fluent builders created with Object, String and friends.
//
// Validation never mutates its input. It returns a copy with declared
// defaults filled in. The canonical schema does not require properties that
// have a default.
package schema
