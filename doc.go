// Package formskema is a framework-agnostic form state and validation core.
//
// It provides:
//
// - A Form store holding values, errors, touched/dirty flags and submit state
// - Copy-on-write path addressing into nested values (see fieldpath)
// - One validator interface over Go funcs, schema, go-playground tags, JSON
// Schema, Lua scripts and the standard-schema convention (see validate)
// - Change/blur/submit validation timing with debounced async validators
// - Fine-grained subscriptions via Select and WatchField
//
// Design policy:
// - Keep only public APIs in the root package; put detailed implementations under internal/.
// - Place the schema DSL under schema/, adapters under validate/, and the CLI under cmd/formskema.
// - Prefer black-box testing against public APIs.
//
// Typical usage:
//
//	f := formskema.New(formskema.Options{
//		DefaultValues: map[string]any{"age": 17},
//		Schema:        schema.Object().Field("age", schema.Number().Min(18)).Required().MustBuild(),
//	})
//	defer f.Close()
//
//	age := f.Register("age")
//	age.OnChange(formskema.InputEvent{Type: "number", Value: "21"})
//
//	submit := f.HandleSubmit(onValid, onError)
//	err := submit(ctx)
package formskema
