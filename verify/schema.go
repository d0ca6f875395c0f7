package verify

import (
	"bytes"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/fenwick-ai/agentrt/trace"
)

// SchemaRegistry resolves a plugin tool's declared result schema, when it
// has one. Tools without an entry are skipped by PluginSchema.
type SchemaRegistry interface {
	ResultSchema(toolName string) ([]byte, bool)
}

// PluginSchema runs level 2: every invocation in tr whose tool declared an
// output schema in schemas is validated against it. Invocations for tools
// with no registered schema are not checked (opt-in).
func PluginSchema(tr *trace.Trace, schemas SchemaRegistry) Result {
	var errs []Error

	for _, inv := range tr.Invocations {
		raw, ok := schemas.ResultSchema(inv.Tool)
		if !ok || len(raw) == 0 {
			continue
		}
		if inv.Status != trace.StatusSuccess {
			continue
		}
		if err := validateAgainstSchema(inv.Tool, raw, inv.Output); err != nil {
			errs = append(errs, Error{
				Category: CategorySchemaMismatch,
				Message:  fmt.Sprintf("tool %s output: %v", inv.Tool, err),
			})
		}
	}

	return Result{Valid: len(errs) == 0, Level: 2, Errors: errs}
}

func validateAgainstSchema(toolName string, schemaJSON, output []byte) error {
	id := "mem://schemas/" + toolName
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(id, bytes.NewReader(schemaJSON)); err != nil {
		return err
	}
	schema, err := compiler.Compile(id)
	if err != nil {
		return err
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(output))
	if err != nil {
		return err
	}
	return schema.Validate(instance)
}
