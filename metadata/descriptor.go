package metadata

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/jobhost/bindings/attrs"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v2"
)

type (
	// Manifest is the root of a function descriptor file.
	Manifest struct {
		Functions []Descriptor `yaml:"functions" hcl:"function,block" validate:"dive"`
	}

	// Descriptor declares a function and its bindings.
	Descriptor struct {
		Name        string              `yaml:"name" hcl:"name,label" validate:"required"`
		Description string              `yaml:"description,omitempty" hcl:"description,optional"`
		Bindings    []BindingDescriptor `yaml:"bindings" hcl:"binding,block" validate:"dive"`
	}

	// BindingDescriptor declares one parameter of a function.
	BindingDescriptor struct {
		Name         string `yaml:"name" hcl:"name,label" validate:"required"`
		Type         string `yaml:"type" hcl:"type" validate:"required,oneof=blob blobTrigger queue queueTrigger table timerTrigger binder param"`
		Direction    string `yaml:"direction,omitempty" hcl:"direction,optional" validate:"omitempty,oneof=in out inout"`
		DataType     string `yaml:"dataType,omitempty" hcl:"data_type,optional"`
		Connection   string `yaml:"connection,omitempty" hcl:"connection,optional"`
		Path         string `yaml:"path,omitempty" hcl:"path,optional"`
		QueueName    string `yaml:"queueName,omitempty" hcl:"queue_name,optional"`
		TableName    string `yaml:"tableName,omitempty" hcl:"table_name,optional"`
		PartitionKey string `yaml:"partitionKey,omitempty" hcl:"partition_key,optional"`
		RowKey       string `yaml:"rowKey,omitempty" hcl:"row_key,optional"`
		Schedule     string `yaml:"schedule,omitempty" hcl:"schedule,optional"`
		RunOnStartup bool   `yaml:"runOnStartup,omitempty" hcl:"run_on_startup,optional"`
	}
)

var (
	ErrUnknownDataType = errors.New("unknown data type")
	ErrUnknownFormat   = errors.New("unknown descriptor format")

	validate = validator.New()

	defaultDataTypes = map[string]string{
		"blob":         "string",
		"blobTrigger":  "string",
		"queue":        "string",
		"queueTrigger": "string",
		"param":        "string",
		"table":        "table",
		"timerTrigger": "timerInfo",
		"binder":       "binder",
	}
)

// LoadYAML reads functions from a YAML manifest.
func LoadYAML(src []byte, types *Types) ([]Function, error) {
	var manifest Manifest
	if err := yaml.UnmarshalStrict(src, &manifest); err != nil {
		return nil, fmt.Errorf("metadata: decode yaml: %w", err)
	}
	return manifest.Build(types)
}

// LoadHCL reads functions from an HCL manifest.  vars are visible
// to expressions as env.NAME.
func LoadHCL(
	src      []byte,
	filename string,
	vars     map[string]string,
	types    *Types,
) ([]Function, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("metadata: parse %s: %w", filename, diags)
	}
	env := make(map[string]cty.Value, len(vars))
	for name, value := range vars {
		env[name] = cty.StringVal(value)
	}
	ctx := &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": cty.ObjectVal(env)},
	}
	var manifest Manifest
	if diags = gohcl.DecodeBody(file.Body, ctx, &manifest); diags.HasErrors() {
		return nil, fmt.Errorf("metadata: decode %s: %w", filename, diags)
	}
	return manifest.Build(types)
}

// LoadFile reads a manifest choosing the format by extension.
// HCL manifests see the process environment as env.
func LoadFile(path string, types *Types) ([]Function, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(src, types)
	case ".hcl":
		return LoadHCL(src, path, environ(), types)
	}
	return nil, fmt.Errorf("metadata: %w: %s", ErrUnknownFormat, path)
}

// Build validates the manifest and builds its functions.
func (m Manifest) Build(types *Types) ([]Function, error) {
	if err := validate.Struct(m); err != nil {
		return nil, fmt.Errorf("metadata: invalid manifest: %w", err)
	}
	if types == nil {
		types = NewTypes()
	}
	functions := make([]Function, 0, len(m.Functions))
	for _, d := range m.Functions {
		f, err := d.Function(types)
		if err != nil {
			return nil, err
		}
		functions = append(functions, f)
	}
	return functions, nil
}

// Function builds the Function declared by d.  The result has no
// Handler until one is attached with WithHandler.
func (d Descriptor) Function(types *Types) (Function, error) {
	f := Function{Name: d.Name, Description: d.Description}
	for _, b := range d.Bindings {
		p, err := b.Parameter(types)
		if err != nil {
			return f, fmt.Errorf("metadata: function %q: %w", d.Name, err)
		}
		f.Parameters = append(f.Parameters, p)
	}
	return f, nil
}

// Parameter builds the Parameter declared by b.
func (b BindingDescriptor) Parameter(types *Types) (Parameter, error) {
	direction := b.Direction
	if direction == "" {
		direction = "in"
		if b.Type == "queue" {
			direction = "out"
		}
	}
	dataType := b.DataType
	if dataType == "" {
		dataType = defaultDataTypes[b.Type]
	}
	typ, ok := types.Lookup(dataType)
	if !ok {
		return Parameter{}, fmt.Errorf("parameter %q: %w %q", b.Name, ErrUnknownDataType, dataType)
	}
	if direction != "in" {
		typ = outType(typ)
	}
	p := Parameter{Name: b.Name, Type: typ}
	switch b.Type {
	case "blob":
		access, _ := attrs.ParseAccess(direction)
		p.Attributes = []any{attrs.Blob{Path: b.Path, Access: access, Connection: b.Connection}}
	case "blobTrigger":
		p.Attributes = []any{attrs.BlobTrigger{Path: b.Path, Connection: b.Connection}}
	case "queue":
		p.Attributes = []any{attrs.Queue{QueueName: b.QueueName, Connection: b.Connection}}
	case "queueTrigger":
		p.Attributes = []any{attrs.QueueTrigger{QueueName: b.QueueName, Connection: b.Connection}}
	case "table":
		p.Attributes = []any{attrs.Table{
			TableName:    b.TableName,
			PartitionKey: b.PartitionKey,
			RowKey:       b.RowKey,
			Connection:   b.Connection,
		}}
	case "timerTrigger":
		p.Attributes = []any{attrs.TimerTrigger{Schedule: b.Schedule, RunOnStartup: b.RunOnStartup}}
	case "binder":
		p.Attributes = []any{attrs.Binder{}}
	}
	return p, nil
}

// outType returns the type a handler writes through.
func outType(typ reflect.Type) reflect.Type {
	switch {
	case typ == readerType:
		return writerType
	case typ.Kind() == reflect.Interface && typ != anyType:
		return typ
	case typ.Kind() == reflect.Ptr:
		return typ
	}
	return reflect.PointerTo(typ)
}

func environ() map[string]string {
	vars := make(map[string]string)
	for _, kv := range os.Environ() {
		if name, value, ok := strings.Cut(kv, "="); ok {
			vars[name] = value
		}
	}
	return vars
}

var (
	readerType = reflect.TypeOf((*io.Reader)(nil)).Elem()
	writerType = reflect.TypeOf((*io.Writer)(nil)).Elem()
	anyType    = reflect.TypeOf((*any)(nil)).Elem()
)
