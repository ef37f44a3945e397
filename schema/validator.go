package payloadschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"horse.fit/markwatch/internal/scan"
)

//go:embed scan_request.schema.json
var scanRequestSchemaJSON string

//go:embed worker_request.schema.json
var workerRequestSchemaJSON string

const (
	scanRequestSchemaName   = "scan_request.schema.json"
	workerRequestSchemaName = "worker_request.schema.json"
)

var (
	compileOnce  sync.Once
	compiled     map[string]*jsonschema.Schema
	compiledErr  error
	schemaSource = map[string]string{
		scanRequestSchemaName:   scanRequestSchemaJSON,
		workerRequestSchemaName: workerRequestSchemaJSON,
	}
)

// Invocation is a payload for the scan entry point: either a start request
// or a shard invocation, told apart by action.
type Invocation struct {
	Action string
	Start  *scan.ScanRequest
	Worker *scan.WorkerRequest
}

// ValidateScanRequest checks a start payload against the embedded schema
// and the request's own rules.
func ValidateScanRequest(payload json.RawMessage) (*scan.ScanRequest, error) {
	var req scan.ScanRequest
	if err := validateInto(scanRequestSchemaName, payload, &req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// ValidateWorkerRequest checks a shard invocation payload.
func ValidateWorkerRequest(payload json.RawMessage) (*scan.WorkerRequest, error) {
	var req scan.WorkerRequest
	if err := validateInto(workerRequestSchemaName, payload, &req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// ValidateInvocation dispatches on the action field. A payload without an
// action is a start request.
func ValidateInvocation(payload json.RawMessage) (*Invocation, error) {
	var probe struct {
		Action *string `json:"action"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(payload), &probe); err != nil {
		return nil, invalidPayload(fmt.Errorf("decode payload JSON: %w", err))
	}

	action := scan.ActionStart
	if probe.Action != nil {
		action = strings.TrimSpace(*probe.Action)
	}

	switch action {
	case scan.ActionStart:
		req, err := ValidateScanRequest(payload)
		if err != nil {
			return nil, err
		}
		return &Invocation{Action: action, Start: req}, nil
	case scan.ActionWorker:
		req, err := ValidateWorkerRequest(payload)
		if err != nil {
			return nil, err
		}
		return &Invocation{Action: action, Worker: req}, nil
	default:
		return nil, &scan.ValidationError{Field: "action", Message: fmt.Sprintf("unknown action %q", action)}
	}
}

func validateInto(schemaName string, payload json.RawMessage, out any) error {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return invalidPayload(fmt.Errorf("decode payload JSON: %w", err))
	}

	schema, err := loadSchema(schemaName)
	if err != nil {
		return fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return invalidPayload(fmt.Errorf("schema validation failed: %w", err))
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("normalize payload JSON: %w", err)
	}
	if err := json.Unmarshal(normalized, out); err != nil {
		return invalidPayload(fmt.Errorf("unmarshal payload: %w", err))
	}
	return nil
}

func loadSchema(name string) (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiled = make(map[string]*jsonschema.Schema, len(schemaSource))
		for resource, source := range schemaSource {
			compiler := jsonschema.NewCompiler()
			compiler.Draft = jsonschema.Draft2020
			compiler.AssertFormat = true

			if err := compiler.AddResource(resource, strings.NewReader(source)); err != nil {
				compiledErr = fmt.Errorf("add schema resource %s: %w", resource, err)
				return
			}
			schema, err := compiler.Compile(resource)
			if err != nil {
				compiledErr = fmt.Errorf("compile schema %s: %w", resource, err)
				return
			}
			compiled[resource] = schema
		}
	})

	if compiledErr != nil {
		return nil, compiledErr
	}
	schema, ok := compiled[name]
	if !ok {
		return nil, fmt.Errorf("schema %s not initialized", name)
	}
	return schema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}

	return value, nil
}

// payloadError marks schema and decode failures as validation errors so
// callers can answer 400 without inspecting messages.
type payloadError struct {
	err error
}

func (e *payloadError) Error() string {
	return e.err.Error()
}

func (e *payloadError) Unwrap() []error {
	return []error{e.err, scan.ErrValidation}
}

func invalidPayload(err error) error {
	return &payloadError{err: err}
}

// IsValidation reports whether err means the payload itself was rejected.
func IsValidation(err error) bool {
	return errors.Is(err, scan.ErrValidation)
}
