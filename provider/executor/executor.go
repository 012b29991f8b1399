// Package executor is the Provider Executor (C10): renders a provider's
// declared endpoint template against call-time arguments and performs the
// upstream HTTP call. Grounded on
// original_source/provider/provider/src/util.rs's call_provider (path/query/
// header/body substitution rules, X-Insecure-HPN-Client-Node-Id header) and
// on go/extensions/bazaar/facilitator.go's gojsonschema usage, repurposed
// here to validate endpoint descriptors instead of bazaar listings.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xeipuuv/gojsonschema"
)

// RequestStructure is the shape of the outbound call, mirroring spec §4.10.
type RequestStructure string

const (
	GetWithPath  RequestStructure = "GetWithPath"
	GetWithQuery RequestStructure = "GetWithQuery"
	PostWithJSON RequestStructure = "PostWithJson"
)

// EndpointDescriptor is the per-provider declared call template.
type EndpointDescriptor struct {
	Name                   string
	Method                 string // GET or POST
	RequestStructure       RequestStructure
	BaseURLTemplate        string
	PathParamKeys          []string
	QueryParamKeys         []string
	HeaderKeys             []string
	BodyParamKeys          []string
	APIKey                 string
	APIKeyQueryParamName   string
	APIKeyHeaderName       string
}

// descriptorSchema is the gojsonschema validation schema for a raw
// endpoint descriptor, applied before it is ever rendered against a call.
var descriptorSchema = []byte(`{
	"type": "object",
	"required": ["name", "method", "request_structure", "base_url_template"],
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"method": {"type": "string", "enum": ["GET", "POST"]},
		"request_structure": {"type": "string", "enum": ["GetWithPath", "GetWithQuery", "PostWithJson"]},
		"base_url_template": {"type": "string", "minLength": 1}
	}
}`)

// ValidateDescriptor validates a raw endpoint descriptor document (as
// received from provider configuration) against descriptorSchema.
func ValidateDescriptor(raw []byte) error {
	schemaLoader := gojsonschema.NewBytesLoader(descriptorSchema)
	docLoader := gojsonschema.NewBytesLoader(raw)
	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if result.Valid() {
		return nil
	}
	var msgs []string
	for _, desc := range result.Errors() {
		msgs = append(msgs, fmt.Sprintf("%s: %s", desc.Context().String(), desc.Description()))
	}
	return fmt.Errorf("endpoint descriptor invalid: %s", strings.Join(msgs, "; "))
}

const nodeIDHeader = "X-Insecure-HPN-Client-Node-Id"

// Response is the structured envelope spec §4.10 requires. Body is either
// the parsed JSON value or, if the upstream body is not valid JSON, the raw
// string.
type Response struct {
	Status int         `json:"status"`
	Body   interface{} `json:"body"`
}

// Success reports whether the envelope represents a successful call
// (status == 200, per spec §4.10's validation helper).
func (r Response) Success() bool { return r.Status == http.StatusOK }

// Executor performs the rendered HTTP call.
type Executor struct {
	client *http.Client
}

func NewExecutor(timeout time.Duration) *Executor {
	return &Executor{client: &http.Client{Timeout: timeout}}
}

// Call renders desc against args and sourceNodeID, then performs the HTTP
// request. Missing argument keys produce a warning (surfaced in the
// returned warnings slice), not a failure — matching spec §4.10.
func (e *Executor) Call(ctx context.Context, desc EndpointDescriptor, args map[string]string, sourceNodeID string) (Response, []string, error) {
	var warnings []string
	warn := func(format string, a ...interface{}) { warnings = append(warnings, fmt.Sprintf(format, a...)) }

	headers := map[string]string{}
	apiKeyInHeader := false
	if desc.APIKeyHeaderName != "" && desc.APIKey != "" {
		headers[desc.APIKeyHeaderName] = desc.APIKey
		apiKeyInHeader = true
	}
	for _, key := range desc.HeaderKeys {
		if apiKeyInHeader && key == desc.APIKeyHeaderName {
			continue
		}
		if v, ok := args[key]; ok {
			headers[key] = v
		} else {
			warn("missing dynamic argument for header key %q", key)
		}
	}
	headers[nodeIDHeader] = sourceNodeID

	processedURL := desc.BaseURLTemplate
	var queryParams [][2]string
	var bodyData map[string]string

	switch desc.RequestStructure {
	case GetWithPath:
		processedURL = substitutePath(processedURL, desc.PathParamKeys, args, warn)
	case GetWithQuery:
		queryParams = collectPresent(desc.QueryParamKeys, args, warn)
	case PostWithJSON:
		processedURL = substitutePath(processedURL, desc.PathParamKeys, args, warn)
		queryParams = collectPresent(desc.QueryParamKeys, args, warn)
		if desc.BodyParamKeys != nil {
			bodyData = map[string]string{}
			for _, key := range desc.BodyParamKeys {
				if v, ok := args[key]; ok {
					bodyData[key] = v
				} else {
					warn("missing dynamic argument for body key %q", key)
				}
			}
		}
	}

	parsed, err := url.Parse(processedURL)
	if err != nil {
		return Response{}, warnings, fmt.Errorf("invalid base url template %q -> %q: %w", desc.BaseURLTemplate, processedURL, err)
	}
	q := parsed.Query()
	for _, kv := range queryParams {
		q.Add(kv[0], kv[1])
	}
	if !apiKeyInHeader && desc.APIKeyQueryParamName != "" && desc.APIKey != "" {
		q.Add(desc.APIKeyQueryParamName, desc.APIKey)
	}
	parsed.RawQuery = q.Encode()

	var body io.Reader
	if desc.RequestStructure == PostWithJSON && len(bodyData) > 0 {
		raw, err := json.Marshal(bodyData)
		if err != nil {
			return Response{}, warnings, fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(raw)
		headers["Content-Type"] = "application/json"
	}

	method := desc.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, parsed.String(), body)
	if err != nil {
		return Response{}, warnings, fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return Response{}, warnings, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, warnings, fmt.Errorf("read upstream body: %w", err)
	}
	if !utf8.Valid(raw) {
		return Response{}, warnings, fmt.Errorf("upstream response is not valid utf-8")
	}

	var parsedBody interface{}
	if err := json.Unmarshal(raw, &parsedBody); err != nil {
		parsedBody = string(raw)
	}

	return Response{Status: resp.StatusCode, Body: parsedBody}, warnings, nil
}

func substitutePath(template string, keys []string, args map[string]string, warn func(string, ...interface{})) string {
	out := template
	for _, key := range keys {
		if v, ok := args[key]; ok {
			out = strings.ReplaceAll(out, "{"+key+"}", v)
		} else {
			warn("missing path parameter %q for url template", key)
		}
	}
	return out
}

func collectPresent(keys []string, args map[string]string, warn func(string, ...interface{})) [][2]string {
	var out [][2]string
	for _, key := range keys {
		if v, ok := args[key]; ok {
			out = append(out, [2]string{key, v})
		} else {
			warn("missing dynamic argument for query key %q", key)
		}
	}
	return out
}
