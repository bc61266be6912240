package gqlrequest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

// Envelope is the transport-level view of a request: the raw document and
// operation name as they arrived, before any parsing.
type Envelope struct {
	// OperationName and Query arrive either as JSON body fields or GET
	// parameters. VariablesRaw keeps the variables blob unparsed.
	OperationName string
	Query         string
	VariablesRaw  json.RawMessage

	Method      string
	ContentType string

	// DocumentSizeBytes measures the raw query text.
	DocumentSizeBytes int
}

// DecodeEnvelope pulls the GraphQL payload out of an HTTP request without
// consuming it. A POST body is buffered back onto the request afterward so
// the execution handler still sees the original stream.
func DecodeEnvelope(r *http.Request) (Envelope, error) {
	if r == nil {
		return Envelope{}, fmt.Errorf("nil request")
	}

	env := Envelope{ContentType: r.Header.Get("Content-Type"), Method: r.Method}

	var err error
	switch {
	case r.Method == http.MethodGet:
		params := r.URL.Query()
		env.Query = params.Get("query")
		env.OperationName = params.Get("operationName")
	case r.Method == http.MethodPost && r.Body != nil:
		err = decodePostBody(r, &env)
	}

	env.DocumentSizeBytes = len(env.Query)
	return env, err
}

func decodePostBody(r *http.Request, env *Envelope) error {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))

	if mediaType(env.ContentType) == "application/graphql" {
		env.Query = string(raw)
		return nil
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}

	var parsed struct {
		OperationName string          `json:"operationName"`
		Query         string          `json:"query"`
		Variables     json.RawMessage `json:"variables"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return err
	}

	env.Query = parsed.Query
	env.OperationName = parsed.OperationName
	if vars := bytes.TrimSpace(parsed.Variables); len(vars) > 0 && !bytes.Equal(vars, []byte("null")) {
		env.VariablesRaw = append(json.RawMessage(nil), parsed.Variables...)
	}
	return nil
}

// mediaType strips parameters such as charset from a Content-Type value,
// falling back to the trimmed raw header when it does not parse.
func mediaType(contentType string) string {
	parsed, _, err := mime.ParseMediaType(contentType)
	if err != nil || parsed == "" {
		return strings.TrimSpace(contentType)
	}
	return parsed
}
