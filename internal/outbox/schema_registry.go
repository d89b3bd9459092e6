package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const registryContentType = "application/vnd.schemaregistry.v1+json"

// registryError carries a non-2xx answer from the Schema Registry.
type registryError struct {
	status int
	body   string
}

func (e *registryError) Error() string {
	return fmt.Sprintf("schema registry returned %d: %s", e.status, e.body)
}

func isNotFound(err error) bool {
	var regErr *registryError
	return errors.As(err, &regErr) && regErr.status == http.StatusNotFound
}

type schemaRequest struct {
	SchemaType string `json:"schemaType"`
	Schema     string `json:"schema"`
}

type schemaResponse struct {
	ID int `json:"id"`
}

// SchemaRegistryClient resolves JSON schema ids against a Confluent Schema Registry.
type SchemaRegistryClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewSchemaRegistryClient constructs a client for the registry at baseURL.
func NewSchemaRegistryClient(baseURL string) *SchemaRegistryClient {
	return &SchemaRegistryClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// EnsureSchema returns the id of schema under subject. The exact schema is
// looked up first; it is registered as a new version only when the registry
// does not know it. A subject whose latest version differs from schema is
// never mistaken for a match.
func (c *SchemaRegistryClient) EnsureSchema(ctx context.Context, subject, schema string) (int, error) {
	subjectPath := "/subjects/" + url.PathEscape(subject)

	id, err := c.post(ctx, subjectPath, schema)
	switch {
	case err == nil:
		return id, nil
	case !isNotFound(err):
		return 0, fmt.Errorf("look up schema for %s: %w", subject, err)
	}

	id, err = c.post(ctx, subjectPath+"/versions", schema)
	if err != nil {
		return 0, fmt.Errorf("register schema for %s: %w", subject, err)
	}
	return id, nil
}

// post sends schema to path and decodes the schema id from the answer.
func (c *SchemaRegistryClient) post(ctx context.Context, path, schema string) (int, error) {
	body, err := json.Marshal(schemaRequest{SchemaType: "JSON", Schema: schema})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", registryContentType)
	req.Header.Set("Accept", registryContentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return 0, &registryError{status: resp.StatusCode, body: strings.TrimSpace(string(data))}
	}

	var out schemaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode schema registry response: %w", err)
	}
	return out.ID, nil
}
