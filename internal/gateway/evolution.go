package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// evolutionClient talks to the Evolution API. Authentication is a single
// service-level key in the apikey header; every operation has a native
// endpoint.
type evolutionClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func newEvolutionClient(cfg Config) (*evolutionClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	apiKey := strings.TrimSpace(cfg.APIKey)
	if baseURL == "" {
		return nil, fmt.Errorf("gateway: evolution base url is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gateway: evolution api key is required")
	}
	return &evolutionClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpClientOrDefault(cfg.HTTPClient),
	}, nil
}

// Provider implements Client.
func (c *evolutionClient) Provider() string { return ProviderEvolution }

func (c *evolutionClient) headers() map[string]string {
	return map[string]string{"apikey": c.apiKey}
}

func (c *evolutionClient) do(ctx context.Context, method, endpoint string, body any) (Result, error) {
	return doRequest(ctx, c.httpClient, method, c.baseURL+endpoint, c.headers(), body)
}

// ListInstances implements Client.
func (c *evolutionClient) ListInstances(ctx context.Context) (Result, error) {
	return c.do(ctx, http.MethodGet, "/instance/fetchInstances", nil)
}

// CreateInstance implements Client.
func (c *evolutionClient) CreateInstance(ctx context.Context, name string, opts CreateOptions) (Result, error) {
	integration := opts.Integration
	if integration == "" {
		integration = "WHATSAPP-BAILEYS"
	}
	qrcode := true
	if opts.QRCode != nil {
		qrcode = *opts.QRCode
	}
	payload := map[string]any{
		"instanceName": name,
		"integration":  integration,
		"qrcode":       qrcode,
	}
	if opts.Number != "" {
		payload["number"] = opts.Number
	}
	if len(opts.Settings) > 0 {
		payload["settings"] = opts.Settings
	}
	return c.do(ctx, http.MethodPost, "/instance/create", payload)
}

// ConnectInstance implements Client. Evolution only issues QR codes; the
// phone parameter is ignored.
func (c *evolutionClient) ConnectInstance(ctx context.Context, name, _ string) (Result, error) {
	return c.do(ctx, http.MethodGet, "/instance/connect/"+name, nil)
}

// GetInstanceStatus implements Client.
func (c *evolutionClient) GetInstanceStatus(ctx context.Context, name string) (Result, error) {
	return c.do(ctx, http.MethodGet, "/instance/connectionState/"+name, nil)
}

// RestartInstance implements Client via Evolution's native restart endpoint.
func (c *evolutionClient) RestartInstance(ctx context.Context, name string) (Result, error) {
	return c.do(ctx, http.MethodPut, "/instance/restart/"+name, nil)
}

// DisconnectInstance implements Client with logout semantics. Evolution can
// return 400 even when the logout succeeded, so 400 counts as success here.
// That quirk is specific to this endpoint and must not be generalized.
func (c *evolutionClient) DisconnectInstance(ctx context.Context, name string) (Result, error) {
	result, err := c.do(ctx, http.MethodDelete, "/instance/logout/"+name, nil)
	if err != nil {
		return result, err
	}
	if result.StatusCode == http.StatusBadRequest {
		result.OK = true
	}
	return result, nil
}

// DeleteInstance implements Client via Evolution's native delete endpoint.
func (c *evolutionClient) DeleteInstance(ctx context.Context, name string) (Result, error) {
	return c.do(ctx, http.MethodDelete, "/instance/delete/"+name, nil)
}

// NormalizeInstance implements Client for Evolution payload shapes. Fields
// live either at the top level or nested under an "instance" object; the
// connection state sits under connectionStatus.state, state, or, for the
// connectionState endpoint, instance.state.
func (c *evolutionClient) NormalizeInstance(raw map[string]any) NormalizedInstance {
	instance := rawMap(raw, "instance")

	name := rawString(instance, "instanceName")
	if name == "" {
		name = rawString(raw, "instanceName", "name")
	}

	state := rawString(rawMap(raw, "connectionStatus"), "state")
	if state == "" {
		state = rawString(raw, "state", "connectionStatus")
	}
	if state == "" {
		state = rawString(instance, "state")
	}
	status := MapStatus(state)

	return NormalizedInstance{
		Name:              name,
		Status:            status,
		Number:            rawString(instance, "number"),
		ProfileName:       rawString(instance, "profileName"),
		ProfilePictureURL: rawString(instance, "profilePicUrl"),
		QRCode:            raw["qrcode"],
		Connected:         status == StatusConnected,
	}
}
