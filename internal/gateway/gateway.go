package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Supported vendor providers.
const (
	// ProviderEvolution is the Evolution API backend.
	ProviderEvolution = "evolution"
	// ProviderUazapi is the Uazapi backend.
	ProviderUazapi = "uazapi"
)

// defaultRequestTimeout bounds a single vendor call when no HTTP client is supplied.
const defaultRequestTimeout = 30 * time.Second

// Config carries the credentials and transport settings for one vendor client.
type Config struct {
	// BaseURL is the vendor API root, without a trailing slash.
	BaseURL string
	// APIKey is the Evolution service-level key sent in the apikey header.
	APIKey string
	// AdminToken is the Uazapi elevated credential sent in the admintoken header.
	AdminToken string
	// Tokens resolves per-instance Uazapi tokens; instance-scoped calls fall
	// back to the admin credential when no token is known.
	Tokens TokenResolver
	// HTTPClient overrides the default transport, mainly for tests.
	HTTPClient *http.Client
}

// TokenResolver looks up the stored per-instance token for a named instance.
// An empty string with a nil error means no token is known.
type TokenResolver interface {
	InstanceToken(ctx context.Context, name string) (string, error)
}

// TokenResolverFunc adapts a function to the TokenResolver interface.
type TokenResolverFunc func(ctx context.Context, name string) (string, error)

// InstanceToken implements TokenResolver.
func (f TokenResolverFunc) InstanceToken(ctx context.Context, name string) (string, error) {
	return f(ctx, name)
}

// Result is the uniform outcome of one vendor call. Transport failures are
// returned as errors; everything else, including non-2xx statuses, is data.
type Result struct {
	// StatusCode is the HTTP status returned by the vendor.
	StatusCode int
	// Body is the parsed JSON payload when the response is JSON, otherwise
	// the raw body text. Callers must not assume JSON.
	Body any
	// OK reports whether the vendor treated the operation as successful.
	OK bool
}

// BodyMap returns the body as a JSON object when it is one.
func (r Result) BodyMap() (map[string]any, bool) {
	m, ok := r.Body.(map[string]any)
	return m, ok
}

// CreateOptions carries the optional parameters of instance creation. Vendor
// clients pick the fields their API understands and ignore the rest.
type CreateOptions struct {
	// Integration selects the Evolution integration mode, default WHATSAPP-BAILEYS.
	Integration string
	// QRCode controls Evolution QR generation on create, default true.
	QRCode *bool
	// Number optionally pre-binds a phone number (Evolution).
	Number string
	// Settings carries Evolution per-instance settings.
	Settings map[string]any
	// SystemName, AdminField01 and AdminField02 are Uazapi metadata fields.
	SystemName   string
	AdminField01 string
	AdminField02 string
}

// NormalizedInstance is the vendor-independent shape of one instance record.
type NormalizedInstance struct {
	Name              string `json:"name"`
	Status            Status `json:"status"`
	Number            string `json:"number,omitempty"`
	ProfileName       string `json:"profileName,omitempty"`
	ProfilePictureURL string `json:"profilePictureUrl,omitempty"`
	QRCode            any    `json:"qrcode,omitempty"`
	PairingCode       string `json:"pairingCode,omitempty"`
	Connected         bool   `json:"connected"`
	// Token is the per-instance credential issued by Uazapi on create.
	Token string `json:"token,omitempty"`
}

// Client is the unified vendor operation contract. All network operations
// return the vendor outcome as data; they never retry.
type Client interface {
	// Provider returns the vendor tag this client talks to.
	Provider() string
	// ListInstances fetches every instance known to the gateway.
	ListInstances(ctx context.Context) (Result, error)
	// CreateInstance provisions a new named instance.
	CreateInstance(ctx context.Context, name string, opts CreateOptions) (Result, error)
	// ConnectInstance triggers QR/pairing-code generation. A non-empty phone
	// requests a numeric pairing code where the vendor supports it.
	ConnectInstance(ctx context.Context, name, phone string) (Result, error)
	// GetInstanceStatus fetches the live connection state.
	GetInstanceStatus(ctx context.Context, name string) (Result, error)
	// RestartInstance restarts the instance session.
	RestartInstance(ctx context.Context, name string) (Result, error)
	// DisconnectInstance logs the instance out of WhatsApp; the instance
	// remains provisioned at the gateway.
	DisconnectInstance(ctx context.Context, name string) (Result, error)
	// DeleteInstance removes the instance from the gateway where supported.
	DeleteInstance(ctx context.Context, name string) (Result, error)
	// NormalizeInstance maps a raw vendor payload onto the normalized shape.
	NormalizeInstance(raw map[string]any) NormalizedInstance
}

// New constructs the vendor client for the given provider tag. Unknown
// providers and missing credentials fail here, before any network call.
func New(provider string, cfg Config) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case ProviderEvolution:
		return newEvolutionClient(cfg)
	case ProviderUazapi:
		return newUazapiClient(cfg)
	default:
		return nil, fmt.Errorf("gateway: unknown provider %q, use %q or %q", provider, ProviderEvolution, ProviderUazapi)
	}
}
