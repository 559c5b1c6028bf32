package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/florianilch/odatactl/internal/callback"
	"github.com/florianilch/odatactl/internal/odata"
	"github.com/florianilch/odatactl/internal/printer"
	"github.com/florianilch/odatactl/internal/tokensource"
)

// App wires the token provider, the authorizing transport and the OData client
// behind the command operations.
type App struct {
	cfg      *Config
	provider *tokensource.Provider
	client   *odata.Client
	printer  *printer.Printer
}

// Option configures an App.
type Option func(*options)

type options struct {
	out            io.Writer
	base           http.RoundTripper
	providerOpts   []tokensource.Option
	endpointClient *http.Client
	promptIn       io.Reader
}

// WithOutput sets where results are printed. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		o.out = w
	}
}

// WithPromptInput sets where the console prompt reads the authorization code from.
// Defaults to os.Stdin.
func WithPromptInput(r io.Reader) Option {
	return func(o *options) {
		o.promptIn = r
	}
}

// WithBaseTransport sets the transport below the authorizing layer.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.base = rt
	}
}

// WithProviderOptions appends options for the token provider, e.g. a custom code reader.
func WithProviderOptions(opts ...tokensource.Option) Option {
	return func(o *options) {
		o.providerOpts = append(o.providerOpts, opts...)
	}
}

// WithEndpointClient sets the HTTP client used for the token endpoint.
func WithEndpointClient(c *http.Client) Option {
	return func(o *options) {
		o.endpointClient = c
	}
}

// New creates a new App instance from a validated configuration.
func New(cfg *Config, opts ...Option) (*App, error) {
	o := options{out: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	creds, err := cfg.Auth.Credentials()
	if err != nil {
		return nil, err
	}

	authorizer, err := tokensource.NewAuthorizer(creds, o.endpointClient)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	// Login instructions go to stderr so stdout carries only results.
	providerOpts := []tokensource.Option{
		tokensource.WithPresenter(&tokensource.ConsolePresenter{Out: os.Stderr, OpenBrowser: cfg.Auth.OpenBrowser}),
		tokensource.WithCodeReader(&tokensource.ConsoleReader{In: o.promptIn, Out: os.Stderr}),
		tokensource.WithPromptTimeout(cfg.Auth.PromptTimeout),
	}
	if cfg.Auth.CallbackListener {
		server, err := callback.New(cfg.Auth.RedirectURI, slog.Default())
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		providerOpts = append(providerOpts, tokensource.WithCodeReader(server))
	}
	providerOpts = append(providerOpts, o.providerOpts...)

	provider := tokensource.NewProvider(authorizer, providerOpts...)

	httpClient := &http.Client{
		Transport: &tokensource.Transport{
			Provider:    provider,
			Base:        o.base,
			Reauthorize: cfg.Auth.Reauthorize,
		},
	}

	return &App{
		cfg:      cfg,
		provider: provider,
		client:   odata.NewClient(httpClient, odata.WithRateLimit(cfg.Service.RateLimit, cfg.Service.RateBurst)),
		printer:  printer.New(o.out),
	}, nil
}

// Login runs the interactive authorization flow. Tokens are kept in memory only.
func (a *App) Login(ctx context.Context) error {
	if err := a.provider.EnsureInitialized(ctx); err != nil {
		return err
	}
	a.printer.Section("Login Successful")
	a.printer.Line("Authorized against %s", a.cfg.Auth.ResourceURL)
	return nil
}

// Metadata prints the service's complex types, entity types and actions, followed
// by the structural properties of the first entity type.
func (a *App) Metadata(ctx context.Context) error {
	md, err := a.client.Metadata(ctx, a.cfg.Service.URL)
	if err != nil {
		return fmt.Errorf("reading metadata: %w", err)
	}

	a.printer.Section("Read Edm")
	a.printer.List("Found ComplexTypes", md.ComplexTypeNames())
	entityTypes := md.EntityTypeNames()
	a.printer.List("Found EntityTypes", entityTypes)

	var actions []string
	for _, action := range md.Actions() {
		desc := action.Name
		if binding := action.BindingParameterType(); binding != "" {
			desc += " bound to " + binding
		}
		actions = append(actions, desc)
	}
	a.printer.List("Found Actions", actions)

	if len(entityTypes) == 0 {
		return nil
	}
	et, _ := md.EntityType(entityTypes[0])
	a.printer.Section("Properties of " + entityTypes[0])
	for _, p := range et.Properties {
		a.printer.Line("property '%s' %s", p.Name, p.Type)
	}
	return nil
}

// Query narrows an entity set read.
type Query struct {
	Filter string
	Expand []string
	Top    int
}

// List prints every entity of set matching q, following server-driven paging.
func (a *App) List(ctx context.Context, set string, q Query) error {
	b := a.entitySet(set).Filter(q.Filter).Expand(q.Expand...)
	if q.Top > 0 {
		b.Top(q.Top)
	}
	uri, err := b.Build()
	if err != nil {
		return err
	}

	_, err = a.list(ctx, uri)
	return err
}

func (a *App) list(ctx context.Context, uri string) ([]odata.Entity, error) {
	var entities []odata.Entity
	it := a.client.ReadEntities(ctx, uri)
	for it.Next() {
		e := it.Entity()
		entities = append(entities, e)
		a.printer.Entity("Entry:", e.Properties())
	}
	if err := it.Err(); err != nil {
		return entities, fmt.Errorf("reading entities: %w", err)
	}
	a.printer.Line("%d entities", len(entities))
	return entities, nil
}

// Get prints the entity of set identified by key.
func (a *App) Get(ctx context.Context, set, key string, expand []string) error {
	uri, err := a.entitySet(set).AppendKeySegment(odata.ParseKey(key)).Expand(expand...).Build()
	if err != nil {
		return err
	}

	e, err := a.client.ReadEntity(ctx, uri)
	if err != nil {
		return fmt.Errorf("reading entity: %w", err)
	}
	a.printer.Entity("Single Entry:", e.Properties())
	return nil
}

// Create posts the JSON object read from body to set and prints the created entity.
func (a *App) Create(ctx context.Context, set string, body io.Reader) error {
	e, err := decodeEntity(body)
	if err != nil {
		return err
	}
	uri, err := a.entitySet(set).Build()
	if err != nil {
		return err
	}

	created, err := a.client.CreateEntity(ctx, uri, e)
	if err != nil {
		return fmt.Errorf("creating entity: %w", err)
	}
	a.printer.Entity("Created Entry:", created.Properties())
	return nil
}

// Update patches the entity of set identified by key with the JSON object read
// from body. The entity is read first so the update is guarded by its current ETag.
func (a *App) Update(ctx context.Context, set, key string, body io.Reader) error {
	patch, err := decodeEntity(body)
	if err != nil {
		return err
	}
	uri, err := a.entitySet(set).AppendKeySegment(odata.ParseKey(key)).Build()
	if err != nil {
		return err
	}

	current, err := a.client.ReadEntity(ctx, uri)
	if err != nil {
		return fmt.Errorf("reading entity: %w", err)
	}
	if etag := current.ETag(); etag != "" && patch.ETag() == "" {
		patch["@odata.etag"] = etag
	}

	status, err := a.client.UpdateEntity(ctx, uri, patch)
	if err != nil {
		return fmt.Errorf("updating entity: %w", err)
	}
	a.printer.Line("Updated successfully: %d", status)
	return nil
}

// Delete removes the entity of set identified by key.
func (a *App) Delete(ctx context.Context, set, key string) error {
	uri, err := a.entitySet(set).AppendKeySegment(odata.ParseKey(key)).Build()
	if err != nil {
		return err
	}

	status, err := a.client.DeleteEntity(ctx, uri)
	if err != nil {
		return fmt.Errorf("deleting entity: %w", err)
	}
	a.printer.Line("Deletion of Entry was successful: %d", status)
	return nil
}

// DemoEntitySet is the entity set the demo walks through.
const DemoEntitySet = "items"

// Demo runs the sample sequence: metadata, all items, the first item by key and
// a $filter on its display name.
func (a *App) Demo(ctx context.Context) error {
	if err := a.Metadata(ctx); err != nil {
		return err
	}

	a.printer.Section("Read Entities")
	uri, err := a.entitySet(DemoEntitySet).Build()
	if err != nil {
		return err
	}
	items, err := a.list(ctx, uri)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	first := items[0]

	if id, ok := first["id"].(string); ok {
		a.printer.Section("Read Entry")
		if err := a.Get(ctx, DemoEntitySet, id, nil); err != nil {
			return err
		}
	}

	if name, ok := first["displayName"].(string); ok {
		a.printer.Section("Read Entities with $filter")
		filter := fmt.Sprintf("displayName eq '%s'", strings.ReplaceAll(name, "'", "''"))
		if err := a.List(ctx, DemoEntitySet, Query{Filter: filter}); err != nil {
			return err
		}
	}
	return nil
}

// entitySet starts a URI for set below the configured company, if any.
func (a *App) entitySet(set string) *odata.URIBuilder {
	b := odata.NewURIBuilder(a.cfg.Service.URL)
	if company := a.cfg.Service.Company; company != "" {
		b.AppendEntitySetSegment("companies").AppendKeySegment(odata.ParseKey(company))
	}
	return b.AppendEntitySetSegment(set)
}

func decodeEntity(r io.Reader) (odata.Entity, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var e odata.Entity
	if err := dec.Decode(&e); err != nil {
		return nil, fmt.Errorf("decoding entity: %w", err)
	}
	if e == nil {
		return nil, errors.New("decoding entity: expected a JSON object")
	}
	return e, nil
}
