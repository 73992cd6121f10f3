package retailers

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/template"
)

// DefaultTemplate is used when a retailer does not configure its own.
const DefaultTemplate = "Mensaje enviado a las {{.SentAt}} del servicio de {{.Retailer}} (pedido {{.OrderID}})"

// TargetPrefix namespaces retailer targets in the routing rule set.
const TargetPrefix = "retailer:"

var (
	ErrInvalidCatalog    = errors.New("invalid retailer catalog")
	ErrDuplicateStore    = errors.New("duplicate store id")
	ErrDuplicateDetail   = errors.New("duplicate detail type")
	ErrMissingStoreID    = errors.New("store id is required")
	ErrMissingDetailType = errors.New("detail type is required")
)

// Retailer describes one fulfilment partner: which store id routes to it,
// the detail type of its events and how its notification reads.
type Retailer struct {
	StoreID    string `toml:"store_id"`
	DetailType string `toml:"detail_type"`
	Name       string `toml:"name,omitempty"`
	Template   string `toml:"template,omitempty"`
	Channel    string `toml:"channel,omitempty"`
}

// Target is the rule target name of the retailer's adapter.
func (r Retailer) Target() string {
	return TargetPrefix + r.StoreID
}

// DisplayName falls back to the store id.
func (r Retailer) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.StoreID
}

func (r Retailer) template() (*template.Template, error) {
	text := r.Template
	if text == "" {
		text = DefaultTemplate
	}
	return template.New(r.StoreID).Option("missingkey=error").Parse(text)
}

type Catalog []Retailer

func DefaultCatalog() Catalog {
	return Catalog{
		{StoreID: "soriana", DetailType: "SorianaOrder", Name: "Soriana"},
		{StoreID: "walmart", DetailType: "WalmartOrder", Name: "Walmart"},
		{StoreID: "lacomer", DetailType: "LacomerOrder", Name: "La Comercial Mexicana"},
	}
}

// Validate rejects catalogs that would route a store or a detail type to
// more than one retailer. Templates are test-executed against an empty
// Message so unknown fields fail at startup.
func (c Catalog) Validate() error {
	stores := make(map[string]bool, len(c))
	details := make(map[string]bool, len(c))

	for i, r := range c {
		switch {
		case strings.TrimSpace(r.StoreID) == "":
			return fmt.Errorf("%w: entry %d: %w", ErrInvalidCatalog, i, ErrMissingStoreID)
		case strings.TrimSpace(r.DetailType) == "":
			return fmt.Errorf("%w: %s: %w", ErrInvalidCatalog, r.StoreID, ErrMissingDetailType)
		case stores[r.StoreID]:
			return fmt.Errorf("%w: %w: %s", ErrInvalidCatalog, ErrDuplicateStore, r.StoreID)
		case details[r.DetailType]:
			return fmt.Errorf("%w: %w: %s", ErrInvalidCatalog, ErrDuplicateDetail, r.DetailType)
		}
		tmpl, err := r.template()
		if err == nil {
			err = tmpl.Execute(io.Discard, Message{})
		}
		if err != nil {
			return fmt.Errorf("%w: %s: template: %w", ErrInvalidCatalog, r.StoreID, err)
		}
		stores[r.StoreID] = true
		details[r.DetailType] = true
	}

	return nil
}

// RoutingTable maps each store id to its retailer detail type.
func (c Catalog) RoutingTable() map[string]string {
	table := make(map[string]string, len(c))
	for _, r := range c {
		table[r.StoreID] = r.DetailType
	}
	return table
}

func (c Catalog) Lookup(storeID string) (Retailer, bool) {
	for _, r := range c {
		if r.StoreID == storeID {
			return r, true
		}
	}
	return Retailer{}, false
}
