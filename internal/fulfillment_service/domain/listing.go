package domain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrUnsupported is returned for a bridge call the marketplace side does not offer.
var ErrUnsupported = errors.New("operation not supported by marketplace")

// ListingView is a shape-independent handle on a marketplace listing.
// ActiveKnown is false when the listing does not state its active flag;
// Category reports ok=false when it does not state its category.
type ListingView interface {
	ID() string
	Category() (int64, bool)
	Active() bool
	ActiveKnown() bool
	SetActive(active bool) error
}

// FieldMap is a listing exposed as a mapping with an id key.
type FieldMap map[string]any

var idKeys = []string{"id", "lot_id", "offer_id"}

func (m FieldMap) ID() string {
	for _, k := range idKeys {
		if v, ok := m[k]; ok {
			if s := scalarString(v); s != "" && s != "0" {
				return s
			}
		}
	}
	return ""
}

var categoryKeys = []string{"category_id", "subcategory_id"}

func (m FieldMap) Category() (int64, bool) {
	for _, k := range categoryKeys {
		if v, ok := m[k]; ok {
			if n, err := strconv.ParseInt(scalarString(v), 10, 64); err == nil && n > 0 {
				return n, true
			}
		}
	}
	return 0, false
}

func (m FieldMap) ActiveKnown() bool {
	_, a := m["active"]
	_, b := m["is_active"]
	return a || b
}

func (m FieldMap) Active() bool {
	if v, ok := m["active"]; ok {
		return truthy(v)
	}
	return truthy(m["is_active"])
}

func (m FieldMap) SetActive(active bool) error {
	if m == nil {
		return errors.New("listing fields are empty")
	}
	m["active"] = active
	if _, ok := m["is_active"]; ok {
		m["is_active"] = active
	}
	return nil
}

// KeyedListing is a listing whose identifier is the key it was listed under.
type KeyedListing struct {
	Key    string
	Fields FieldMap
}

func (k *KeyedListing) ID() string {
	if id := k.Fields.ID(); id != "" {
		return id
	}
	return k.Key
}

func (k *KeyedListing) Category() (int64, bool) { return k.Fields.Category() }

func (k *KeyedListing) Active() bool { return k.Fields.Active() }

func (k *KeyedListing) ActiveKnown() bool { return k.Fields.ActiveKnown() }

func (k *KeyedListing) SetActive(active bool) error { return k.Fields.SetActive(active) }

func (k *KeyedListing) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(k.Fields)+1)
	for key, v := range k.Fields {
		out[key] = v
	}
	if _, ok := out["id"]; !ok {
		out["id"] = k.Key
	}
	return json.Marshal(out)
}

// Lot is the typed listing representation returned by the lot lookup call.
type Lot struct {
	LotID      int64   `json:"id"`
	CategoryID int64   `json:"category_id,omitempty"`
	Title      string  `json:"title,omitempty"`
	Price      float64 `json:"price,omitempty"`
	Amount     int     `json:"amount,omitempty"`
	IsActive   bool    `json:"active"`

	activeKnown bool
}

// UnmarshalJSON records whether the payload carried the active flag.
func (l *Lot) UnmarshalJSON(b []byte) error {
	type plain Lot
	aux := struct {
		*plain
		Active *bool `json:"active"`
	}{plain: (*plain)(l)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if aux.Active != nil {
		l.IsActive = *aux.Active
		l.activeKnown = true
	}
	return nil
}

func (l *Lot) ID() string {
	if l.LotID == 0 {
		return ""
	}
	return strconv.FormatInt(l.LotID, 10)
}

func (l *Lot) Category() (int64, bool) { return l.CategoryID, l.CategoryID > 0 }

func (l *Lot) Active() bool { return l.IsActive }

// ActiveKnown treats an active lot as known; false is only trusted when it
// was decoded or set explicitly.
func (l *Lot) ActiveKnown() bool { return l.activeKnown || l.IsActive }

func (l *Lot) SetActive(active bool) error {
	l.IsActive = active
	l.activeKnown = true
	return nil
}

var (
	_ ListingView = FieldMap(nil)
	_ ListingView = (*KeyedListing)(nil)
	_ ListingView = (*Lot)(nil)
)

// ListingViewsFromJSON picks an adapter for every listing in raw. Accepted
// shapes: a list of mappings, a single mapping with an id key, a mapping of
// id -> fields, or any of these wrapped in "lots" or "data".
func ListingViewsFromJSON(raw []byte) ([]ListingView, error) {
	var decoded any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode listings: %w", err)
	}
	return listingViews(decoded), nil
}

func listingViews(v any) []ListingView {
	switch t := v.(type) {
	case []any:
		views := make([]ListingView, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				views = append(views, FieldMap(m))
			}
		}
		return views
	case map[string]any:
		for _, wrapper := range []string{"lots", "data"} {
			if inner, ok := t[wrapper]; ok {
				return listingViews(inner)
			}
		}
		if FieldMap(t).ID() != "" {
			return []ListingView{FieldMap(t)}
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		views := make([]ListingView, 0, len(keys))
		for _, k := range keys {
			if m, ok := t[k].(map[string]any); ok {
				views = append(views, &KeyedListing{Key: k, Fields: FieldMap(m)})
			}
		}
		return views
	}
	return nil
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	return ""
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "on":
			return true
		}
	case json.Number:
		return t.String() == "1"
	case float64:
		return t == 1
	case int:
		return t == 1
	}
	return false
}

// ListingDiscovery is one way of listing the operator's lots in a category.
// Unfiltered strategies return lots of every category.
type ListingDiscovery struct {
	Name       string
	Discover   func(ctx context.Context, categoryID int64) ([]ListingView, error)
	Unfiltered bool
}

// ListingFieldFetch loads the mutable field set of one listing.
type ListingFieldFetch struct {
	Name  string
	Fetch func(ctx context.Context, listingID string) (ListingView, error)
}

// ListingSave persists a modified field set.
type ListingSave struct {
	Name string
	Save func(ctx context.Context, fields ListingView) error
}

// DeactivationChains are the ordered fallbacks the deactivator walks.
type DeactivationChains struct {
	Discovery    []ListingDiscovery
	FieldFetch   []ListingFieldFetch
	Save         []ListingSave
	FallbackSave *ListingSave
}
