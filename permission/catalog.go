package permission

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrInvalidCode is returned for codes that are not resource.action.
	ErrInvalidCode = errors.New("permission: invalid code")
	// ErrCatalogFrozen is returned by Register after Freeze.
	ErrCatalogFrozen = errors.New("permission: catalog frozen")
)

// Entry describes one catalog permission.
type Entry struct {
	Code        string
	Resource    string
	Action      string
	Description string
}

// Catalog is the tenant independent list of known permission codes.
//
// Register every code during initialization, then call Freeze.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]Entry
	frozen  bool
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[string]Entry)}
}

// DefaultCatalog returns the built-in permission catalog, frozen.
func DefaultCatalog() *Catalog {
	c := NewCatalog()
	for _, e := range defaultEntries {
		// The built-in entries are valid by construction.
		if err := c.Register(e.Code, e.Description); err != nil {
			panic(err)
		}
	}
	c.Freeze()
	return c
}

var defaultEntries = []Entry{
	{Code: "users.create", Description: "Create new users"},
	{Code: "users.read", Description: "View user information"},
	{Code: "users.update", Description: "Update user information"},
	{Code: "users.delete", Description: "Delete users"},
	{Code: "roles.create", Description: "Create new roles"},
	{Code: "roles.read", Description: "View roles"},
	{Code: "roles.update", Description: "Update roles"},
	{Code: "roles.delete", Description: "Delete roles"},
	{Code: "products.create", Description: "Create new products"},
	{Code: "products.read", Description: "View products"},
	{Code: "products.update", Description: "Update products"},
	{Code: "products.delete", Description: "Delete products"},
	{Code: "orders.create", Description: "Create new orders"},
	{Code: "orders.read", Description: "View orders"},
	{Code: "orders.update", Description: "Update orders"},
	{Code: "orders.delete", Description: "Delete orders"},
	{Code: "inventory.read", Description: "View inventory"},
	{Code: "inventory.update", Description: "Update inventory"},
	{Code: "reports.sales", Description: "View sales reports"},
	{Code: "reports.inventory", Description: "View inventory reports"},
	{Code: "reports.users", Description: "View user reports"},
	{Code: "system.settings", Description: "Manage system settings"},
	{Code: "system.logs", Description: "View system logs"},
}

// ParseCode splits code into resource and action.
func ParseCode(code string) (resource, action string, err error) {
	resource, action, ok := strings.Cut(code, ".")
	if !ok || resource == "" || action == "" || strings.Contains(action, ".") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidCode, code)
	}
	if !validSegment(resource) || (action != "*" && !validSegment(action)) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidCode, code)
	}
	return resource, action, nil
}

func validSegment(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return false
		}
	}
	return true
}

// Register adds code to the catalog.
func (c *Catalog) Register(code, description string) error {
	resource, action, err := ParseCode(code)
	if err != nil {
		return err
	}
	if action == "*" {
		return fmt.Errorf("%w: wildcard %q cannot be registered", ErrInvalidCode, code)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return ErrCatalogFrozen
	}
	if _, exists := c.entries[code]; exists {
		return fmt.Errorf("permission %q already registered", code)
	}
	c.entries[code] = Entry{Code: code, Resource: resource, Action: action, Description: description}
	return nil
}

// Freeze prevents further registrations.
func (c *Catalog) Freeze() {
	c.mu.Lock()
	c.frozen = true
	c.mu.Unlock()
}

// Lookup returns the entry for code.
func (c *Catalog) Lookup(code string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[code]
	return e, ok
}

// Known reports whether code is registered, or is a wildcard over a
// resource with at least one registered action.
func (c *Catalog) Known(code string) bool {
	if _, ok := c.Lookup(code); ok {
		return true
	}
	resource, action, err := ParseCode(code)
	if err != nil || action != "*" {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.entries {
		if e.Resource == resource {
			return true
		}
	}
	return false
}

// Entries returns all entries sorted by code.
func (c *Catalog) Entries() []Entry {
	c.mu.RLock()
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Count returns the number of registered codes.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
