package builder

import (
	"sync"

	"github.com/gabrielmiguelok/pagestudio/pkg/section"
)

// Controller tracks the single active section. Keys are not checked
// against the registry; the editor shows a placeholder for keys it cannot
// edit.
type Controller struct {
	active string
	mu     sync.RWMutex
}

// NewController starts on the first section of tmpl.
func NewController(tmpl *section.Template) *Controller {
	return &Controller{active: tmpl.First()}
}

// Select makes key the active section.
func (c *Controller) Select(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = key
}

// Active returns the active section key.
func (c *Controller) Active() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}
