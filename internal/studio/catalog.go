// Package studio resolves studio ids to their fixed reference plates.
package studio

import "fmt"

// DefaultID is the studio new orders fall back to.
const DefaultID = "white-infinity"

// Studio is one selectable backdrop. Object is the plate's file name in the
// plate source (local directory or storage bucket).
type Studio struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Object      string `json:"-"`
}

// Catalog is an ordered, immutable set of studios.
type Catalog struct {
	studios []Studio
	byID    map[string]int
}

func NewCatalog(studios []Studio) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]int, len(studios))}
	for _, s := range studios {
		if s.ID == "" || s.Object == "" {
			return nil, fmt.Errorf("studio %q: id and object are required", s.ID)
		}
		if _, dup := c.byID[s.ID]; dup {
			return nil, fmt.Errorf("duplicate studio id %q", s.ID)
		}
		c.byID[s.ID] = len(c.studios)
		c.studios = append(c.studios, s)
	}
	return c, nil
}

// DefaultCatalog holds the white infinity room and the numbered studio sets.
func DefaultCatalog() *Catalog {
	studios := []Studio{{
		ID:          DefaultID,
		Name:        "White Infinity Room",
		Description: "Clean, professional white studio with soft reflections.",
		Category:    "Indoor",
		Object:      "white-infinity.png",
	}}
	for i := 1; i <= 19; i++ {
		id := fmt.Sprintf("studio-%02d", i)
		studios = append(studios, Studio{
			ID:       id,
			Name:     fmt.Sprintf("Studio %02d", i),
			Category: "Studio",
			Object:   id + ".png",
		})
	}
	c, err := NewCatalog(studios)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) Lookup(id string) (Studio, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Studio{}, false
	}
	return c.studios[i], true
}

func (c *Catalog) Exists(id string) bool {
	_, ok := c.byID[id]
	return ok
}

func (c *Catalog) All() []Studio {
	out := make([]Studio, len(c.studios))
	copy(out, c.studios)
	return out
}
