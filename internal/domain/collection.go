package domain

import "time"

type Collection struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	SortOrder   int       `db:"sort_order" json:"sort_order"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at,omitzero"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at,omitzero"`
}

// NewCollection is the input for creating a collection. Nil fields take
// their defaults: sort order 0, active.
type NewCollection struct {
	Name        string  `yaml:"name"`
	Description *string `yaml:"description"`
	SortOrder   *int    `yaml:"sort_order"`
	IsActive    *bool   `yaml:"is_active"`
}

// Build validates the input and returns the row to insert.
func (n NewCollection) Build() (*Collection, error) {
	name, err := RequiredText("collection name", n.Name)
	if err != nil {
		return nil, err
	}

	c := &Collection{
		Name:        name,
		Description: OptionalText(n.Description),
		IsActive:    true,
	}
	if n.SortOrder != nil {
		c.SortOrder = *n.SortOrder
	}
	if n.IsActive != nil {
		c.IsActive = *n.IsActive
	}
	return c, nil
}
