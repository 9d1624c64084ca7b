package order

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ErrNotArray is returned when a payload is valid JSON but not an array.
var ErrNotArray = errors.New("orders payload must be a JSON array")

// Item is a single line of an order.
type Item struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// Order is a customer order as served by the upstream endpoint.
// Values handed out by the fetcher are shared and must be treated as read-only.
type Order struct {
	ID     int64  `json:"id"`
	Items  []Item `json:"items"`
	UserID int64  `json:"userId"`
}

func (i Item) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.Quantity, validation.Min(0)),
	)
}

func (o Order) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.Items),
	)
}

// Decode parses a JSON array of orders and validates every record.
func Decode(payload []byte) ([]Order, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrNotArray
	}

	var orders []Order
	if err := json.Unmarshal(trimmed, &orders); err != nil {
		return nil, err
	}

	for idx, o := range orders {
		if err := o.Validate(); err != nil {
			return nil, fmt.Errorf("order %d: %w", idx, err)
		}
	}

	return orders, nil
}
