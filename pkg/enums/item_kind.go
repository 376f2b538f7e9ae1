package enums

import "fmt"

// ItemKind classifies a canonical catalog item.
type ItemKind string

const (
	ItemKindMaterial  ItemKind = "material"
	ItemKindEquipment ItemKind = "equipment"
)

var validItemKinds = []ItemKind{
	ItemKindMaterial,
	ItemKindEquipment,
}

// String implements fmt.Stringer.
func (i ItemKind) String() string {
	return string(i)
}

// IsValid reports whether the value is a known ItemKind.
func (i ItemKind) IsValid() bool {
	for _, candidate := range validItemKinds {
		if candidate == i {
			return true
		}
	}
	return false
}

// ParseItemKind converts raw input into an ItemKind.
func ParseItemKind(value string) (ItemKind, error) {
	for _, candidate := range validItemKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid item kind %q", value)
}
