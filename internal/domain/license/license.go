// Package license provides the license tier type shared by cart items,
// purchases and checkout.
package license

// Type represents a usage-rights tier.
type Type string

const (
	TypeStandard Type = "standard" // Personal and small-project use
	TypeExtended Type = "extended" // Broadcast and commercial use
)

// Valid reports whether the license type is a known tier.
func (t Type) Valid() bool {
	return t == TypeStandard || t == TypeExtended
}

// String returns the string representation of the license type.
func (t Type) String() string {
	return string(t)
}
