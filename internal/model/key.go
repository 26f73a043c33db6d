package model

// Wildcard is the wire spelling of All. It is reserved and cannot be used as
// an entity name.
const Wildcard = "*"

// Key selects which data_update frames a subscription receives.
type Key struct {
	entity string
	all    bool
}

// All matches every data_update frame.
var All = Key{all: true}

// Entity returns a key matching frames whose entity equals name.
func Entity(name string) Key {
	return Key{entity: name}
}

// ParseKey maps the wire spelling to a Key: "*" is All, anything else is an
// entity key.
func ParseKey(s string) Key {
	if s == Wildcard {
		return All
	}
	return Entity(s)
}

// IsAll reports whether k is the wildcard key.
func (k Key) IsAll() bool {
	return k.all
}

// Name returns the entity name, or "" for All.
func (k Key) Name() string {
	return k.entity
}

func (k Key) String() string {
	if k.all {
		return Wildcard
	}
	return k.entity
}
