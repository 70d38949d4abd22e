package models

import "time"

// AddressLabel resolves an address to an entity kind, name, and confidence.
// Created by external label sources; read-through cached for TTL=1h (labels)
// / 30m (tokens); higher-confidence entries override lower ones.
type AddressLabel struct {
	Address    string     `json:"address"`
	Chain      Chain      `json:"chain"`
	Kind       EntityKind `json:"kind"`
	EntityName string     `json:"entity_name,omitempty"`
	Confidence float64    `json:"confidence"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// UnknownLabel is the never-fail fallback lookup(addr, chain) returns on
// any error or cache miss past the remote tier.
func UnknownLabel(addr string, chain Chain) AddressLabel {
	return AddressLabel{
		Address:    addr,
		Chain:      chain,
		Kind:       KindUnknown,
		Confidence: 0,
		UpdatedAt:  time.Now(),
	}
}
