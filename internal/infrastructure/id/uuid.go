package id

import "github.com/google/uuid"

// UUIDGenerator mints random (v4) identifiers for orders, outbox records and invoices.
type UUIDGenerator struct{}

func NewUUIDGenerator() UUIDGenerator { return UUIDGenerator{} }

func (UUIDGenerator) NewID() string { return uuid.NewString() }
