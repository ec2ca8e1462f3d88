package model

// Collection is the owning group of tokens, identified uniquely by the
// issuing address and the taxon number chosen at mint time.
type Collection struct {
	BaseModel
	Issuer string `gorm:"not null;type:varchar(64);uniqueIndex:idx_collection_identity" json:"issuer"`
	Taxon  uint32 `gorm:"not null;uniqueIndex:idx_collection_identity"                  json:"taxon"`
}

// Key returns the composite identity used for in-flush resolve-or-create.
func (c Collection) Key() CollectionKey {
	return CollectionKey{Issuer: c.Issuer, Taxon: c.Taxon}
}

type CollectionKey struct {
	Issuer string
	Taxon  uint32
}
