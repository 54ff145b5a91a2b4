package dynamo

// Config holds configuration for the DynamoDB backend.
type Config struct {
	// TablePrefix is prepended to a domain name to form its table name.
	// Default: "" (table name equals domain name)
	TablePrefix string

	// ItemKey is the hash key attribute holding the item name. Attribute keys
	// equal to ItemKey are rejected.
	// Default: "item_name"
	ItemKey string

	// Streams enables a NEW_AND_OLD_IMAGES stream on tables created by
	// CreateDomain, for the stream package's replication handler.
	// Default: false
	Streams bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ItemKey: "item_name",
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.ItemKey == "" {
		c.ItemKey = "item_name"
	}
}
