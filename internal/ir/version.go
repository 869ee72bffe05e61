package ir

// Version constants for the record schema and engine.
const (
	// SchemaVersion is the tx/receipt record schema version.
	SchemaVersion = "1"

	// EngineVersion is the marketplace engine version.
	EngineVersion = "0.1.0"
)
