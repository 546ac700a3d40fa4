package persistence

// Table names. The task table schema is a contract shared with the external
// bulk importer; this core never issues DDL against it.
const (
	TableTask        = "task"
	TableTaskType    = "task_type"
	TableFieldChange = "field_change"
)

// task columns
const (
	ColID             = "id"
	ColSourceSystem   = "source_system"
	ColExtractedAt    = "extracted_at"
	ColName           = "name"
	ColTextContent    = "text_content"
	ColDescription    = "description"
	ColStatus         = "status"
	ColCustomFields   = "custom_fields"
	ColRelationships  = "relationships"
	ColFieldValues    = "field_values"
	ColCustomTypeID   = "custom_type_id"
	ColCustomTypeName = "custom_type_name"
	ColUpdatedAt      = "updated_at"
	ColResyncedAt     = "resynced_at"
)

// MySQL error numbers checked by the repositories
const (
	ErrNumFKViolation = 1452
)
