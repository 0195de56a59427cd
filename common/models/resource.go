package models

type Resource interface {
	// GetKind returns the unique name/type of the resource e.g. "run" or "artifact".
	GetKind() ResourceKind
	// GetCreatedAt returns the Time at which this resource was created.
	GetCreatedAt() Time
	// GetID returns the globally unique ResourceID of the resource.
	GetID() ResourceID
	// Validate the model by checking for required fields, lengths and types etc.
	Validate() error
}

// MutableResource is a resource whose rows are updated in place. Updates are guarded by the ETag.
type MutableResource interface {
	Resource
	GetETag() ETag
	SetETag(eTag ETag)
	GetUpdatedAt() Time
	SetUpdatedAt(t Time)
}
