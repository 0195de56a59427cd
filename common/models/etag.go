package models

// ETagAny matches any ETag, skipping the optimistic lock check on update.
const ETagAny = "*"

type ETag string

func (e ETag) String() string {
	return string(e)
}

// GetETag returns etag if it is set, otherwise the resource's current ETag.
func GetETag(resource MutableResource, etag ETag) ETag {
	if etag != "" {
		return etag
	}
	return resource.GetETag()
}
