package models

import (
	"database/sql/driver"
	"strings"

	"github.com/pkg/errors"
)

const (
	HashTypeBlake2b HashType = "BLAKE2B"
	HashTypeSHA256  HashType = "SHA256"
	HashTypeMD5     HashType = "MD5"
	// HashTypeFNV is what hashstructure produces; used for job fingerprints.
	HashTypeFNV HashType = "FNV"
)

var hashTypes = map[string]HashType{
	string(HashTypeBlake2b): HashTypeBlake2b,
	string(HashTypeSHA256):  HashTypeSHA256,
	string(HashTypeMD5):     HashTypeMD5,
	string(HashTypeFNV):     HashTypeFNV,
}

type HashType string

func (s HashType) Valid() bool {
	_, ok := hashTypes[string(s)]
	return ok
}

func (s HashType) String() string {
	return string(s)
}

func (s *HashType) Scan(src interface{}) error {
	if src == nil {
		*s = ""
		return nil
	}
	t, ok := src.(string)
	if !ok {
		return errors.Errorf("error expected string but found: %T", src)
	}
	if t == "" {
		*s = ""
		return nil
	}
	hashType, ok := hashTypes[strings.ToUpper(t)]
	if !ok {
		return errors.Errorf("error unknown hash type: %s", t)
	}
	*s = hashType
	return nil
}

func (s HashType) Value() (driver.Value, error) {
	return string(s), nil
}
