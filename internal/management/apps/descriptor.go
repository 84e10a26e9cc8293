package apps

import (
	"github.com/nerrad567/gray-logic-fleet/internal/management/translator"
)

// Descriptor identifies a device management application and the domain
// representations its requests and responses use. Dialects register their
// translators per descriptor.
type Descriptor struct {
	// Name and Version form the application ID on the wire, e.g. "CMD-V1".
	Name    string
	Version string

	Request  translator.Type
	Response translator.Type
}

// ID returns Name-Version.
func (d Descriptor) ID() string {
	return d.Name + "-" + d.Version
}
