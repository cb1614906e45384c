package gateway

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DeviceAddress identifies one device within a site.
type DeviceAddress struct {
	Site   string
	Device string
}

// Validate checks that both parts are present and usable in a path.
func (d DeviceAddress) Validate() error {
	if d.Site == "" || d.Device == "" {
		return fmt.Errorf("%w: site and device are required", ErrInvalidReference)
	}
	if strings.Contains(d.Site, "/") || strings.Contains(d.Device, "/") {
		return fmt.Errorf("%w: site %q or device %q contains '/'", ErrInvalidReference, d.Site, d.Device)
	}
	return nil
}

// String returns "site/device".
func (d DeviceAddress) String() string {
	return d.Site + "/" + d.Device
}

// legacyRef is the device reference used by the wsbac endpoints:
// "//site/device.DEVdevice".
func (d DeviceAddress) legacyRef() string {
	return "//" + d.Site + "/" + d.Device + ".DEV" + d.Device
}

// ObjectReference identifies exactly one object on the device network.
//
// ObjectType is either a BACnet abbreviation ("AV") or a full type name
// ("analog-value"); the REST paths use it as given. Instance is a decimal
// string.
type ObjectReference struct {
	Site       string
	Device     string
	ObjectType string
	Instance   string
}

// NewObjectReference builds a reference from a device and an object ID such
// as "AV,1000" or "AV1000".
func NewObjectReference(dev DeviceAddress, objectID string) (ObjectReference, error) {
	typ, inst, err := ParseObjectID(objectID)
	if err != nil {
		return ObjectReference{}, err
	}
	ref := ObjectReference{Site: dev.Site, Device: dev.Device, ObjectType: typ, Instance: inst}
	return ref, ref.Validate()
}

// DeviceAddress returns the device holding the object.
func (r ObjectReference) DeviceAddress() DeviceAddress {
	return DeviceAddress{Site: r.Site, Device: r.Device}
}

// Validate checks that the reference can address an object.
func (r ObjectReference) Validate() error {
	if err := r.DeviceAddress().Validate(); err != nil {
		return err
	}
	if r.ObjectType == "" {
		return fmt.Errorf("%w: object type is required", ErrInvalidReference)
	}
	return checkInstance("instance", r.Instance)
}

// ID returns the canonical wire form "<objectType>,<instance>".
func (r ObjectReference) ID() string {
	return r.ObjectType + "," + r.Instance
}

// String returns "site/device/type,instance".
func (r ObjectReference) String() string {
	return r.Site + "/" + r.Device + "/" + r.ID()
}

// path returns the identity path below the .bacnet root:
// "/site/device/type,instance".
func (r ObjectReference) path() string {
	return "/" + r.Site + "/" + r.Device + "/" + r.ID()
}

// propertyVia returns the batch-endpoint path of one property.
func (r ObjectReference) propertyVia(property string) string {
	return "/.bacnet" + r.path() + "/" + property
}

// legacyRef is the object reference used by the wsbac endpoints:
// "//site/device.AV1000".
func (r ObjectReference) legacyRef() string {
	return "//" + r.Site + "/" + r.Device + "." + r.abbreviation() + r.Instance
}

// abbreviation returns the BACnet abbreviation of the object type.
func (r ObjectReference) abbreviation() string {
	if abbr := ObjectTypeAbbreviation(r.ObjectType); abbr != "" {
		return abbr
	}
	return strings.ToUpper(r.ObjectType)
}

// objectIDPattern splits "AV1000", "AV,1000" and "av 1000".
var objectIDPattern = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z0-9 -]*?)\s*[, ]?\s*([0-9]+)\s*$`)

// ParseObjectID splits an object ID into type and instance.
//
// Accepts formats:
//   - "AV,1000"  canonical wire form
//   - "AV1000"   shell shorthand
//   - "analog-value,1000"
//
// Abbreviations are upper-cased; full type names are kept as given.
func ParseObjectID(s string) (objectType, instance string, err error) {
	m := objectIDPattern.FindStringSubmatch(s)
	if m == nil {
		return "", "", fmt.Errorf("%w: object ID %q", ErrInvalidReference, s)
	}
	objectType = strings.TrimSpace(m[1])
	if ObjectTypeName(strings.ToUpper(objectType)) != "" {
		objectType = strings.ToUpper(objectType)
	}
	return objectType, m[2], nil
}

// NormalizePropertyPath converts bracket and dot notation to the gateway's
// slash addressing: "x[2].y" → "x/2/y".
func NormalizePropertyPath(p string) string {
	p = strings.ReplaceAll(p, "[", ".")
	p = strings.ReplaceAll(p, "]", "")
	return strings.ReplaceAll(p, ".", "/")
}

// propertyName returns the final "/"-delimited segment of a via path.
func propertyName(via string) string {
	return via[strings.LastIndex(via, "/")+1:]
}

// MaxInstance is the largest BACnet object instance number.
const MaxInstance = 4194303

// checkInstance reports ErrInvalidReference unless s is a decimal instance
// number in [0, MaxInstance].
func checkInstance(what, s string) error {
	if !isDecimal(s) {
		return fmt.Errorf("%w: %s %q is not numeric", ErrInvalidReference, what, s)
	}
	if n, err := strconv.ParseUint(s, 10, 32); err != nil || n > MaxInstance {
		return fmt.Errorf("%w: %s %s exceeds %d", ErrInvalidReference, what, s, MaxInstance)
	}
	return nil
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
