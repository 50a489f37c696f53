// Copyright 2025 Scadalynx
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package objects

import (
	"sync"

	"github.com/scadalynx/bacstack"
	"github.com/scadalynx/bacstack/encoding"
)

// Database is the in-memory object store: get/add/delete/iter (spec §4.8).
type Database struct {
	schemas map[bacstack.ObjectType]ClassSchema

	mu      sync.RWMutex
	objects map[bacstack.ObjectIdentifier]*Object
	order   []bacstack.ObjectIdentifier // insertion order, for iter() and object-list
}

// NewDatabase constructs an empty Database using the built-in class schemas.
func NewDatabase() *Database {
	return &Database{
		schemas: defaultSchemas(),
		objects: make(map[bacstack.ObjectIdentifier]*Object),
	}
}

// Schema returns the ClassSchema registered for t, if any.
func (d *Database) Schema(t bacstack.ObjectType) (ClassSchema, bool) {
	s, ok := d.schemas[t]
	return s, ok
}

// RegisterSchema adds or overrides a ClassSchema, for object types beyond
// the built-in set.
func (d *Database) RegisterSchema(s ClassSchema) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.schemas[s.Type] = s
}

// Get returns the object with the given identifier, or nil if absent.
func (d *Database) Get(oid bacstack.ObjectIdentifier) *Object {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.objects[oid]
}

// Add creates and inserts a new Object using the registered schema for its
// type. It fails if the type has no schema or the identifier is already in
// use.
func (d *Database) Add(oid bacstack.ObjectIdentifier, name string) (*Object, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.objects[oid]; exists {
		return nil, bacstack.NewBACnetError(bacstack.ErrorClassObject, bacstack.ErrorCodeObjectIdentifierAlreadyExists)
	}
	schema, ok := d.schemas[oid.Type]
	if !ok {
		return nil, bacstack.NewBACnetError(bacstack.ErrorClassObject, bacstack.ErrorCodeDynamicCreationNotSupported)
	}

	obj := New(schema, oid, name)
	d.objects[oid] = obj
	d.order = append(d.order, oid)
	d.refreshDeviceObjectListsLocked()
	return obj, nil
}

// DeviceOptions seeds the device-identity and protocol-parameter
// properties ASHRAE 135 Clause 12.11 requires beyond what Add()/New()
// already fill in (object identifier/name/type, status_flags,
// out_of_service).
type DeviceOptions struct {
	VendorName                 string
	VendorIdentifier           uint32
	ModelName                  string
	FirmwareRevision           string
	ApplicationSoftwareVersion string
	ProtocolVersion            uint32
	ProtocolRevision           uint32
	MaxAPDULengthAccepted      uint32
	SegmentationSupported      bacstack.Segmentation
	APDUTimeout                uint32
	NumberOfAPDURetries        uint32
}

// AddDevice creates the Device object for instance and seeds its required
// properties (spec §3's Device module), including an object_list that
// tracks every object this Database holds, itself included.
func (d *Database) AddDevice(instance uint32, name string, opts DeviceOptions) (*Object, error) {
	obj, err := d.Add(bacstack.ObjectIdentifier{Type: bacstack.ObjectTypeDevice, Instance: instance}, name)
	if err != nil {
		return nil, err
	}
	obj.SetSystemProperty(bacstack.PropertySystemStatus, encoding.EnumeratedValue(uint32(bacstack.DeviceStatusOperational)))
	obj.SetSystemProperty(bacstack.PropertyVendorName, encoding.CharacterStringValue(opts.VendorName))
	obj.SetSystemProperty(bacstack.PropertyVendorIdentifier, encoding.UnsignedValue(opts.VendorIdentifier))
	obj.SetSystemProperty(bacstack.PropertyModelName, encoding.CharacterStringValue(opts.ModelName))
	obj.SetSystemProperty(bacstack.PropertyFirmwareRevision, encoding.CharacterStringValue(opts.FirmwareRevision))
	obj.SetSystemProperty(bacstack.PropertyApplicationSoftwareVersion, encoding.CharacterStringValue(opts.ApplicationSoftwareVersion))
	obj.SetSystemProperty(bacstack.PropertyProtocolVersion, encoding.UnsignedValue(opts.ProtocolVersion))
	obj.SetSystemProperty(bacstack.PropertyProtocolRevision, encoding.UnsignedValue(opts.ProtocolRevision))
	obj.SetSystemProperty(bacstack.PropertyMaxApduLengthAccepted, encoding.UnsignedValue(opts.MaxAPDULengthAccepted))
	obj.SetSystemProperty(bacstack.PropertySegmentationSupported, encoding.EnumeratedValue(uint32(opts.SegmentationSupported)))
	obj.SetSystemProperty(bacstack.PropertyApduTimeout, encoding.UnsignedValue(opts.APDUTimeout))
	obj.SetSystemProperty(bacstack.PropertyNumberOfApduRetries, encoding.UnsignedValue(opts.NumberOfAPDURetries))
	obj.SetSystemProperty(bacstack.PropertyDatabaseRevision, encoding.UnsignedValue(0))
	obj.SetSystemProperty(bacstack.PropertyBackupAndRestoreState, encoding.EnumeratedValue(0))
	return obj, nil
}

// refreshDeviceObjectListsLocked recomputes every Device object's
// object_list from the current insertion order. Callers hold d.mu.
func (d *Database) refreshDeviceObjectListsLocked() {
	members := make([]encoding.Value, len(d.order))
	for i, oid := range d.order {
		members[i] = encoding.ObjectIdentifierValue(oid)
	}
	for _, oid := range d.order {
		if oid.Type == bacstack.ObjectTypeDevice {
			d.objects[oid].SetSystemPropertyArray(bacstack.PropertyObjectList, members)
		}
	}
}

// Delete removes an object. It fails with OBJECT_DELETION_NOT_PERMITTED if
// the object is of type Device, whatever its instance number (the Device
// object is not independently deletable in this implementation).
func (d *Database) Delete(oid bacstack.ObjectIdentifier) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if oid.Type == bacstack.ObjectTypeDevice {
		return bacstack.NewBACnetError(bacstack.ErrorClassObject, bacstack.ErrorCodeObjectDeletionNotPermitted)
	}
	if _, exists := d.objects[oid]; !exists {
		return bacstack.NewBACnetError(bacstack.ErrorClassObject, bacstack.ErrorCodeUnknownObject)
	}
	delete(d.objects, oid)
	for i, id := range d.order {
		if id == oid {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	d.refreshDeviceObjectListsLocked()
	return nil
}

// Iter returns every object identifier in insertion order.
func (d *Database) Iter() []bacstack.ObjectIdentifier {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]bacstack.ObjectIdentifier(nil), d.order...)
}
