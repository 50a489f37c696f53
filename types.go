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

// Package bacstack provides a full-stack BACnet/IP implementation:
// wire codec, transaction state machines, BBMD/foreign-device
// transport, an object database, a service dispatcher, an event
// reporting engine, and a high-level client façade.
package bacstack

import "fmt"

// DefaultPort is the standard BACnet/IP UDP port.
const DefaultPort = 0xBAC0 // 47808

// MaxNPDULengthIPv4 is the largest NPDU payload BACnet/IP over IPv4 allows.
const MaxNPDULengthIPv4 = 1497

// ConfirmedServiceChoice identifies a confirmed service request/response.
type ConfirmedServiceChoice uint8

const (
	ServiceAcknowledgeAlarm            ConfirmedServiceChoice = 0
	ServiceConfirmedCOVNotification    ConfirmedServiceChoice = 1
	ServiceConfirmedEventNotification  ConfirmedServiceChoice = 2
	ServiceGetAlarmSummary             ConfirmedServiceChoice = 3
	ServiceGetEnrollmentSummary        ConfirmedServiceChoice = 4
	ServiceSubscribeCOV                ConfirmedServiceChoice = 5
	ServiceAtomicReadFile              ConfirmedServiceChoice = 6
	ServiceAtomicWriteFile             ConfirmedServiceChoice = 7
	ServiceAddListElement              ConfirmedServiceChoice = 8
	ServiceRemoveListElement           ConfirmedServiceChoice = 9
	ServiceCreateObject                ConfirmedServiceChoice = 10
	ServiceDeleteObject                ConfirmedServiceChoice = 11
	ServiceReadProperty                ConfirmedServiceChoice = 12
	ServiceReadPropertyConditional     ConfirmedServiceChoice = 13
	ServiceReadPropertyMultiple        ConfirmedServiceChoice = 14
	ServiceWriteProperty               ConfirmedServiceChoice = 15
	ServiceWritePropertyMultiple       ConfirmedServiceChoice = 16
	ServiceDeviceCommunicationControl  ConfirmedServiceChoice = 17
	ServiceConfirmedPrivateTransfer    ConfirmedServiceChoice = 18
	ServiceConfirmedTextMessage        ConfirmedServiceChoice = 19
	ServiceReinitializeDevice          ConfirmedServiceChoice = 20
	ServiceVTOpen                      ConfirmedServiceChoice = 21
	ServiceVTClose                     ConfirmedServiceChoice = 22
	ServiceVTData                      ConfirmedServiceChoice = 23
	ServiceAuthenticate                ConfirmedServiceChoice = 24
	ServiceRequestKey                  ConfirmedServiceChoice = 25
	ServiceReadRange                   ConfirmedServiceChoice = 26
	ServiceLifeSafetyOperation         ConfirmedServiceChoice = 27
	ServiceSubscribeCOVProperty        ConfirmedServiceChoice = 28
	ServiceGetEventInformation         ConfirmedServiceChoice = 29
	ServiceSubscribeCOVPropertyMultiple ConfirmedServiceChoice = 30
	ServiceConfirmedCOVNotificationMultiple ConfirmedServiceChoice = 31
	ServiceConfirmedAuditNotification  ConfirmedServiceChoice = 32
	ServiceAuditLogQuery               ConfirmedServiceChoice = 33
)

func (s ConfirmedServiceChoice) String() string {
	if name, ok := confirmedServiceNames[s]; ok {
		return name
	}
	return fmt.Sprintf("confirmed-service(%d)", s)
}

var confirmedServiceNames = map[ConfirmedServiceChoice]string{
	ServiceAcknowledgeAlarm:                 "acknowledge-alarm",
	ServiceConfirmedCOVNotification:         "confirmed-cov-notification",
	ServiceConfirmedEventNotification:       "confirmed-event-notification",
	ServiceGetAlarmSummary:                  "get-alarm-summary",
	ServiceGetEnrollmentSummary:             "get-enrollment-summary",
	ServiceSubscribeCOV:                     "subscribe-cov",
	ServiceAtomicReadFile:                   "atomic-read-file",
	ServiceAtomicWriteFile:                  "atomic-write-file",
	ServiceAddListElement:                   "add-list-element",
	ServiceRemoveListElement:                "remove-list-element",
	ServiceCreateObject:                     "create-object",
	ServiceDeleteObject:                     "delete-object",
	ServiceReadProperty:                     "read-property",
	ServiceReadPropertyConditional:          "read-property-conditional",
	ServiceReadPropertyMultiple:             "read-property-multiple",
	ServiceWriteProperty:                    "write-property",
	ServiceWritePropertyMultiple:            "write-property-multiple",
	ServiceDeviceCommunicationControl:       "device-communication-control",
	ServiceConfirmedPrivateTransfer:         "confirmed-private-transfer",
	ServiceConfirmedTextMessage:             "confirmed-text-message",
	ServiceReinitializeDevice:               "reinitialize-device",
	ServiceVTOpen:                           "vt-open",
	ServiceVTClose:                          "vt-close",
	ServiceVTData:                           "vt-data",
	ServiceAuthenticate:                     "authenticate",
	ServiceRequestKey:                       "request-key",
	ServiceReadRange:                        "read-range",
	ServiceLifeSafetyOperation:              "life-safety-operation",
	ServiceSubscribeCOVProperty:             "subscribe-cov-property",
	ServiceGetEventInformation:              "get-event-information",
	ServiceSubscribeCOVPropertyMultiple:     "subscribe-cov-property-multiple",
	ServiceConfirmedCOVNotificationMultiple: "confirmed-cov-notification-multiple",
	ServiceConfirmedAuditNotification:       "confirmed-audit-notification",
	ServiceAuditLogQuery:                    "audit-log-query",
}

// UnconfirmedServiceChoice identifies an unconfirmed service request.
type UnconfirmedServiceChoice uint8

const (
	ServiceIAm                          UnconfirmedServiceChoice = 0
	ServiceIHave                        UnconfirmedServiceChoice = 1
	ServiceUnconfirmedCOVNotification   UnconfirmedServiceChoice = 2
	ServiceUnconfirmedEventNotification UnconfirmedServiceChoice = 3
	ServiceUnconfirmedPrivateTransfer   UnconfirmedServiceChoice = 4
	ServiceUnconfirmedTextMessage       UnconfirmedServiceChoice = 5
	ServiceTimeSynchronization          UnconfirmedServiceChoice = 6
	ServiceWhoHas                       UnconfirmedServiceChoice = 7
	ServiceWhoIs                        UnconfirmedServiceChoice = 8
	ServiceUTCTimeSynchronization       UnconfirmedServiceChoice = 9
	ServiceWriteGroup                   UnconfirmedServiceChoice = 10
	ServiceUnconfirmedCOVNotificationMultiple UnconfirmedServiceChoice = 11
	ServiceUnconfirmedAuditNotification UnconfirmedServiceChoice = 12
	ServiceWhoAmI                       UnconfirmedServiceChoice = 13
	ServiceYouAre                       UnconfirmedServiceChoice = 14
)

func (s UnconfirmedServiceChoice) String() string {
	names := map[UnconfirmedServiceChoice]string{
		ServiceIAm:                          "i-am",
		ServiceIHave:                        "i-have",
		ServiceUnconfirmedCOVNotification:   "unconfirmed-cov-notification",
		ServiceUnconfirmedEventNotification: "unconfirmed-event-notification",
		ServiceUnconfirmedPrivateTransfer:   "unconfirmed-private-transfer",
		ServiceUnconfirmedTextMessage:       "unconfirmed-text-message",
		ServiceTimeSynchronization:          "time-synchronization",
		ServiceWhoHas:                       "who-has",
		ServiceWhoIs:                        "who-is",
		ServiceUTCTimeSynchronization:       "utc-time-synchronization",
		ServiceWriteGroup:                   "write-group",
	}
	if name, ok := names[s]; ok {
		return name
	}
	return fmt.Sprintf("unconfirmed-service(%d)", s)
}

// ObjectType identifies a BACnet object class.
type ObjectType uint16

const (
	ObjectTypeAnalogInput          ObjectType = 0
	ObjectTypeAnalogOutput         ObjectType = 1
	ObjectTypeAnalogValue          ObjectType = 2
	ObjectTypeBinaryInput          ObjectType = 3
	ObjectTypeBinaryOutput         ObjectType = 4
	ObjectTypeBinaryValue          ObjectType = 5
	ObjectTypeCalendar             ObjectType = 6
	ObjectTypeCommand              ObjectType = 7
	ObjectTypeDevice               ObjectType = 8
	ObjectTypeEventEnrollment      ObjectType = 9
	ObjectTypeFile                 ObjectType = 10
	ObjectTypeGroup                ObjectType = 11
	ObjectTypeLoop                 ObjectType = 12
	ObjectTypeMultiStateInput      ObjectType = 13
	ObjectTypeMultiStateOutput     ObjectType = 14
	ObjectTypeNotificationClass    ObjectType = 15
	ObjectTypeProgram              ObjectType = 16
	ObjectTypeSchedule             ObjectType = 17
	ObjectTypeAveraging            ObjectType = 18
	ObjectTypeMultiStateValue      ObjectType = 19
	ObjectTypeTrendLog             ObjectType = 20
	ObjectTypeLifeSafetyPoint      ObjectType = 21
	ObjectTypeLifeSafetyZone       ObjectType = 22
	ObjectTypeAccumulator          ObjectType = 23
	ObjectTypePulseConverter       ObjectType = 24
	ObjectTypeEventLog             ObjectType = 25
	ObjectTypeGlobalGroup          ObjectType = 26
	ObjectTypeTrendLogMultiple     ObjectType = 27
	ObjectTypeLoadControl          ObjectType = 28
	ObjectTypeStructuredView       ObjectType = 29
	ObjectTypeAccessDoor           ObjectType = 30
	ObjectTypeTimer                ObjectType = 31
	ObjectTypeAccessCredential     ObjectType = 32
	ObjectTypeAccessPoint          ObjectType = 33
	ObjectTypeAccessRights         ObjectType = 34
	ObjectTypeAccessUser           ObjectType = 35
	ObjectTypeAccessZone           ObjectType = 36
	ObjectTypeCredentialDataInput  ObjectType = 37
	ObjectTypeNetworkSecurity      ObjectType = 38
	ObjectTypeBitStringValue       ObjectType = 39
	ObjectTypeCharacterStringValue ObjectType = 40
	ObjectTypeDatePatternValue     ObjectType = 41
	ObjectTypeDateValue            ObjectType = 42
	ObjectTypeDateTimePatternValue ObjectType = 43
	ObjectTypeDateTimeValue        ObjectType = 44
	ObjectTypeIntegerValue         ObjectType = 45
	ObjectTypeLargeAnalogValue     ObjectType = 46
	ObjectTypeOctetStringValue     ObjectType = 47
	ObjectTypePositiveIntegerValue ObjectType = 48
	ObjectTypeTimePatternValue     ObjectType = 49
	ObjectTypeTimeValue            ObjectType = 50
	ObjectTypeNotificationForwarder ObjectType = 51
	ObjectTypeAlertEnrollment      ObjectType = 52
	ObjectTypeChannel              ObjectType = 53
	ObjectTypeLightingOutput       ObjectType = 54
	ObjectTypeBinaryLightingOutput ObjectType = 55
	ObjectTypeNetworkPort          ObjectType = 56
	ObjectTypeElevatorGroup        ObjectType = 57
	ObjectTypeEscalator            ObjectType = 58
	ObjectTypeLift                 ObjectType = 59
	ObjectTypeStaging              ObjectType = 60
	ObjectTypeAuditLog             ObjectType = 61
	ObjectTypeAuditReporter        ObjectType = 62
)

var objectTypeNames = map[ObjectType]string{
	ObjectTypeAnalogInput:          "analog-input",
	ObjectTypeAnalogOutput:         "analog-output",
	ObjectTypeAnalogValue:          "analog-value",
	ObjectTypeBinaryInput:          "binary-input",
	ObjectTypeBinaryOutput:         "binary-output",
	ObjectTypeBinaryValue:          "binary-value",
	ObjectTypeCalendar:             "calendar",
	ObjectTypeCommand:              "command",
	ObjectTypeDevice:               "device",
	ObjectTypeEventEnrollment:      "event-enrollment",
	ObjectTypeFile:                 "file",
	ObjectTypeGroup:                "group",
	ObjectTypeLoop:                 "loop",
	ObjectTypeMultiStateInput:      "multi-state-input",
	ObjectTypeMultiStateOutput:     "multi-state-output",
	ObjectTypeNotificationClass:    "notification-class",
	ObjectTypeProgram:              "program",
	ObjectTypeSchedule:             "schedule",
	ObjectTypeAveraging:            "averaging",
	ObjectTypeMultiStateValue:      "multi-state-value",
	ObjectTypeTrendLog:             "trend-log",
	ObjectTypeLifeSafetyPoint:      "life-safety-point",
	ObjectTypeLifeSafetyZone:       "life-safety-zone",
	ObjectTypeAccumulator:          "accumulator",
	ObjectTypePulseConverter:       "pulse-converter",
	ObjectTypeEventLog:             "event-log",
	ObjectTypeGlobalGroup:          "global-group",
	ObjectTypeTrendLogMultiple:     "trend-log-multiple",
	ObjectTypeLoadControl:          "load-control",
	ObjectTypeStructuredView:       "structured-view",
	ObjectTypeAccessDoor:           "access-door",
	ObjectTypeTimer:                "timer",
	ObjectTypeAccessCredential:     "access-credential",
	ObjectTypeAccessPoint:          "access-point",
	ObjectTypeAccessRights:         "access-rights",
	ObjectTypeAccessUser:           "access-user",
	ObjectTypeAccessZone:           "access-zone",
	ObjectTypeCredentialDataInput:  "credential-data-input",
	ObjectTypeNetworkSecurity:      "network-security",
	ObjectTypeBitStringValue:       "bitstring-value",
	ObjectTypeCharacterStringValue: "characterstring-value",
	ObjectTypeDatePatternValue:     "date-pattern-value",
	ObjectTypeDateValue:            "date-value",
	ObjectTypeDateTimePatternValue: "datetime-pattern-value",
	ObjectTypeDateTimeValue:        "datetime-value",
	ObjectTypeIntegerValue:         "integer-value",
	ObjectTypeLargeAnalogValue:     "large-analog-value",
	ObjectTypeOctetStringValue:     "octetstring-value",
	ObjectTypePositiveIntegerValue: "positive-integer-value",
	ObjectTypeTimePatternValue:     "time-pattern-value",
	ObjectTypeTimeValue:            "time-value",
	ObjectTypeNotificationForwarder: "notification-forwarder",
	ObjectTypeAlertEnrollment:      "alert-enrollment",
	ObjectTypeChannel:              "channel",
	ObjectTypeLightingOutput:       "lighting-output",
	ObjectTypeBinaryLightingOutput: "binary-lighting-output",
	ObjectTypeNetworkPort:          "network-port",
	ObjectTypeElevatorGroup:        "elevator-group",
	ObjectTypeEscalator:            "escalator",
	ObjectTypeLift:                 "lift",
	ObjectTypeStaging:              "staging",
	ObjectTypeAuditLog:             "audit-log",
	ObjectTypeAuditReporter:        "audit-reporter",
}

func (o ObjectType) String() string {
	if name, ok := objectTypeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("vendor-specific(%d)", o)
}

var objectTypeAbbrev = map[string]ObjectType{
	"ai": ObjectTypeAnalogInput, "ao": ObjectTypeAnalogOutput, "av": ObjectTypeAnalogValue,
	"bi": ObjectTypeBinaryInput, "bo": ObjectTypeBinaryOutput, "bv": ObjectTypeBinaryValue,
	"dev": ObjectTypeDevice, "msi": ObjectTypeMultiStateInput, "mso": ObjectTypeMultiStateOutput,
	"msv": ObjectTypeMultiStateValue, "nc": ObjectTypeNotificationClass, "sch": ObjectTypeSchedule,
	"tl": ObjectTypeTrendLog, "cal": ObjectTypeCalendar, "prg": ObjectTypeProgram,
	"ee": ObjectTypeEventEnrollment, "lsp": ObjectTypeLifeSafetyPoint, "lsz": ObjectTypeLifeSafetyZone,
	"lc": ObjectTypeLoadControl, "sv": ObjectTypeStructuredView, "chan": ObjectTypeChannel,
	"lo": ObjectTypeLightingOutput,
}

// ParseObjectType parses a canonical hyphenated name or an abbreviation.
func ParseObjectType(s string) (ObjectType, bool) {
	if t, ok := objectTypeAbbrev[s]; ok {
		return t, true
	}
	for t, name := range objectTypeNames {
		if name == s {
			return t, true
		}
	}
	return 0, false
}

// ObjectIdentifierInstanceWildcard is used when querying for "this device".
const ObjectIdentifierInstanceWildcard = 0x3FFFFF

// ObjectIdentifier is a BACnet object identifier: 10-bit type, 22-bit instance.
type ObjectIdentifier struct {
	Type     ObjectType
	Instance uint32
}

// NewObjectIdentifier constructs an ObjectIdentifier.
func NewObjectIdentifier(objectType ObjectType, instance uint32) ObjectIdentifier {
	return ObjectIdentifier{Type: objectType, Instance: instance & 0x3FFFFF}
}

// Encode packs the identifier into its 32-bit wire representation.
func (o ObjectIdentifier) Encode() uint32 {
	return (uint32(o.Type) << 22) | (o.Instance & 0x3FFFFF)
}

// DecodeObjectIdentifier unpacks a 32-bit wire value into an ObjectIdentifier.
func DecodeObjectIdentifier(value uint32) ObjectIdentifier {
	return ObjectIdentifier{
		Type:     ObjectType((value >> 22) & 0x3FF),
		Instance: value & 0x3FFFFF,
	}
}

func (o ObjectIdentifier) String() string {
	return fmt.Sprintf("%s,%d", o.Type.String(), o.Instance)
}

// ParseObjectIdentifier parses the textual form "<type>,<instance>" (§6).
func ParseObjectIdentifier(s string) (ObjectIdentifier, error) {
	var typePart, instPart string
	for i, r := range s {
		if r == ',' {
			typePart, instPart = s[:i], s[i+1:]
			break
		}
	}
	if typePart == "" || instPart == "" {
		return ObjectIdentifier{}, fmt.Errorf("bacstack: malformed object identifier %q", s)
	}
	t, ok := ParseObjectType(typePart)
	if !ok {
		return ObjectIdentifier{}, fmt.Errorf("bacstack: unknown object type %q", typePart)
	}
	var instance uint32
	if _, err := fmt.Sscanf(instPart, "%d", &instance); err != nil {
		return ObjectIdentifier{}, fmt.Errorf("bacstack: malformed instance in %q: %w", s, err)
	}
	return NewObjectIdentifier(t, instance), nil
}

// PropertyIdentifier identifies a BACnet object property.
type PropertyIdentifier uint32

const (
	PropertyAckedTransitions            PropertyIdentifier = 0
	PropertyAckRequired                 PropertyIdentifier = 1
	PropertyAction                      PropertyIdentifier = 2
	PropertyActionText                  PropertyIdentifier = 3
	PropertyActiveText                  PropertyIdentifier = 4
	PropertyAlarmValue                  PropertyIdentifier = 6
	PropertyAlarmValues                 PropertyIdentifier = 7
	PropertyAll                         PropertyIdentifier = 8
	PropertyAllWritesSuccessful         PropertyIdentifier = 9
	PropertyApduTimeout                 PropertyIdentifier = 11
	PropertyBias                        PropertyIdentifier = 14
	PropertyChangeOfStateCount          PropertyIdentifier = 15
	PropertyChangeOfStateTime           PropertyIdentifier = 16
	PropertyNotificationClass           PropertyIdentifier = 17
	PropertyCOVIncrement                PropertyIdentifier = 22
	PropertyDateList                    PropertyIdentifier = 23
	PropertyDeadband                    PropertyIdentifier = 25
	PropertyDescription                 PropertyIdentifier = 28
	PropertyDeviceType                  PropertyIdentifier = 31
	PropertyEffectivePeriod             PropertyIdentifier = 32
	PropertyElapsedActiveTime           PropertyIdentifier = 33
	PropertyErrorLimit                  PropertyIdentifier = 34
	PropertyEventEnable                 PropertyIdentifier = 35
	PropertyEventState                  PropertyIdentifier = 36
	PropertyEventType                   PropertyIdentifier = 37
	PropertyExceptionSchedule           PropertyIdentifier = 38
	PropertyFaultValues                 PropertyIdentifier = 39
	PropertyFeedbackValue               PropertyIdentifier = 40
	PropertyFileAccessMethod            PropertyIdentifier = 41
	PropertyFileSize                    PropertyIdentifier = 42
	PropertyFirmwareRevision            PropertyIdentifier = 44
	PropertyHighLimit                   PropertyIdentifier = 45
	PropertyInactiveText                PropertyIdentifier = 46
	PropertyLimitEnable                 PropertyIdentifier = 52
	PropertyListOfGroupMembers          PropertyIdentifier = 53
	PropertyLocalDate                   PropertyIdentifier = 56
	PropertyLocalTime                   PropertyIdentifier = 57
	PropertyLocation                    PropertyIdentifier = 58
	PropertyLowLimit                    PropertyIdentifier = 59
	PropertyMaxApduLengthAccepted       PropertyIdentifier = 62
	PropertyMaxPresValue                PropertyIdentifier = 65
	PropertyMinPresValue                PropertyIdentifier = 69
	PropertyModelName                   PropertyIdentifier = 70
	PropertyNotifyType                  PropertyIdentifier = 72
	PropertyNumberOfApduRetries         PropertyIdentifier = 73
	PropertyNumberOfStates              PropertyIdentifier = 74
	PropertyObjectIdentifier            PropertyIdentifier = 75
	PropertyObjectList                  PropertyIdentifier = 76
	PropertyObjectName                  PropertyIdentifier = 77
	PropertyObjectType                  PropertyIdentifier = 79
	PropertyOptional                    PropertyIdentifier = 80
	PropertyOutOfService                PropertyIdentifier = 81
	PropertyEventParameters             PropertyIdentifier = 83
	PropertyPolarity                    PropertyIdentifier = 84
	PropertyPresentValue                PropertyIdentifier = 85
	PropertyPriority                    PropertyIdentifier = 86
	PropertyPriorityArray               PropertyIdentifier = 87
	PropertyProcessIdentifier           PropertyIdentifier = 89
	PropertyProtocolObjectTypesSupported PropertyIdentifier = 96
	PropertyProtocolServicesSupported   PropertyIdentifier = 97
	PropertyProtocolVersion             PropertyIdentifier = 98
	PropertyReadOnly                    PropertyIdentifier = 99
	PropertyRecipientList               PropertyIdentifier = 102
	PropertyReliability                 PropertyIdentifier = 103
	PropertyRelinquishDefault           PropertyIdentifier = 104
	PropertyRequired                    PropertyIdentifier = 105
	PropertyResolution                  PropertyIdentifier = 106
	PropertySegmentationSupported       PropertyIdentifier = 107
	PropertySetpoint                    PropertyIdentifier = 108
	PropertyStateText                   PropertyIdentifier = 110
	PropertyStatusFlags                 PropertyIdentifier = 111
	PropertySystemStatus                PropertyIdentifier = 112
	PropertyTimeDelay                   PropertyIdentifier = 113
	PropertyUnits                       PropertyIdentifier = 117
	PropertyUpdateInterval              PropertyIdentifier = 118
	PropertyVendorIdentifier            PropertyIdentifier = 120
	PropertyVendorName                  PropertyIdentifier = 121
	PropertyWeeklySchedule               PropertyIdentifier = 123
	PropertyEventTimeStamps             PropertyIdentifier = 130
	PropertyProtocolRevision            PropertyIdentifier = 139
	PropertyNotificationThreshold       PropertyIdentifier = 137
	PropertyRecordCount                 PropertyIdentifier = 141
	PropertyTotalRecordCount            PropertyIdentifier = 145
	PropertyActiveCOVSubscriptions      PropertyIdentifier = 152
	PropertyDatabaseRevision            PropertyIdentifier = 155
	PropertyMaintenanceRequired         PropertyIdentifier = 158
	PropertyTimeDelayNormal             PropertyIdentifier = 173
	PropertyReliabilityEvaluationInhibit PropertyIdentifier = 224
	PropertyEventAlgorithmInhibitRef    PropertyIdentifier = 191
	PropertyEventAlgorithmInhibit       PropertyIdentifier = 196
	PropertyEventDetectionEnable        PropertyIdentifier = 353
	PropertySubordinateList             PropertyIdentifier = 211
	PropertyDefaultSubordinateRelationship PropertyIdentifier = 336
	PropertyLightingCommand             PropertyIdentifier = 222
	PropertyMemberOf                    PropertyIdentifier = 159
	PropertyTrackingValue               PropertyIdentifier = 164
	PropertyApplicationSoftwareVersion  PropertyIdentifier = 12
	PropertyArchive                     PropertyIdentifier = 19
	PropertyLogBuffer                   PropertyIdentifier = 131
	PropertyEnable                      PropertyIdentifier = 133
	PropertyLogInterval                 PropertyIdentifier = 134
	PropertyBackupAndRestoreState       PropertyIdentifier = 142
	PropertyLoggingType                 PropertyIdentifier = 197
	PropertyBufferSize                  PropertyIdentifier = 418
)

func (p PropertyIdentifier) String() string {
	if name, ok := propertyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("property(%d)", p)
}

var propertyNames = map[PropertyIdentifier]string{
	PropertyObjectIdentifier:      "object-identifier",
	PropertyObjectName:            "object-name",
	PropertyObjectType:            "object-type",
	PropertyPresentValue:          "present-value",
	PropertyDescription:           "description",
	PropertyDeviceType:            "device-type",
	PropertyStatusFlags:           "status-flags",
	PropertyEventState:            "event-state",
	PropertyReliability:           "reliability",
	PropertyOutOfService:          "out-of-service",
	PropertyUnits:                 "units",
	PropertyPriorityArray:         "priority-array",
	PropertyRelinquishDefault:     "relinquish-default",
	PropertyCOVIncrement:          "cov-increment",
	PropertyHighLimit:             "high-limit",
	PropertyLowLimit:              "low-limit",
	PropertyDeadband:              "deadband",
	PropertyVendorName:            "vendor-name",
	PropertyVendorIdentifier:      "vendor-identifier",
	PropertyModelName:             "model-name",
	PropertyFirmwareRevision:      "firmware-revision",
	PropertyProtocolVersion:       "protocol-version",
	PropertyProtocolRevision:      "protocol-revision",
	PropertySystemStatus:          "system-status",
	PropertyMaxApduLengthAccepted: "max-apdu-length-accepted",
	PropertySegmentationSupported: "segmentation-supported",
	PropertyObjectList:            "object-list",
	PropertyDatabaseRevision:      "database-revision",
	PropertyAll:                   "all",
	PropertyRequired:              "required",
	PropertyOptional:              "optional",
	PropertyNotificationClass:     "notification-class",
	PropertyEventEnable:           "event-enable",
	PropertyEventType:             "event-type",
	PropertyTimeDelay:             "time-delay",
	PropertyTimeDelayNormal:       "time-delay-normal",
	PropertyNotifyType:            "notify-type",
	PropertyRecipientList:         "recipient-list",
	PropertyEventParameters:       "event-parameters",
	PropertyEventTimeStamps:       "event-time-stamps",
	PropertyAckedTransitions:      "acked-transitions",
	PropertyProcessIdentifier:     "process-identifier",
	PropertyNumberOfStates:        "number-of-states",
	PropertyStateText:             "state-text",
	PropertyActiveText:            "active-text",
	PropertyInactiveText:          "inactive-text",
	PropertyPriority:              "priority",
	PropertyReliabilityEvaluationInhibit: "reliability-evaluation-inhibit",
	PropertyEventAlgorithmInhibit: "event-algorithm-inhibit",
}

var propertyAbbrev = map[string]PropertyIdentifier{
	"oid": PropertyObjectIdentifier, "name": PropertyObjectName, "type": PropertyObjectType,
	"pv": PropertyPresentValue, "desc": PropertyDescription, "sf": PropertyStatusFlags,
	"oos": PropertyOutOfService, "pa": PropertyPriorityArray, "rd": PropertyRelinquishDefault,
}

// ParsePropertyIdentifier parses a canonical hyphenated name or abbreviation.
func ParsePropertyIdentifier(s string) (PropertyIdentifier, bool) {
	if p, ok := propertyAbbrev[s]; ok {
		return p, true
	}
	for p, name := range propertyNames {
		if name == s {
			return p, true
		}
	}
	return 0, false
}

// EventState is the intrinsic/algorithmic event state of an object.
type EventState uint8

const (
	EventStateNormal          EventState = 0
	EventStateFault           EventState = 1
	EventStateOffnormal       EventState = 2
	EventStateHighLimit       EventState = 3
	EventStateLowLimit        EventState = 4
	EventStateLifeSafetyAlarm EventState = 5
)

func (e EventState) String() string {
	names := map[EventState]string{
		EventStateNormal: "normal", EventStateFault: "fault", EventStateOffnormal: "offnormal",
		EventStateHighLimit: "high-limit", EventStateLowLimit: "low-limit",
		EventStateLifeSafetyAlarm: "life-safety-alarm",
	}
	if name, ok := names[e]; ok {
		return name
	}
	return fmt.Sprintf("event-state(%d)", e)
}

// EventType selects which algorithm the event engine runs for an object.
type EventType uint8

const (
	EventTypeChangeOfBitstring       EventType = 0
	EventTypeChangeOfState           EventType = 1
	EventTypeChangeOfValue           EventType = 2
	EventTypeCommandFailure          EventType = 3
	EventTypeFloatingLimit           EventType = 4
	EventTypeOutOfRange              EventType = 5
	EventTypeChangeOfLifeSafety      EventType = 8
	EventTypeExtended                EventType = 9
	EventTypeBufferReady             EventType = 10
	EventTypeUnsignedRange           EventType = 11
	EventTypeAccessEvent             EventType = 13
	EventTypeDoubleOutOfRange        EventType = 14
	EventTypeSignedOutOfRange        EventType = 15
	EventTypeUnsignedOutOfRange      EventType = 16
	EventTypeChangeOfCharacterstring EventType = 17
	EventTypeChangeOfStatusFlags     EventType = 18
	EventTypeChangeOfReliability     EventType = 19
	EventTypeNone                    EventType = 20
	EventTypeChangeOfDiscreteValue   EventType = 21
	EventTypeChangeOfTimer           EventType = 22
)

func (e EventType) String() string {
	names := map[EventType]string{
		EventTypeChangeOfBitstring: "change-of-bitstring", EventTypeChangeOfState: "change-of-state",
		EventTypeChangeOfValue: "change-of-value", EventTypeCommandFailure: "command-failure",
		EventTypeFloatingLimit: "floating-limit", EventTypeOutOfRange: "out-of-range",
		EventTypeChangeOfLifeSafety: "change-of-life-safety", EventTypeExtended: "extended",
		EventTypeBufferReady: "buffer-ready", EventTypeUnsignedRange: "unsigned-range",
		EventTypeAccessEvent: "access-event", EventTypeDoubleOutOfRange: "double-out-of-range",
		EventTypeSignedOutOfRange: "signed-out-of-range", EventTypeUnsignedOutOfRange: "unsigned-out-of-range",
		EventTypeChangeOfCharacterstring: "change-of-characterstring",
		EventTypeChangeOfStatusFlags:     "change-of-status-flags",
		EventTypeChangeOfReliability:     "change-of-reliability",
		EventTypeNone:                    "none",
		EventTypeChangeOfDiscreteValue:   "change-of-discrete-value",
		EventTypeChangeOfTimer:           "change-of-timer",
	}
	if name, ok := names[e]; ok {
		return name
	}
	return fmt.Sprintf("event-type(%d)", e)
}

// NotifyType distinguishes alarm notifications from pure event notifications.
type NotifyType uint8

const (
	NotifyTypeAlarm      NotifyType = 0
	NotifyTypeEvent      NotifyType = 1
	NotifyTypeAckNotification NotifyType = 2
)

// Reliability reports the trustworthiness of an object's present-value.
type Reliability uint8

const (
	ReliabilityNoFaultDetected      Reliability = 0
	ReliabilityNoSensor             Reliability = 1
	ReliabilityOverRange            Reliability = 2
	ReliabilityUnderRange           Reliability = 3
	ReliabilityOpenLoop             Reliability = 4
	ReliabilityShortedLoop          Reliability = 5
	ReliabilityNoOutput             Reliability = 6
	ReliabilityUnreliableOther      Reliability = 7
	ReliabilityProcessError         Reliability = 8
	ReliabilityMultiStateFault      Reliability = 9
	ReliabilityConfigurationError   Reliability = 10
	ReliabilityCommunicationFailure Reliability = 12
	ReliabilityMemberFault          Reliability = 13
	ReliabilityMonitoredObjectFault Reliability = 14
	ReliabilityTripped              Reliability = 15
)

func (r Reliability) String() string {
	names := map[Reliability]string{
		ReliabilityNoFaultDetected: "no-fault-detected", ReliabilityNoSensor: "no-sensor",
		ReliabilityOverRange: "over-range", ReliabilityUnderRange: "under-range",
		ReliabilityOpenLoop: "open-loop", ReliabilityShortedLoop: "shorted-loop",
		ReliabilityNoOutput: "no-output", ReliabilityUnreliableOther: "unreliable-other",
		ReliabilityProcessError: "process-error", ReliabilityMultiStateFault: "multi-state-fault",
		ReliabilityConfigurationError: "configuration-error", ReliabilityCommunicationFailure: "communication-failure",
		ReliabilityMemberFault: "member-fault", ReliabilityMonitoredObjectFault: "monitored-object-fault",
		ReliabilityTripped: "tripped",
	}
	if name, ok := names[r]; ok {
		return name
	}
	return fmt.Sprintf("reliability(%d)", r)
}

// Segmentation describes a device's segmentation capability.
type Segmentation uint8

const (
	SegmentationBoth     Segmentation = 0
	SegmentationTransmit Segmentation = 1
	SegmentationReceive  Segmentation = 2
	SegmentationNone     Segmentation = 3
)

func (s Segmentation) String() string {
	names := map[Segmentation]string{
		SegmentationBoth: "segmented-both", SegmentationTransmit: "segmented-transmit",
		SegmentationReceive: "segmented-receive", SegmentationNone: "no-segmentation",
	}
	if name, ok := names[s]; ok {
		return name
	}
	return fmt.Sprintf("segmentation(%d)", s)
}

// DeviceStatus is the Device object's system-status property.
type DeviceStatus uint8

const (
	DeviceStatusOperational         DeviceStatus = 0
	DeviceStatusOperationalReadOnly DeviceStatus = 1
	DeviceStatusDownloadRequired    DeviceStatus = 2
	DeviceStatusDownloadInProgress  DeviceStatus = 3
	DeviceStatusNonOperational      DeviceStatus = 4
	DeviceStatusBackupInProgress    DeviceStatus = 5
)

// StatusFlags is the four-bit BACnet status-flags bitstring.
type StatusFlags struct {
	InAlarm      bool
	Fault        bool
	Overridden   bool
	OutOfService bool
}

func (s StatusFlags) String() string {
	return fmt.Sprintf("{in-alarm:%v fault:%v overridden:%v out-of-service:%v}",
		s.InAlarm, s.Fault, s.Overridden, s.OutOfService)
}

// EngineeringUnits identifies the physical unit of a numeric property.
type EngineeringUnits uint16

const (
	UnitsNoUnits           EngineeringUnits = 95
	UnitsPercent           EngineeringUnits = 98
	UnitsDegreesCelsius    EngineeringUnits = 62
	UnitsDegreesFahrenheit EngineeringUnits = 64
	UnitsVolts             EngineeringUnits = 5
	UnitsAmperes           EngineeringUnits = 3
	UnitsWatts             EngineeringUnits = 41
	UnitsKilowatts         EngineeringUnits = 42
	UnitsPascals           EngineeringUnits = 47
	UnitsLitersPerSecond   EngineeringUnits = 87
	UnitsPartsPerMillion   EngineeringUnits = 96
	UnitsCubicMeters       EngineeringUnits = 80
)
