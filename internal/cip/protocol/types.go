package protocol

// CIP service codes, general status codes and elementary data types.

import "fmt"

// ServiceCode is a CIP service code.
type ServiceCode uint8

// Connection manager object services.
const (
	ServiceForwardClose         ServiceCode = 0x4E
	ServiceUnconnectedSend      ServiceCode = 0x52
	ServiceForwardOpen          ServiceCode = 0x54
	ServiceGetConnectionData    ServiceCode = 0x56
	ServiceSearchConnectionData ServiceCode = 0x57
	ServiceExForwardOpen        ServiceCode = 0x59
	ServiceGetConnectionOwner   ServiceCode = 0x5A
)

// Symbolic tag services.
const (
	ServiceReadTag  ServiceCode = 0x4C
	ServiceWriteTag ServiceCode = 0x4D

	// ServiceWriteTagReply is what a target answers to a routed write tag.
	ServiceWriteTagReply ServiceCode = 0xCD
)

// Connection manager object addressing.
const (
	ClassConnectionManager uint8 = 0x06
	InstanceOne            uint8 = 0x01
)

func (s ServiceCode) String() string {
	switch s {
	case ServiceForwardClose:
		return "Forward_Close"
	case ServiceUnconnectedSend:
		return "Unconnected_Send"
	case ServiceForwardOpen:
		return "Forward_Open"
	case ServiceGetConnectionData:
		return "Get_Connection_Data"
	case ServiceSearchConnectionData:
		return "Search_Connection_Data"
	case ServiceExForwardOpen:
		return "Ex_Forward_Open"
	case ServiceGetConnectionOwner:
		return "Get_Connection_Owner"
	case ServiceReadTag:
		return "Read_Tag"
	case ServiceWriteTag:
		return "Write_Tag"
	case ServiceWriteTagReply:
		return "Write_Tag_Reply"
	default:
		return fmt.Sprintf("Service(0x%02X)", uint8(s))
	}
}

// GeneralStatus is the general status byte of a CIP reply.
type GeneralStatus uint8

const (
	StatusSuccess                        GeneralStatus = 0x00
	StatusConnectionFailure              GeneralStatus = 0x01
	StatusResourceUnavailable            GeneralStatus = 0x02
	StatusInvalidParameterValue          GeneralStatus = 0x03
	StatusPathSegmentError               GeneralStatus = 0x04
	StatusPathDestinationUnknown         GeneralStatus = 0x05
	StatusPartialTransfer                GeneralStatus = 0x06
	StatusConnectionLost                 GeneralStatus = 0x07
	StatusServiceNotSupported            GeneralStatus = 0x08
	StatusInvalidAttributeValue          GeneralStatus = 0x09
	StatusAttributeListError             GeneralStatus = 0x0A
	StatusAlreadyInRequestedMode         GeneralStatus = 0x0B
	StatusObjectStateConflict            GeneralStatus = 0x0C
	StatusObjectAlreadyExists            GeneralStatus = 0x0D
	StatusAttributeNotSettable           GeneralStatus = 0x0E
	StatusPrivilegeViolation             GeneralStatus = 0x0F
	StatusDeviceStateConflict            GeneralStatus = 0x10
	StatusReplyDataTooLarge              GeneralStatus = 0x11
	StatusFragmentationOfPrimitive       GeneralStatus = 0x12
	StatusNotEnoughData                  GeneralStatus = 0x13
	StatusAttributeNotSupported          GeneralStatus = 0x14
	StatusTooMuchData                    GeneralStatus = 0x15
	StatusObjectDoesNotExist             GeneralStatus = 0x16
	StatusFragmentationNotInProgress     GeneralStatus = 0x17
	StatusNoStoredAttributeData          GeneralStatus = 0x18
	StatusStoreOperationFailure          GeneralStatus = 0x19
	StatusRoutingRequestTooLarge         GeneralStatus = 0x1A
	StatusRoutingResponseTooLarge        GeneralStatus = 0x1B
	StatusMissingAttributeListEntry      GeneralStatus = 0x1C
	StatusInvalidAttributeValueList      GeneralStatus = 0x1D
	StatusEmbeddedServiceError           GeneralStatus = 0x1E
	StatusVendorSpecificError            GeneralStatus = 0x1F
	StatusInvalidParameter               GeneralStatus = 0x20
	StatusWriteOnceAlreadyWritten        GeneralStatus = 0x21
	StatusInvalidReplyReceived           GeneralStatus = 0x22
	StatusBufferOverflow                 GeneralStatus = 0x23
	StatusMessageFormatError             GeneralStatus = 0x24
	StatusKeyFailureInPath               GeneralStatus = 0x25
	StatusPathSizeInvalid                GeneralStatus = 0x26
	StatusUnexpectedAttributeInList      GeneralStatus = 0x27
	StatusInvalidMemberID                GeneralStatus = 0x28
	StatusMemberNotSettable              GeneralStatus = 0x29
	StatusGroup2OnlyServerGeneralFailure GeneralStatus = 0x2A
)

var statusNames = map[GeneralStatus]string{
	StatusSuccess:                        "Success",
	StatusConnectionFailure:              "Connection failure",
	StatusResourceUnavailable:            "Resource unavailable",
	StatusInvalidParameterValue:          "Invalid parameter value",
	StatusPathSegmentError:               "Path segment error",
	StatusPathDestinationUnknown:         "Path destination unknown",
	StatusPartialTransfer:                "Partial transfer",
	StatusConnectionLost:                 "Connection lost",
	StatusServiceNotSupported:            "Service not supported",
	StatusInvalidAttributeValue:          "Invalid attribute value",
	StatusAttributeListError:             "Attribute list error",
	StatusAlreadyInRequestedMode:         "Already in requested mode/state",
	StatusObjectStateConflict:            "Object state conflict",
	StatusObjectAlreadyExists:            "Object already exists",
	StatusAttributeNotSettable:           "Attribute not settable",
	StatusPrivilegeViolation:             "Privilege violation",
	StatusDeviceStateConflict:            "Device state conflict",
	StatusReplyDataTooLarge:              "Reply data too large",
	StatusFragmentationOfPrimitive:       "Fragmentation of a primitive value",
	StatusNotEnoughData:                  "Not enough data",
	StatusAttributeNotSupported:          "Attribute not supported",
	StatusTooMuchData:                    "Too much data",
	StatusObjectDoesNotExist:             "Object does not exist",
	StatusFragmentationNotInProgress:     "Service fragmentation sequence not in progress",
	StatusNoStoredAttributeData:          "No stored attribute data",
	StatusStoreOperationFailure:          "Store operation failure",
	StatusRoutingRequestTooLarge:         "Routing failure, request packet too large",
	StatusRoutingResponseTooLarge:        "Routing failure, response packet too large",
	StatusMissingAttributeListEntry:      "Missing attribute list entry data",
	StatusInvalidAttributeValueList:      "Invalid attribute value list",
	StatusEmbeddedServiceError:           "Embedded service error",
	StatusVendorSpecificError:            "Vendor specific error",
	StatusInvalidParameter:               "Invalid parameter",
	StatusWriteOnceAlreadyWritten:        "Write-once value or medium already written",
	StatusInvalidReplyReceived:           "Invalid reply received",
	StatusBufferOverflow:                 "Buffer overflow",
	StatusMessageFormatError:             "Message format error",
	StatusKeyFailureInPath:               "Key failure in path",
	StatusPathSizeInvalid:                "Path size invalid",
	StatusUnexpectedAttributeInList:      "Unexpected attribute in list",
	StatusInvalidMemberID:                "Invalid member ID",
	StatusMemberNotSettable:              "Member not settable",
	StatusGroup2OnlyServerGeneralFailure: "Group 2 only server general failure",
}

func (s GeneralStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(0x%02X)", uint8(s))
}

// StatusName returns the readable name of a raw general status byte.
func StatusName(status uint8) string {
	return GeneralStatus(status).String()
}

// DataType is a CIP elementary data type code.
type DataType uint16

const (
	TypeBOOL        DataType = 0xC1
	TypeSINT        DataType = 0xC2
	TypeINT         DataType = 0xC3
	TypeDINT        DataType = 0xC4
	TypeLINT        DataType = 0xC5
	TypeUSINT       DataType = 0xC6
	TypeUINT        DataType = 0xC7
	TypeUDINT       DataType = 0xC8
	TypeULINT       DataType = 0xC9
	TypeREAL        DataType = 0xCA
	TypeLREAL       DataType = 0xCB
	TypeSTIME       DataType = 0xCC
	TypeDATE        DataType = 0xCD
	TypeTIMEOFDAY   DataType = 0xCE
	TypeDATEANDTIME DataType = 0xCF
	TypeSTRING      DataType = 0xD0
	TypeBYTE        DataType = 0xD1
	TypeWORD        DataType = 0xD2
	TypeDWORD       DataType = 0xD3
	TypeLWORD       DataType = 0xD4
	TypeSTRING2     DataType = 0xD5
	TypeFTIME       DataType = 0xD6
	TypeLTIME       DataType = 0xD7
	TypeITIME       DataType = 0xD8
	TypeSTRINGN     DataType = 0xD9
	TypeSHORTSTRING DataType = 0xDA
	TypeTIME        DataType = 0xDB
	TypeEPATH       DataType = 0xDC
	TypeENGUNIT     DataType = 0xDD
)

var dataTypeNames = map[DataType]string{
	TypeBOOL:        "BOOL",
	TypeSINT:        "SINT",
	TypeINT:         "INT",
	TypeDINT:        "DINT",
	TypeLINT:        "LINT",
	TypeUSINT:       "USINT",
	TypeUINT:        "UINT",
	TypeUDINT:       "UDINT",
	TypeULINT:       "ULINT",
	TypeREAL:        "REAL",
	TypeLREAL:       "LREAL",
	TypeSTIME:       "STIME",
	TypeDATE:        "DATE",
	TypeTIMEOFDAY:   "TIME_OF_DAY",
	TypeDATEANDTIME: "DATE_AND_TIME",
	TypeSTRING:      "STRING",
	TypeBYTE:        "BYTE",
	TypeWORD:        "WORD",
	TypeDWORD:       "DWORD",
	TypeLWORD:       "LWORD",
	TypeSTRING2:     "STRING2",
	TypeFTIME:       "FTIME",
	TypeLTIME:       "LTIME",
	TypeITIME:       "ITIME",
	TypeSTRINGN:     "STRINGN",
	TypeSHORTSTRING: "SHORT_STRING",
	TypeTIME:        "TIME",
	TypeEPATH:       "EPATH",
	TypeENGUNIT:     "ENGUNIT",
}

// Element sizes of the types that can travel in a write.
var dataTypeSizes = map[DataType]int{
	TypeSINT:   1,
	TypeUSINT:  1,
	TypeBYTE:   1,
	TypeSTRING: 1,
	TypeINT:    2,
	TypeUINT:   2,
	TypeDINT:   4,
	TypeUDINT:  4,
	TypeREAL:   4,
	TypeLINT:   8,
	TypeULINT:  8,
}

func (t DataType) String() string {
	if name, ok := dataTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("DataType(0x%04X)", uint16(t))
}

// Size returns the byte width of one element, or false when the type has no
// fixed size in this driver.
func (t DataType) Size() (int, bool) {
	n, ok := dataTypeSizes[t]
	return n, ok
}

// ParseDataType maps a type name such as "DINT" to its code.
func ParseDataType(name string) (DataType, error) {
	for t, n := range dataTypeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown data type %q", name)
}
