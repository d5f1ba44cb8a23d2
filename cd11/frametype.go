package cd11

import (
	"fmt"
	"slices"
)

// FrameType is the CD-1.1 frame type tag. Its value is the wire code.
type FrameType int32

// Registered frame types.
const (
	ConnectionRequestType  FrameType = 1
	ConnectionResponseType FrameType = 2
	OptionRequestType      FrameType = 3
	OptionResponseType     FrameType = 4
	DataType               FrameType = 5
	AcknackType            FrameType = 6
	AlertType              FrameType = 7
	CommandRequestType     FrameType = 8
	CommandResponseType    FrameType = 9
	CD1EncapsulationType   FrameType = 13
	CustomResetType        FrameType = 26
)

var frameTypeNames = map[FrameType]string{
	ConnectionRequestType:  "CONNECTION_REQUEST",
	ConnectionResponseType: "CONNECTION_RESPONSE",
	OptionRequestType:      "OPTION_REQUEST",
	OptionResponseType:     "OPTION_RESPONSE",
	DataType:               "DATA",
	AcknackType:            "ACKNACK",
	AlertType:              "ALERT",
	CommandRequestType:     "COMMAND_REQUEST",
	CommandResponseType:    "COMMAND_RESPONSE",
	CD1EncapsulationType:   "CD1_ENCAPSULATION",
	CustomResetType:        "CUSTOM_RESET",
}

// FromCode resolves a wire code. Unknown codes return ErrUnknownFrameType.
func FromCode(code int32) (FrameType, error) {
	ft := FrameType(code)
	if _, ok := frameTypeNames[ft]; !ok {
		return 0, fmt.Errorf("%w: code %d (valid codes %v)", ErrUnknownFrameType, code, ValidCodes())
	}
	return ft, nil
}

// ParseFrameType resolves a frame type name such as "DATA".
func ParseFrameType(name string) (FrameType, error) {
	for ft, n := range frameTypeNames {
		if n == name {
			return ft, nil
		}
	}
	return 0, fmt.Errorf("%w: name %q (valid names %v)", ErrUnknownFrameType, name, ValidNames())
}

// Code returns the wire code.
func (t FrameType) Code() int32 { return int32(t) }

// Valid reports whether t is a registered frame type.
func (t FrameType) Valid() bool {
	_, ok := frameTypeNames[t]
	return ok
}

func (t FrameType) String() string {
	if n, ok := frameTypeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("FrameType(%d)", int32(t))
}

// ValidCodes lists registered wire codes in ascending order.
func ValidCodes() []int32 {
	codes := make([]int32, 0, len(frameTypeNames))
	for ft := range frameTypeNames {
		codes = append(codes, ft.Code())
	}
	slices.Sort(codes)
	return codes
}

// ValidNames lists registered frame type names ordered by code.
func ValidNames() []string {
	codes := ValidCodes()
	names := make([]string, len(codes))
	for i, c := range codes {
		names[i] = frameTypeNames[FrameType(c)]
	}
	return names
}
