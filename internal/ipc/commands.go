package ipc

import (
	"fmt"
	"strconv"
	"strings"
)

// Command groups.
const (
	GroupPwr  uint8 = 0x01
	GroupCall uint8 = 0x02
	GroupSMS  uint8 = 0x04
	GroupSec  uint8 = 0x05
	GroupDisp uint8 = 0x07
	GroupNet  uint8 = 0x08
	GroupMisc uint8 = 0x0A
	GroupGPRS uint8 = 0x0D
	GroupGen  uint8 = 0x80
)

// FMT commands handled by the core.
const (
	PwrPhonePwrUp  Command = 0x0101
	PwrPhonePwrOff Command = 0x0102
	PwrPhoneReset  Command = 0x0103
	PwrBattStatus  Command = 0x0104
	PwrBattType    Command = 0x0105
	PwrBattComp    Command = 0x0106
	PwrPhoneState  Command = 0x0107
	GenPhoneRes    Command = 0x8001
)

// RFS commands. The RFS wire header carries a single command byte.
const (
	RFSNVReadItem  Command = 0x0001
	RFSNVWriteItem Command = 0x0002
)

// Power state values sent with PwrPhoneState requests.
const (
	PwrPhoneStateLPM    uint16 = 0x0001
	PwrPhoneStateNormal uint16 = 0x0202
)

// PwrReport maps a PwrPhoneState request value to the single byte the modem
// reports back in its PwrPhoneState notification.
func PwrReport(state uint16) uint8 {
	return uint8(state >> 8)
}

// GenPhoneResSuccess is the low byte of a successful GEN_PHONE_RES code.
const GenPhoneResSuccess uint8 = 0x80

var commandNames = map[Command]string{
	PwrPhonePwrUp:  "PWR_PHONE_PWR_UP",
	PwrPhonePwrOff: "PWR_PHONE_PWR_OFF",
	PwrPhoneReset:  "PWR_PHONE_RESET",
	PwrBattStatus:  "PWR_BATT_STATUS",
	PwrBattType:    "PWR_BATT_TYPE",
	PwrBattComp:    "PWR_BATT_COMP",
	PwrPhoneState:  "PWR_PHONE_STATE",
	GenPhoneRes:    "GEN_PHONE_RES",
}

// ParseCommand accepts a command name such as PWR_PHONE_STATE or a numeric
// code in any base strconv understands.
func ParseCommand(s string) (Command, error) {
	s = strings.TrimSpace(s)
	for cmd, name := range commandNames {
		if strings.EqualFold(name, s) {
			return cmd, nil
		}
	}
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("unknown command %q", s)
	}

	return Command(v), nil
}
