package sdk

import (
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
)

const (
	applinkHost    = "applinks.thornwave.com"
	legacyScheme   = "powermon"
	maxNameLength  = 32
	serialHexWidth = 16
)

// ParseURL decodes an access URL. Two forms are understood:
//
//	https://applinks.thornwave.com/?n=NAME&s=SERIAL&h=HW&c=CHANNEL&k=KEY
//	powermon://KEY@CHANNEL
//
// Serial, hardware revision, channel id and encryption key are hex. The
// second result is false for anything that does not yield a usable access
// key.
func ParseURL(raw string) (DeviceIdentifier, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DeviceIdentifier{}, false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return DeviceIdentifier{}, false
	}

	switch {
	case u.Scheme == legacyScheme:
		return parseLegacy(u)
	case (u.Scheme == "https" || u.Scheme == "http") && strings.EqualFold(u.Host, applinkHost):
		return parseApplink(u.Query())
	}
	return DeviceIdentifier{}, false
}

func parseApplink(q url.Values) (DeviceIdentifier, bool) {
	var id DeviceIdentifier
	if !decodeKey(q.Get("c"), q.Get("k"), &id.AccessKey) {
		return DeviceIdentifier{}, false
	}

	id.Name = q.Get("n")
	if len(id.Name) > maxNameLength {
		return DeviceIdentifier{}, false
	}
	if s := q.Get("s"); s != "" {
		serial, err := strconv.ParseUint(s, 16, 64)
		if err != nil {
			return DeviceIdentifier{}, false
		}
		id.Serial = serial
	}
	if h := q.Get("h"); h != "" {
		hw, err := strconv.ParseUint(h, 16, 8)
		if err != nil {
			return DeviceIdentifier{}, false
		}
		id.HardwareRevision = uint8(hw)
	}
	return id, true
}

func parseLegacy(u *url.URL) (DeviceIdentifier, bool) {
	if u.User == nil {
		return DeviceIdentifier{}, false
	}
	var id DeviceIdentifier
	if !decodeKey(u.Host, u.User.Username(), &id.AccessKey) {
		return DeviceIdentifier{}, false
	}
	id.HardwareRevision = FamilyPowermonW
	return id, true
}

func decodeKey(channel, key string, dst *AccessKey) bool {
	c, err := hex.DecodeString(channel)
	if err != nil || len(c) != ChannelIDSize {
		return false
	}
	k, err := hex.DecodeString(key)
	if err != nil || len(k) != EncryptionKeySize {
		return false
	}
	copy(dst.ChannelID[:], c)
	copy(dst.EncryptionKey[:], k)
	return !dst.IsZero()
}

// URL encodes the identifier in applink form. ParseURL(id.URL()) yields id.
func (id DeviceIdentifier) URL() string {
	q := url.Values{}
	q.Set("n", id.Name)
	q.Set("s", strconv.FormatUint(id.Serial, 16))
	q.Set("h", strconv.FormatUint(uint64(id.HardwareRevision), 16))
	q.Set("c", hex.EncodeToString(id.AccessKey.ChannelID[:]))
	q.Set("k", hex.EncodeToString(id.AccessKey.EncryptionKey[:]))
	u := url.URL{Scheme: "https", Host: applinkHost, Path: "/", RawQuery: q.Encode()}
	return u.String()
}

// SerialString formats a serial number the way the device prints it.
func SerialString(serial uint64) string {
	s := strings.ToUpper(strconv.FormatUint(serial, 16))
	if len(s) < serialHexWidth {
		s = strings.Repeat("0", serialHexWidth-len(s)) + s
	}
	return s
}
