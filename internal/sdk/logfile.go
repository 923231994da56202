package sdk

import (
	"encoding/binary"
	"math"
)

// Log decode status codes.
const (
	LogOK uint32 = iota
	LogShortHeader
	LogBadMagic
	LogUnsupportedVersion
	LogBadMode
	LogTruncated
)

// Log sampling modes stored in the file header.
const (
	LogMode1s uint8 = iota + 1
	LogMode2s
	LogMode5s
	LogMode10s
	LogMode20s
	LogMode30s
	LogMode60s
)

// Field mask bits. Fields are stored in bit order for every sample.
const (
	LogFieldV1  uint32 = 1 << 0
	LogFieldV2  uint32 = 1 << 1
	LogFieldI1  uint32 = 1 << 6
	LogFieldP1  uint32 = 1 << 8
	LogFieldT1  uint32 = 1 << 10
	LogFieldSOC uint32 = 1 << 12
	LogFieldPS  uint32 = 1 << 14
)

// LogFlagPowerFromV2 selects V2 when power is derived from V*I.
const LogFlagPowerFromV2 uint32 = 1 << 0

const (
	logHeaderSize   = 20
	logVersionWifi5 = 0x00
	logFamilyMask   = 0xF0
)

var logMagic = [4]byte{'P', 'M', 'L', 'G'}

// LogHeader precedes the samples of every log file.
type LogHeader struct {
	Version uint8
	Mode    uint8
	Time    uint32
	Mask    uint32
	Flags   uint32
}

// LogSample is one decoded data-log record.
type LogSample struct {
	Time        uint32
	Voltage1    float32
	Voltage2    float32
	Current     float32
	Power       float32
	Temperature float32
	SOC         uint8
	PowerStatus uint8
}

// SamplePeriod returns the seconds between samples for a log mode, zero for
// an unknown mode.
func SamplePeriod(mode uint8) uint32 {
	switch mode {
	case LogMode1s:
		return 1
	case LogMode2s:
		return 2
	case LogMode5s:
		return 5
	case LogMode10s:
		return 10
	case LogMode20s:
		return 20
	case LogMode30s:
		return 30
	case LogMode60s:
		return 60
	}
	return 0
}

// sampleSize is the encoded size of one sample for the given field mask.
func sampleSize(mask uint32) int {
	n := 0
	if mask&LogFieldV1 != 0 {
		n += 2
	}
	if mask&LogFieldV2 != 0 {
		n += 2
	}
	if mask&LogFieldI1 != 0 {
		n += 4
	}
	if mask&LogFieldP1 != 0 {
		n += 4
	}
	if mask&LogFieldT1 != 0 {
		n += 2
	}
	if mask&LogFieldSOC != 0 {
		n++
	}
	if mask&LogFieldPS != 0 {
		n++
	}
	return n
}

// DecodeLog decodes a complete log file. Samples decoded before a failure are
// returned alongside the non-zero status.
func DecodeLog(data []byte) (uint32, []LogSample) {
	if len(data) < logHeaderSize {
		return LogShortHeader, nil
	}
	if [4]byte(data[:4]) != logMagic {
		return LogBadMagic, nil
	}
	h := LogHeader{
		Version: data[4],
		Mode:    data[5],
		Time:    binary.LittleEndian.Uint32(data[8:]),
		Mask:    binary.LittleEndian.Uint32(data[12:]),
		Flags:   binary.LittleEndian.Uint32(data[16:]),
	}
	if h.Version&logFamilyMask != logVersionWifi5 {
		return LogUnsupportedVersion, nil
	}
	period := SamplePeriod(h.Mode)
	if period == 0 {
		return LogBadMode, nil
	}
	size := sampleSize(h.Mask)
	if size == 0 {
		return LogOK, nil
	}

	body := data[logHeaderSize:]
	samples := make([]LogSample, 0, len(body)/size)
	for i := 0; len(body) >= size; i++ {
		s := decodeSample(body[:size], h)
		s.Time = h.Time + uint32(i)*period
		samples = append(samples, s)
		body = body[size:]
	}
	if len(body) != 0 {
		return LogTruncated, samples
	}
	return LogOK, samples
}

func decodeSample(b []byte, h LogHeader) LogSample {
	var s LogSample
	off := 0
	if h.Mask&LogFieldV1 != 0 {
		s.Voltage1 = float32(binary.LittleEndian.Uint16(b[off:])) / 100
		off += 2
	}
	if h.Mask&LogFieldV2 != 0 {
		s.Voltage2 = float32(binary.LittleEndian.Uint16(b[off:])) / 100
		off += 2
	}
	if h.Mask&LogFieldI1 != 0 {
		s.Current = float32(int32(binary.LittleEndian.Uint32(b[off:]))) / 1000
		off += 4
	}
	if h.Mask&LogFieldP1 != 0 {
		s.Power = float32(int32(binary.LittleEndian.Uint32(b[off:]))) / 1000
		off += 4
	} else {
		v := s.Voltage1
		if h.Flags&LogFlagPowerFromV2 != 0 {
			v = s.Voltage2
		}
		s.Power = v * s.Current
	}
	if h.Mask&LogFieldT1 != 0 {
		s.Temperature = float32(int16(binary.LittleEndian.Uint16(b[off:]))) / 10
		off += 2
	}
	if h.Mask&LogFieldSOC != 0 {
		s.SOC = b[off]
		off++
	}
	if h.Mask&LogFieldPS != 0 {
		s.PowerStatus = b[off]
	}
	return s
}

// EncodeLog produces a log file in the layout DecodeLog reads. Sample times
// are implied by the header and ignored.
func EncodeLog(h LogHeader, samples []LogSample) []byte {
	buf := make([]byte, logHeaderSize, logHeaderSize+len(samples)*sampleSize(h.Mask))
	copy(buf, logMagic[:])
	buf[4] = h.Version
	buf[5] = h.Mode
	binary.LittleEndian.PutUint32(buf[8:], h.Time)
	binary.LittleEndian.PutUint32(buf[12:], h.Mask)
	binary.LittleEndian.PutUint32(buf[16:], h.Flags)

	for _, s := range samples {
		if h.Mask&LogFieldV1 != 0 {
			buf = binary.LittleEndian.AppendUint16(buf, uint16(math.Round(float64(s.Voltage1)*100)))
		}
		if h.Mask&LogFieldV2 != 0 {
			buf = binary.LittleEndian.AppendUint16(buf, uint16(math.Round(float64(s.Voltage2)*100)))
		}
		if h.Mask&LogFieldI1 != 0 {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(math.Round(float64(s.Current)*1000))))
		}
		if h.Mask&LogFieldP1 != 0 {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(math.Round(float64(s.Power)*1000))))
		}
		if h.Mask&LogFieldT1 != 0 {
			buf = binary.LittleEndian.AppendUint16(buf, uint16(int16(math.Round(float64(s.Temperature)*10))))
		}
		if h.Mask&LogFieldSOC != 0 {
			buf = append(buf, s.SOC)
		}
		if h.Mask&LogFieldPS != 0 {
			buf = append(buf, s.PowerStatus)
		}
	}
	return buf
}
