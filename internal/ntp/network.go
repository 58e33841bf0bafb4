package ntp

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrMalformedPacket = errors.New("malformed ntp packet")

// Timestamp is an on-the-wire 64-bit timestamp split into its seconds and
// fraction (scaled by 2^32) words.
type Timestamp struct {
	Sec  uint32
	Frac uint32
}

func (t Timestamp) Float() float64 {
	return JoinTimestamp(t.Sec, t.Frac)
}

type Query struct {
	Leap      byte    /* leap indicator */
	Version   byte    /* version number */
	Mode      Mode    /* mode */
	Stratum   byte    /* stratum */
	Poll      int8    /* poll interval */
	Precision int8    /* precision */
	Rootdelay float64 /* root delay */
	Rootdisp  float64 /* root dispersion */
	Refid     ShortEncoded
	Reftime   Timestamp /* reference time */
	Org       Timestamp /* origin timestamp */
	Rec       Timestamp /* receive timestamp */
	Xmt       Timestamp /* transmit timestamp */
}

// Response holds the fields written into a reply. Timestamps are real
// values in the NTP epoch; the origin timestamp is echoed word for word.
type Response struct {
	Leap      byte
	Version   byte
	Mode      Mode
	Stratum   byte
	Poll      int8
	Precision int8
	Rootdelay float64
	Rootdisp  float64
	Refid     ShortEncoded
	Reftime   float64
	Org       Timestamp
	Rec       float64
	Xmt       float64

	// Label names the client profile that shaped the response. It never
	// reaches the wire.
	Label string
}

type fieldsEncoded struct {
	Stratum   byte
	Poll      int8
	Precision int8
	Rootdelay ShortEncoded
	Rootdisp  ShortEncoded
	Refid     ShortEncoded
	Reftime   Timestamp
	Org       Timestamp
	Rec       Timestamp
	Xmt       Timestamp
}

func packFirstByte(leap, version byte, mode Mode) byte {
	return (leap&0b11)<<6 | (version&0b111)<<3 | byte(mode)&0b111
}

func (f *fieldsEncoded) put(b []byte) {
	b[1] = f.Stratum
	b[2] = byte(f.Poll)
	b[3] = byte(f.Precision)
	binary.BigEndian.PutUint32(b[4:], f.Rootdelay)
	binary.BigEndian.PutUint32(b[8:], f.Rootdisp)
	binary.BigEndian.PutUint32(b[12:], f.Refid)
	for i, ts := range []Timestamp{f.Reftime, f.Org, f.Rec, f.Xmt} {
		binary.BigEndian.PutUint32(b[16+i*8:], ts.Sec)
		binary.BigEndian.PutUint32(b[20+i*8:], ts.Frac)
	}
}

func timestampAt(b []byte, offset int) Timestamp {
	return Timestamp{
		Sec:  binary.BigEndian.Uint32(b[offset:]),
		Frac: binary.BigEndian.Uint32(b[offset+4:]),
	}
}

// DecodeQuery parses the fixed header of an inbound datagram. Anything past
// the first PacketSize bytes is ignored.
func DecodeQuery(encoded []byte) (*Query, error) {
	if len(encoded) < PacketSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedPacket, len(encoded))
	}

	firstByte := encoded[0]

	return &Query{
		Leap:      firstByte >> 6,
		Version:   (firstByte >> 3) & 0b111,
		Mode:      Mode(firstByte & 0b111),
		Stratum:   encoded[1],
		Poll:      int8(encoded[2]),
		Precision: int8(encoded[3]),
		Rootdelay: DecodeShort(binary.BigEndian.Uint32(encoded[4:])),
		Rootdisp:  DecodeShort(binary.BigEndian.Uint32(encoded[8:])),
		Refid:     binary.BigEndian.Uint32(encoded[12:]),
		Reftime:   timestampAt(encoded, 16),
		Org:       timestampAt(encoded, 24),
		Rec:       timestampAt(encoded, 32),
		Xmt:       timestampAt(encoded, 40),
	}, nil
}

func EncodeResponse(response Response) []byte {
	split := func(t float64) Timestamp {
		sec, frac := SplitTimestamp(t)
		return Timestamp{Sec: sec, Frac: frac}
	}

	fields := fieldsEncoded{
		Stratum:   response.Stratum,
		Poll:      response.Poll,
		Precision: response.Precision,
		Rootdelay: EncodeShort(response.Rootdelay),
		Rootdisp:  EncodeShort(response.Rootdisp),
		Refid:     response.Refid,
		Reftime:   split(response.Reftime),
		Org:       response.Org,
		Rec:       split(response.Rec),
		Xmt:       split(response.Xmt),
	}

	encoded := make([]byte, PacketSize)
	encoded[0] = packFirstByte(response.Leap, response.Version, response.Mode)
	fields.put(encoded)
	return encoded
}

// EncodeQuery packs a query back into wire form. Root delay and dispersion
// go through the 16.16 encoder; timestamps are copied word for word.
func EncodeQuery(query Query) []byte {
	fields := fieldsEncoded{
		Stratum:   query.Stratum,
		Poll:      query.Poll,
		Precision: query.Precision,
		Rootdelay: EncodeShort(query.Rootdelay),
		Rootdisp:  EncodeShort(query.Rootdisp),
		Refid:     query.Refid,
		Reftime:   query.Reftime,
		Org:       query.Org,
		Rec:       query.Rec,
		Xmt:       query.Xmt,
	}

	encoded := make([]byte, PacketSize)
	encoded[0] = packFirstByte(query.Leap, query.Version, query.Mode)
	fields.put(encoded)
	return encoded
}
