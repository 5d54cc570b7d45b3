package session

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMalformedPayload is wrapped by every decoding failure.
var ErrMalformedPayload = errors.New("malformed session payload")

// Field flags which values an inbound update carried.
type Field uint8

const (
	FieldVolume Field = 1 << iota
	FieldMute
	FieldIcon
)

// Fragment is the canonical form of an inbound change notification,
// whatever wire shape it arrived in.
type Fragment struct {
	Name   string
	Volume int
	Muted  bool
	Icon   []byte
	Fields Field
}

// Has reports whether the update carried field f.
func (f Fragment) Has(field Field) bool { return f.Fields&field != 0 }

// ApplyTo returns s with the carried fields of f written over it.
func (f Fragment) ApplyTo(s Session) Session {
	if f.Has(FieldVolume) {
		s.Volume = f.Volume
	}
	if f.Has(FieldMute) {
		s.Muted = f.Muted
	}
	if f.Has(FieldIcon) {
		s.Icon = f.Icon
	}
	return s
}

// Session converts f into a full session record. Fields the update did not
// carry keep their zero value.
func (f Fragment) Session() Session {
	return f.ApplyTo(Session{Name: f.Name})
}

// Decode normalizes a raw notification payload. A JSON string is the packed
// "name:signedVolume" shape, a JSON object the structured shape.
func Decode(raw json.RawMessage) (Fragment, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Fragment{}, fmt.Errorf("%w: empty payload", ErrMalformedPayload)
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Fragment{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		return DecodePacked(s)
	case '{':
		return DecodeStructured(raw)
	default:
		return Fragment{}, fmt.Errorf("%w: unexpected json %.32q", ErrMalformedPayload, raw)
	}
}

// DecodePacked parses "<name>:<signedNumber>". The magnitude is the volume
// and a leading minus sign means muted, so "x:-0" is muted at zero while
// "x:0" is unmuted at zero. The name may itself contain colons; the number
// follows the last one.
func DecodePacked(s string) (Fragment, error) {
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return Fragment{}, fmt.Errorf("%w: %q has no separator", ErrMalformedPayload, s)
	}
	name := strings.TrimSpace(s[:i])
	if name == "" {
		return Fragment{}, fmt.Errorf("%w: %q has no name", ErrMalformedPayload, s)
	}
	num := strings.TrimSpace(s[i+1:])
	n, err := strconv.Atoi(num)
	if err != nil {
		return Fragment{}, fmt.Errorf("%w: %q volume: %v", ErrMalformedPayload, s, err)
	}
	if n < -MaxVolume || n > MaxVolume {
		return Fragment{}, fmt.Errorf("%w: %q volume out of range", ErrMalformedPayload, s)
	}
	muted := strings.HasPrefix(num, "-")
	if n < 0 {
		n = -n
	}
	return Fragment{
		Name:   name,
		Volume: n,
		Muted:  muted,
		Fields: FieldVolume | FieldMute,
	}, nil
}

type structuredPayload struct {
	Name   *string         `json:"name"`
	Volume *float64        `json:"volume"`
	Mute   *bool           `json:"mute"`
	Icon   json.RawMessage `json:"icon"`
}

// DecodeStructured reads an object payload. Volume is stored as its rounded
// absolute magnitude; mute is taken as sent. A present null icon clears it.
func DecodeStructured(raw []byte) (Fragment, error) {
	var p structuredPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Fragment{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if p.Name == nil || strings.TrimSpace(*p.Name) == "" {
		return Fragment{}, fmt.Errorf("%w: missing name", ErrMalformedPayload)
	}

	f := Fragment{Name: strings.TrimSpace(*p.Name)}
	if p.Volume != nil {
		v := int(math.Round(math.Abs(*p.Volume)))
		if v > MaxVolume {
			return Fragment{}, fmt.Errorf("%w: %s volume %v out of range", ErrMalformedPayload, f.Name, *p.Volume)
		}
		f.Volume = v
		f.Fields |= FieldVolume
	}
	if p.Mute != nil {
		f.Muted = *p.Mute
		f.Fields |= FieldMute
	}
	if p.Icon != nil {
		icon, err := decodeIcon(p.Icon)
		if err != nil {
			return Fragment{}, fmt.Errorf("%w: %s icon: %v", ErrMalformedPayload, f.Name, err)
		}
		f.Icon = icon
		f.Fields |= FieldIcon
	}
	if f.Fields == 0 {
		return Fragment{}, fmt.Errorf("%w: %s carries no fields", ErrMalformedPayload, f.Name)
	}
	return f, nil
}

func decodeIcon(raw json.RawMessage) ([]byte, error) {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	if s == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(s)
}
