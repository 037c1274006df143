package meshsyncpb

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"google.golang.org/protobuf/encoding/protowire"
)

var ErrMalformed = errors.New("malformed message")

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendStrings(b []byte, num protowire.Number, ss []string) []byte {
	for _, s := range ss {
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendString(b, s)
	}
	return b
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return appendVarint(b, num, 1)
}

func appendFloat(b []byte, num protowire.Number, v float32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(v))
}

func appendMessage(b []byte, num protowire.Number, body []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, body)
}

// appendPacked writes a packed repeated fixed32 field holding count floats.
// fill appends exactly count values.
func appendPacked(b []byte, num protowire.Number, count int, fill func(b []byte) []byte) []byte {
	if count == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendVarint(b, uint64(count*4))
	return fill(b)
}

func appendF32(b []byte, vs ...float32) []byte {
	for _, v := range vs {
		b = protowire.AppendFixed32(b, math.Float32bits(v))
	}
	return b
}

func appendFloats(b []byte, num protowire.Number, vs []float32) []byte {
	return appendPacked(b, num, len(vs), func(b []byte) []byte {
		return appendF32(b, vs...)
	})
}

func appendVec2s(b []byte, num protowire.Number, vs []mgl32.Vec2) []byte {
	return appendPacked(b, num, len(vs)*2, func(b []byte) []byte {
		for _, v := range vs {
			b = appendF32(b, v[:]...)
		}
		return b
	})
}

func appendVec3s(b []byte, num protowire.Number, vs []mgl32.Vec3) []byte {
	return appendPacked(b, num, len(vs)*3, func(b []byte) []byte {
		for _, v := range vs {
			b = appendF32(b, v[:]...)
		}
		return b
	})
}

func appendVec4s(b []byte, num protowire.Number, vs []mgl32.Vec4) []byte {
	return appendPacked(b, num, len(vs)*4, func(b []byte) []byte {
		for _, v := range vs {
			b = appendF32(b, v[:]...)
		}
		return b
	})
}

func appendQuats(b []byte, num protowire.Number, qs []mgl32.Quat) []byte {
	return appendPacked(b, num, len(qs)*4, func(b []byte) []byte {
		for _, q := range qs {
			b = appendF32(b, q.W, q.V[0], q.V[1], q.V[2])
		}
		return b
	})
}

func appendMat4s(b []byte, num protowire.Number, ms []mgl32.Mat4) []byte {
	return appendPacked(b, num, len(ms)*16, func(b []byte) []byte {
		for _, m := range ms {
			b = appendF32(b, m[:]...)
		}
		return b
	})
}

func appendInt32s(b []byte, num protowire.Number, vs []int32) []byte {
	if len(vs) == 0 {
		return b
	}
	size := 0
	for _, v := range vs {
		size += protowire.SizeVarint(uint64(int64(v)))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendVarint(b, uint64(size))
	for _, v := range vs {
		b = protowire.AppendVarint(b, uint64(int64(v)))
	}
	return b
}

// field is one undecoded field. v holds the remaining message bytes starting
// at the field value.
type field struct {
	num protowire.Number
	typ protowire.Type
	v   []byte
}

func (f field) check(typ protowire.Type) error {
	if f.typ != typ {
		return fmt.Errorf("field %d has wire type %d, expected %d: %w", f.num, f.typ, typ, ErrMalformed)
	}
	return nil
}

func consumed(n int) (int, error) {
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return n, nil
}

func (f field) bytes() ([]byte, int, error) {
	if err := f.check(protowire.BytesType); err != nil {
		return nil, 0, err
	}
	v, n := protowire.ConsumeBytes(f.v)
	n, err := consumed(n)
	return v, n, err
}

func (f field) str() (string, int, error) {
	if err := f.check(protowire.BytesType); err != nil {
		return "", 0, err
	}
	v, n := protowire.ConsumeString(f.v)
	n, err := consumed(n)
	return v, n, err
}

func (f field) varint() (uint64, int, error) {
	if err := f.check(protowire.VarintType); err != nil {
		return 0, 0, err
	}
	v, n := protowire.ConsumeVarint(f.v)
	n, err := consumed(n)
	return v, n, err
}

func (f field) float() (float32, int, error) {
	if err := f.check(protowire.Fixed32Type); err != nil {
		return 0, 0, err
	}
	v, n := protowire.ConsumeFixed32(f.v)
	n, err := consumed(n)
	return math.Float32frombits(v), n, err
}

// floats decodes a packed float field whose element count must be a multiple of stride.
func (f field) floats(stride int) ([]float32, int, error) {
	payload, n, err := f.bytes()
	if err != nil {
		return nil, 0, err
	}
	if len(payload)%(4*stride) != 0 {
		return nil, 0, fmt.Errorf("field %d: %d bytes is not a multiple of %d floats: %w", f.num, len(payload), stride, ErrMalformed)
	}
	out := make([]float32, len(payload)/4)
	for i := range out {
		v, m := protowire.ConsumeFixed32(payload)
		if m < 0 {
			return nil, 0, protowire.ParseError(m)
		}
		out[i] = math.Float32frombits(v)
		payload = payload[m:]
	}
	return out, n, nil
}

func (f field) int32s() ([]int32, int, error) {
	payload, n, err := f.bytes()
	if err != nil {
		return nil, 0, err
	}
	var out []int32
	for len(payload) > 0 {
		v, m := protowire.ConsumeVarint(payload)
		if m < 0 {
			return nil, 0, protowire.ParseError(m)
		}
		out = append(out, int32(v))
		payload = payload[m:]
	}
	return out, n, nil
}

func (f field) vec2s() ([]mgl32.Vec2, int, error) {
	fs, n, err := f.floats(2)
	if err != nil {
		return nil, 0, err
	}
	out := make([]mgl32.Vec2, len(fs)/2)
	for i := range out {
		copy(out[i][:], fs[i*2:])
	}
	return out, n, nil
}

func (f field) vec3s() ([]mgl32.Vec3, int, error) {
	fs, n, err := f.floats(3)
	if err != nil {
		return nil, 0, err
	}
	out := make([]mgl32.Vec3, len(fs)/3)
	for i := range out {
		copy(out[i][:], fs[i*3:])
	}
	return out, n, nil
}

func (f field) vec4s() ([]mgl32.Vec4, int, error) {
	fs, n, err := f.floats(4)
	if err != nil {
		return nil, 0, err
	}
	out := make([]mgl32.Vec4, len(fs)/4)
	for i := range out {
		copy(out[i][:], fs[i*4:])
	}
	return out, n, nil
}

func (f field) quats() ([]mgl32.Quat, int, error) {
	fs, n, err := f.floats(4)
	if err != nil {
		return nil, 0, err
	}
	out := make([]mgl32.Quat, len(fs)/4)
	for i := range out {
		out[i] = mgl32.Quat{W: fs[i*4], V: mgl32.Vec3{fs[i*4+1], fs[i*4+2], fs[i*4+3]}}
	}
	return out, n, nil
}

func (f field) mat4s() ([]mgl32.Mat4, int, error) {
	fs, n, err := f.floats(16)
	if err != nil {
		return nil, 0, err
	}
	out := make([]mgl32.Mat4, len(fs)/16)
	for i := range out {
		copy(out[i][:], fs[i*16:])
	}
	return out, n, nil
}

// consumeMessage walks the fields of b. handle returns the number of bytes it
// consumed from the field value; returning 0 skips an unknown field.
func consumeMessage(b []byte, handle func(f field) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m, err := handle(field{num, typ, b})
		if err != nil {
			return err
		}
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return protowire.ParseError(m)
			}
		}
		b = b[m:]
	}
	return nil
}
