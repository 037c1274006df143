package meshsyncpb

import (
	"bytes"
	"io"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/go-cmp/cmp"
	"github.com/metaworking/meshsync/pkg/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleScene() *scene.Scene {
	root := &scene.Transform{
		Path:     "/Root",
		Position: mgl32.Vec3{1, 2, 3},
		Rotation: mgl32.QuatRotate(0.5, mgl32.Vec3{0, 0, 1}),
		Scale:    mgl32.Vec3{1, 1, 1},
		Visible:  true,
	}
	instance := &scene.Transform{
		Path:      "/Root/Instance",
		Rotation:  mgl32.QuatIdent(),
		Scale:     mgl32.Vec3{2, 2, 2},
		Reference: "/Root/Cube",
	}
	cam := &scene.Camera{
		Transform: scene.Transform{Path: "/Camera", Rotation: mgl32.QuatIdent(), Scale: mgl32.Vec3{1, 1, 1}, Visible: true},
		FOV:       40,
		NearPlane: 0.1,
		FarPlane:  500,
		OrthoSize: 3,
		Ortho:     true,
	}
	light := &scene.Light{
		Transform: scene.Transform{Path: "/Lamp", Rotation: mgl32.QuatIdent(), Scale: mgl32.Vec3{1, 1, 1}, Visible: true},
		LightType: scene.LightSpot,
		Color:     mgl32.Vec4{1, 0.5, 0.25, 1},
		Intensity: 80,
		Range:     12,
		SpotAngle: 35,
	}
	mesh := &scene.Mesh{
		Transform:   scene.Transform{Path: "/Root/Cube", Rotation: mgl32.QuatIdent(), Scale: mgl32.Vec3{1, 1, 1}, Visible: true},
		Points:      []mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}},
		Normals:     []mgl32.Vec3{{0, 0, 1}, {0, 0, 1}, {0, 0, 1}, {0, 0, 1}},
		UV0:         []mgl32.Vec2{{0, 0}, {1, 0}, {1, 1}, {0, 1}},
		Colors:      []mgl32.Vec4{{1, 0, 0, 1}, {0, 1, 0, 1}, {0, 0, 1, 1}, {1, 1, 1, 1}},
		Counts:      []int32{4},
		Indices:     []int32{0, 1, 2, 3},
		MaterialIDs: []int32{-1},
		RootBone:    "/Root/Rig",
		Bones:       []string{"/Root/Rig/Hip", "/Root/Rig/Hip/Spine"},
		BindPoses:   []mgl32.Mat4{mgl32.Ident4(), mgl32.Translate3D(0, 0, -1)},
		Weights4: []scene.Weights4{
			{Weights: [4]float32{1}, Indices: [4]int32{0}},
			{Weights: [4]float32{0.5, 0.5}, Indices: [4]int32{1, 0}},
			{Weights: [4]float32{1}, Indices: [4]int32{1}},
			{Weights: [4]float32{1}, Indices: [4]int32{0}},
		},
		BlendShapes: []*scene.BlendShape{{
			Name:   "Smile",
			Weight: 25,
			Frames: []*scene.BlendShapeFrame{{
				Weight: 100,
				Points: []mgl32.Vec3{{0, 0, 0.1}, {0, 0, 0}, {0, 0, 0}, {0, 0, 0.1}},
			}},
		}},
	}
	mesh.UpdateFlags()

	return &scene.Scene{
		Settings:  scene.SceneSettings{Handedness: scene.LeftHandedYUp, ScaleFactor: 0.01},
		Objects:   []scene.Entity{root, instance, cam, light, mesh},
		Materials: []*scene.Material{{ID: 0, Name: "Red", Color: mgl32.Vec4{1, 0, 0, 1}, Roughness: 0.5}, {ID: 1, Name: "Steel", Metallic: 1}},
		Animations: []*scene.AnimationClip{{
			Name: "Spin",
			Animations: []*scene.TransformAnimation{{
				Path:        "/Root",
				Times:       []float32{0, 0.5, 1},
				Translation: []mgl32.Vec3{{0, 0, 0}, {0, 0, 1}, {0, 0, 2}},
				Rotation:    []mgl32.Quat{mgl32.QuatIdent(), mgl32.QuatIdent(), mgl32.QuatIdent()},
				Scale:       []mgl32.Vec3{{1, 1, 1}, {1, 1, 1}, {1, 1, 1}},
			}},
		}},
		Deleted: []string{"/Old", "/Old/Child"},
	}
}

func TestSetMessageRoundTrip(t *testing.T) {
	msg := &SetMessage{scene.SetMessage{Seq: 7, SyncFlags: 0x3ff, Scene: sampleScene()}}
	b, err := msg.Marshal()
	require.NoError(t, err)

	var got SetMessage
	require.NoError(t, got.Unmarshal(b))
	if diff := cmp.Diff(msg, &got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestHelloAndDisconnect(t *testing.T) {
	hello := &HelloMessage{ProtocolVersion: ProtocolVersion, SessionName: "blender", ClientName: "meshsync"}
	b, err := hello.Marshal()
	require.NoError(t, err)
	var gotHello HelloMessage
	require.NoError(t, gotHello.Unmarshal(b))
	assert.Equal(t, *hello, gotHello)

	bye := &DisconnectMessage{Reason: "closing"}
	b, err = bye.Marshal()
	require.NoError(t, err)
	var gotBye DisconnectMessage
	require.NoError(t, gotBye.Unmarshal(b))
	assert.Equal(t, "closing", gotBye.Reason)
}

func TestUnknownFieldsAreSkipped(t *testing.T) {
	hello := &HelloMessage{ProtocolVersion: 1, SessionName: "a"}
	b, _ := hello.Marshal()
	// Field 15, varint, appended by a newer sender.
	b = append(b, 15<<3, 42)
	var got HelloMessage
	require.NoError(t, got.Unmarshal(b))
	assert.Equal(t, "a", got.SessionName)
}

func TestMalformedInput(t *testing.T) {
	msg := &SetMessage{scene.SetMessage{Seq: 1, Scene: sampleScene()}}
	b, err := msg.Marshal()
	require.NoError(t, err)

	var got SetMessage
	assert.Error(t, got.Unmarshal(b[:len(b)-3]))

	// A transform position holding two floats.
	bad := appendMessage(nil, 3, appendMessage(nil, 2, appendMessage(nil, fieldTransform, appendFloats(nil, 2, []float32{1, 2}))))
	err = got.Unmarshal(bad)
	assert.ErrorIs(t, err, ErrMalformed)

	// Field 1 of a hello message must be a varint.
	assert.ErrorIs(t, (&HelloMessage{}).Unmarshal(appendString(nil, 1, "x")), ErrMalformed)
}

func TestPacketFraming(t *testing.T) {
	for _, ct := range []CompressionType{CompressionType_NO_COMPRESSION, CompressionType_SNAPPY} {
		t.Run(ct.String(), func(t *testing.T) {
			hello, err := Pack(&HelloMessage{ProtocolVersion: ProtocolVersion, SessionName: "s"})
			require.NoError(t, err)
			set, err := Pack(&SetMessage{scene.SetMessage{Seq: 1, Scene: sampleScene()}})
			require.NoError(t, err)

			var buf bytes.Buffer
			written, err := WritePacket(&buf, &Packet{Messages: []*MessagePack{hello, set}}, ct)
			require.NoError(t, err)
			assert.Equal(t, buf.Len(), written)
			assert.Equal(t, byte(ct), buf.Bytes()[4])

			var p Packet
			read, err := ReadPacket(&buf, &p)
			require.NoError(t, err)
			assert.Equal(t, written, read)
			require.Len(t, p.Messages, 2)

			msg, err := Unpack(p.Messages[1])
			require.NoError(t, err)
			got, ok := msg.(*SetMessage)
			require.True(t, ok)
			assert.Equal(t, "/Root/Cube", got.Scene.Objects[4].Base().Path)

			_, err = ReadPacket(&buf, &p)
			assert.ErrorIs(t, err, io.EOF)
		})
	}
}

func TestPacketErrors(t *testing.T) {
	var p Packet
	_, err := ReadPacket(bytes.NewReader([]byte("HTTP/1.1 200")), &p)
	assert.ErrorIs(t, err, ErrInvalidTag)

	var buf bytes.Buffer
	_, err = WritePacket(&buf, &Packet{Messages: []*MessagePack{{MsgType: MessageType_HELLO}}}, CompressionType(9))
	require.NoError(t, err)
	_, err = ReadPacket(&buf, &p)
	assert.Error(t, err)

	_, err = Unpack(&MessagePack{MsgType: MessageType(99)})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseCompressionType(t *testing.T) {
	for s, want := range map[string]CompressionType{
		"":               CompressionType_NO_COMPRESSION,
		"none":           CompressionType_NO_COMPRESSION,
		"NO_COMPRESSION": CompressionType_NO_COMPRESSION,
		" Snappy ":       CompressionType_SNAPPY,
	} {
		ct, err := ParseCompressionType(s)
		require.NoError(t, err, s)
		assert.Equal(t, want, ct, s)
	}
	_, err := ParseCompressionType("zstd")
	assert.Error(t, err)
}
