package meshsync

import (
	"fmt"
	"strings"
	"time"

	"github.com/metaworking/meshsync/pkg/meshutil"
	"github.com/metaworking/meshsync/pkg/scene"
)

type NormalSyncMode int

const (
	NormalsNone NormalSyncMode = iota
	NormalsPerVertex
	NormalsPerIndex
)

var normalSyncModeNames = map[NormalSyncMode]string{
	NormalsNone:      "none",
	NormalsPerVertex: "per_vertex",
	NormalsPerIndex:  "per_index",
}

func (m NormalSyncMode) String() string {
	if name, ok := normalSyncModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("NormalSyncMode(%d)", int(m))
}

func (m NormalSyncMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *NormalSyncMode) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	for mode, name := range normalSyncModeNames {
		if name == s || strings.ReplaceAll(name, "_", "") == s {
			*m = mode
			return nil
		}
	}
	return fmt.Errorf("unknown normal sync mode %q", string(text))
}

type ClientSettings struct {
	// Address is host:port for tcp and kcp, or a ws:// URL.
	Address     string        `yaml:"address"`
	Network     string        `yaml:"network"`
	SessionName string        `yaml:"session_name"`
	Timeout     time.Duration `yaml:"timeout"`
	Compression string        `yaml:"compression"`
}

type Settings struct {
	ClientSettings ClientSettings      `yaml:"client"`
	SceneSettings  scene.SceneSettings `yaml:"scene"`

	SyncNormals         NormalSyncMode `yaml:"sync_normals"`
	SyncMeshes          bool           `yaml:"sync_meshes"`
	SyncUVs             bool           `yaml:"sync_uvs"`
	SyncColors          bool           `yaml:"sync_colors"`
	SyncBones           bool           `yaml:"sync_bones"`
	SyncPoses           bool           `yaml:"sync_poses"`
	SyncBlendshapes     bool           `yaml:"sync_blendshapes"`
	SyncAnimations      bool           `yaml:"sync_animations"`
	SyncCameras         bool           `yaml:"sync_cameras"`
	SyncLights          bool           `yaml:"sync_lights"`
	CalcPerIndexNormals bool           `yaml:"calc_per_index_normals"`
	SampleAnimation     bool           `yaml:"sample_animation"`
	AnimationSPS        int            `yaml:"animation_sps"`

	// NormalEpsilon is the tolerance of the split-vertex pass.
	NormalEpsilon float32 `yaml:"normal_epsilon"`
	// ExtractWorkers > 1 fans mesh extraction out to that many goroutines.
	ExtractWorkers int `yaml:"extract_workers"`
}

func DefaultSettings() Settings {
	return Settings{
		ClientSettings: ClientSettings{
			Address:     "127.0.0.1:8080",
			Network:     "tcp",
			SessionName: "default",
			Timeout:     5 * time.Second,
			Compression: "snappy",
		},
		SceneSettings: scene.SceneSettings{
			Handedness:  scene.RightHandedZUp,
			ScaleFactor: 1,
		},
		SyncNormals:         NormalsPerIndex,
		SyncMeshes:          true,
		SyncUVs:             true,
		SyncColors:          true,
		SyncBones:           true,
		SyncPoses:           true,
		SyncBlendshapes:     true,
		SyncAnimations:      true,
		SyncCameras:         true,
		SyncLights:          true,
		CalcPerIndexNormals: true,
		SampleAnimation:     true,
		AnimationSPS:        5,
		NormalEpsilon:       meshutil.DefaultEpsilon,
		ExtractWorkers:      1,
	}
}

// Bits of SetMessage.SyncFlags, telling the receiver which categories the
// sender is authoritative for.
const (
	SyncFlagMeshes uint32 = 1 << iota
	SyncFlagNormals
	SyncFlagUVs
	SyncFlagColors
	SyncFlagBones
	SyncFlagPoses
	SyncFlagBlendshapes
	SyncFlagAnimations
	SyncFlagCameras
	SyncFlagLights
)

func (s Settings) SyncFlags() uint32 {
	var flags uint32
	set := func(flag uint32, on bool) {
		if on {
			flags |= flag
		}
	}
	set(SyncFlagMeshes, s.SyncMeshes)
	set(SyncFlagNormals, s.SyncNormals != NormalsNone)
	set(SyncFlagUVs, s.SyncUVs)
	set(SyncFlagColors, s.SyncColors)
	set(SyncFlagBones, s.SyncBones)
	set(SyncFlagPoses, s.SyncPoses)
	set(SyncFlagBlendshapes, s.SyncBlendshapes)
	set(SyncFlagAnimations, s.SyncAnimations)
	set(SyncFlagCameras, s.SyncCameras)
	set(SyncFlagLights, s.SyncLights)
	return flags
}

func (s *Settings) normalEpsilon() float32 {
	if s.NormalEpsilon <= 0 {
		return meshutil.DefaultEpsilon
	}
	return s.NormalEpsilon
}
